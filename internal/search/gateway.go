package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
	"github.com/yungbote/researchmate-backend/internal/platform/pinecone"
)

const (
	DefaultTopK     = 5
	MaxTopK         = 20
	maxPassageRunes = 600
)

// Gateway embeds a query and returns ranked passage matches from the vector
// index, scoped to the requesting user's namespace.
type Gateway interface {
	Search(ctx context.Context, userID uuid.UUID, query string, topK int) ([]chat.SearchResult, error)
}

type gateway struct {
	log    *logger.Logger
	model  gemini.Client
	vstore pinecone.VectorStore
}

func NewGateway(log *logger.Logger, model gemini.Client, vstore pinecone.VectorStore) (Gateway, error) {
	if model == nil {
		return nil, fmt.Errorf("gemini client required")
	}
	if vstore == nil {
		return nil, fmt.Errorf("vector store required")
	}
	return &gateway{
		log:    log.With("service", "SearchGateway"),
		model:  model,
		vstore: vstore,
	}, nil
}

func (g *gateway) Search(ctx context.Context, userID uuid.UUID, query string, topK int) ([]chat.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query required")
	}
	topK = ClampTopK(topK)

	vec, err := g.model.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := g.vstore.QueryMatches(ctx, userID.String(), vec, topK, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]chat.SearchResult, 0, len(matches))
	for _, m := range matches {
		out = append(out, chat.SearchResult{
			ID:      m.ID,
			Title:   metaString(m.Metadata, "title"),
			Passage: TruncatePassage(metaString(m.Metadata, "text")),
			Score:   ClampScore(m.Score),
		})
	}
	return out, nil
}

func ClampTopK(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	if topK > MaxTopK {
		return MaxTopK
	}
	return topK
}

func ClampScore(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}

func TruncatePassage(s string) string {
	runes := []rune(s)
	if len(runes) <= maxPassageRunes {
		return s
	}
	return string(runes[:maxPassageRunes]) + "…"
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
