package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

// Client wraps the Gemini API behind provider-neutral request/response types
// so callers can be exercised against fakes.
type Client interface {
	// GenerateStream issues a streaming generation request and invokes fn for
	// every received chunk. It returns the number of chunks received.
	GenerateStream(ctx context.Context, req Request, fn func(Chunk) error) (int, error)
	// Generate issues a non-streaming request and returns the whole response
	// collapsed into one chunk.
	Generate(ctx context.Context, req Request) (*Chunk, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type client struct {
	log        *logger.Logger
	genai      *genai.Client
	embedModel string
}

func NewClient(ctx context.Context, log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing env var GEMINI_API_KEY")
	}
	embedModel := strings.TrimSpace(os.Getenv("GEMINI_EMBED_MODEL"))
	if embedModel == "" {
		embedModel = DefaultEmbedModel
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &client{
		log:        log.With("client", "GeminiClient"),
		genai:      gc,
		embedModel: embedModel,
	}, nil
}

func (c *client) GenerateStream(ctx context.Context, req Request, fn func(Chunk) error) (int, error) {
	contents, cfg := toGenai(req)
	n := 0
	for resp, err := range c.genai.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
		if err != nil {
			return n, fmt.Errorf("gemini stream: %w", err)
		}
		n++
		if err := fn(fromResponse(resp)); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (c *client) Generate(ctx context.Context, req Request) (*Chunk, error) {
	contents, cfg := toGenai(req)
	resp, err := c.genai.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	ch := fromResponse(resp)
	return &ch, nil
}

func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embed input required")
	}
	resp, err := c.genai.Models.EmbedContent(ctx, c.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed returned no values")
	}
	return resp.Embeddings[0].Values, nil
}

func toGenai(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Contents))
	for _, m := range req.Contents {
		parts := make([]*genai.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch {
			case p.FunctionCall != nil:
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: p.FunctionCall.Name,
					Args: p.FunctionCall.Args,
				}})
			case p.FunctionResponse != nil:
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					Name:     p.FunctionResponse.Name,
					Response: p.FunctionResponse.Response,
				}})
			default:
				parts = append(parts, &genai.Part{Text: p.Text, Thought: p.Thought})
			}
		}
		contents = append(contents, &genai.Content{Role: m.Role, Parts: parts})
	}

	cfg := &genai.GenerateContentConfig{
		Tools:       req.Tools,
		Temperature: req.Temperature,
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.IncludeThoughts {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	return contents, cfg
}

func fromResponse(resp *genai.GenerateContentResponse) Chunk {
	var ch Chunk
	if resp == nil || len(resp.Candidates) == 0 {
		return ch
	}
	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p == nil {
				continue
			}
			if p.FunctionCall != nil {
				ch.Parts = append(ch.Parts, Part{FunctionCall: &FunctionCall{
					Name: p.FunctionCall.Name,
					Args: p.FunctionCall.Args,
				}})
				continue
			}
			if p.Text != "" {
				ch.Parts = append(ch.Parts, Part{Text: p.Text, Thought: p.Thought})
			}
		}
	}
	if gm := cand.GroundingMetadata; gm != nil {
		meta := &GroundingMetadata{}
		for _, gc := range gm.GroundingChunks {
			var out GroundingChunk
			if gc != nil && gc.Web != nil {
				out = GroundingChunk{URI: gc.Web.URI, Title: gc.Web.Title}
			}
			meta.Chunks = append(meta.Chunks, out)
		}
		for _, gs := range gm.GroundingSupports {
			if gs == nil || gs.Segment == nil {
				continue
			}
			sup := GroundingSupport{
				Text:       gs.Segment.Text,
				StartIndex: int(gs.Segment.StartIndex),
				EndIndex:   int(gs.Segment.EndIndex),
			}
			for _, idx := range gs.GroundingChunkIndices {
				sup.ChunkIndices = append(sup.ChunkIndices, int(idx))
			}
			meta.Supports = append(meta.Supports, sup)
		}
		if len(meta.Chunks) > 0 || len(meta.Supports) > 0 {
			ch.Grounding = meta
		}
	}
	if um := cand.URLContextMetadata; um != nil {
		for _, m := range um.URLMetadata {
			if m == nil {
				continue
			}
			ch.URLContext = append(ch.URLContext, URLMetadata{
				RetrievedURL: m.RetrievedURL,
				Status:       string(m.URLRetrievalStatus),
			})
		}
	}
	return ch
}
