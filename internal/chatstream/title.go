package chatstream

import (
	"context"
	"strings"

	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

const (
	FallbackTitle = "Untitled chat"
	maxTitleRunes = 80
)

// TitleService names a chat from its first message. It never surfaces an
// error: any failure falls back to the default title.
type TitleService interface {
	Generate(ctx context.Context, message string) (title string, didFallback bool)
}

type titleService struct {
	log   *logger.Logger
	model gemini.Client
	lite  string
}

func NewTitleService(log *logger.Logger, model gemini.Client, liteModel string) TitleService {
	if strings.TrimSpace(liteModel) == "" {
		liteModel = gemini.DefaultLiteModel
	}
	return &titleService{
		log:   log.With("service", "TitleService"),
		model: model,
		lite:  liteModel,
	}
}

func (s *titleService) Generate(ctx context.Context, message string) (string, bool) {
	message = strings.TrimSpace(message)
	if message == "" || s.model == nil {
		return FallbackTitle, true
	}

	prompt := "Write a short, specific title (at most six words) for a chat that starts with the message below. " +
		"Respond with the title only, no quotes.\n\nMESSAGE:\n" + message
	resp, err := s.model.Generate(ctx, gemini.Request{
		Model:    s.lite,
		Contents: []gemini.Message{gemini.TextMessage(gemini.RoleUser, prompt)},
	})
	if err != nil {
		s.log.Warn("Title generation failed, using fallback", "error", err)
		return FallbackTitle, true
	}

	title := SanitizeTitle(resp.Text())
	if title == "" {
		return FallbackTitle, true
	}
	return title, false
}

// SanitizeTitle strips wrapping quote characters, collapses whitespace, and
// caps the length.
func SanitizeTitle(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'`“”‘’")
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxTitleRunes {
		s = strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return s
}
