package freepik

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

// AspectRatio presets accepted by the text-to-image endpoint.
const (
	AspectSquare      = "square_1_1"
	AspectWidescreen  = "widescreen_16_9"
	AspectClassic     = "classic_4_3"
	AspectTraditional = "traditional_3_4"
	AspectSocialStory = "social_story_9_16"
)

type Image struct {
	Bytes    []byte
	MimeType string
}

type Client interface {
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (Image, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Freepik API key")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.freepik.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &client{
		log:  log.With("client", "FreepikClient"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type textToImageRequest struct {
	Prompt    string          `json:"prompt"`
	NumImages int             `json:"num_images"`
	Image     textToImageSize `json:"image"`
}

type textToImageSize struct {
	Size string `json:"size"`
}

type textToImageResponse struct {
	Data []struct {
		Base64 string `json:"base64"`
	} `json:"data"`
}

func ValidAspectRatio(s string) bool {
	switch s {
	case AspectSquare, AspectWidescreen, AspectClassic, AspectTraditional, AspectSocialStory:
		return true
	default:
		return false
	}
}

func (c *client) GenerateImage(ctx context.Context, prompt, aspectRatio string) (Image, error) {
	var out Image
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return out, fmt.Errorf("image prompt required")
	}
	if !ValidAspectRatio(aspectRatio) {
		aspectRatio = AspectSquare
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/ai/text-to-image"
	resp, err := doJSON[textToImageResponse](c, ctx, "POST", u, textToImageRequest{
		Prompt:    prompt,
		NumImages: 1,
		Image:     textToImageSize{Size: aspectRatio},
	})
	if err != nil {
		return out, err
	}
	if len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].Base64) == "" {
		return out, fmt.Errorf("freepik returned no image data")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[0].Base64)
	if err != nil {
		return out, fmt.Errorf("freepik image decode: %w", err)
	}
	out.Bytes = raw
	out.MimeType = "image/png"
	return out, nil
}

func doJSON[T any](c *client, ctx context.Context, method, url string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-freepik-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("freepik http %d: %s", resp.StatusCode, string(raw))
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("freepik decode error: %w", err)
	}
	return &out, nil
}
