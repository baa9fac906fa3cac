package assets

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/platform/envutil"
	"github.com/yungbote/researchmate-backend/internal/platform/gcp"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

// Collision retries use fresh random names, so concurrent writers never
// overwrite each other.
const maxPathAttempts = 3

// Asset is an uploaded object plus its signed read URL. Never mutated after
// creation.
type Asset struct {
	Bucket      string
	Path        string
	SignedURL   string
	ExpiresAt   time.Time
	ContentType string
}

type Store interface {
	SaveImage(ctx context.Context, userID uuid.UUID, chatID string, data []byte, contentType string) (*Asset, error)
}

type store struct {
	log     *logger.Logger
	buckets gcp.BucketService
	ttl     time.Duration
}

func NewStore(log *logger.Logger, buckets gcp.BucketService) (Store, error) {
	if buckets == nil {
		return nil, fmt.Errorf("bucket service required")
	}
	ttlSeconds := envutil.Int("ASSET_SIGNED_URL_TTL_SECONDS", 7*24*3600)
	return &store{
		log:     log.With("service", "AssetStore"),
		buckets: buckets,
		ttl:     time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func (s *store) SaveImage(ctx context.Context, userID uuid.UUID, chatID string, data []byte, contentType string) (*Asset, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	key, err := s.allocateKey(ctx, userID, chatID, extForContentType(contentType))
	if err != nil {
		return nil, err
	}

	if err := s.buckets.Upload(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("upload asset: %w", err)
	}

	signed, err := s.buckets.SignedURL(key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("sign asset url: %w", err)
	}

	return &Asset{
		Bucket:      s.buckets.BucketName(),
		Path:        key,
		SignedURL:   signed,
		ExpiresAt:   time.Now().Add(s.ttl),
		ContentType: contentType,
	}, nil
}

// allocateKey picks a fresh random object path, probing for collisions. The
// chat segment falls back to "unfiled" while the chat is not yet durable.
func (s *store) allocateKey(ctx context.Context, userID uuid.UUID, chatID, ext string) (string, error) {
	seg := chatID
	if seg == "" {
		seg = "unfiled"
	}
	for attempt := 0; attempt < maxPathAttempts; attempt++ {
		key := fmt.Sprintf("users/%s/chats/%s/%s.%s", userID, seg, randomName(), ext)
		exists, err := s.buckets.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("probe asset path: %w", err)
		}
		if !exists {
			return key, nil
		}
		s.log.Warn("Asset path collision, retrying with fresh name", "path", key, "attempt", attempt+1)
	}
	return "", fmt.Errorf("could not allocate unique asset path after %d attempts", maxPathAttempts)
}

func randomName() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func extForContentType(ct string) string {
	switch ct {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
