package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

type ChatMessageRepo interface {
	CreateBatch(dbc dbctx.Context, rows []*chat.ChatMessage) ([]*chat.ChatMessage, error)
	ListByChat(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*chat.ChatMessage, error)
	ListRecent(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*chat.ChatMessage, error)
	DeleteByChat(dbc dbctx.Context, chatID uuid.UUID) error
}

type chatMessageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatMessageRepo(db *gorm.DB, log *logger.Logger) ChatMessageRepo {
	return &chatMessageRepo{db: db, log: log.With("repo", "ChatMessageRepo")}
}

func (r *chatMessageRepo) CreateBatch(dbc dbctx.Context, rows []*chat.ChatMessage) ([]*chat.ChatMessage, error) {
	if len(rows) == 0 {
		return []*chat.ChatMessage{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chatMessageRepo) ListByChat(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*chat.ChatMessage, error) {
	if chatID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*chat.ChatMessage
	if err := txx.WithContext(dbc.Ctx).
		Model(&chat.ChatMessage{}).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatMessageRepo) ListRecent(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*chat.ChatMessage, error) {
	if chatID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*chat.ChatMessage
	if err := txx.WithContext(dbc.Ctx).
		Model(&chat.ChatMessage{}).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	// Normalize to ASC for callers.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *chatMessageRepo) DeleteByChat(dbc dbctx.Context, chatID uuid.UUID) error {
	if chatID == uuid.Nil {
		return fmt.Errorf("missing chat_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("chat_id = ?", chatID).
		Delete(&chat.ChatMessage{}).Error
}
