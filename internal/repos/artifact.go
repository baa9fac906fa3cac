package repos

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

type ChatArtifactRepo interface {
	Create(dbc dbctx.Context, row *chat.ChatArtifact) (*chat.ChatArtifact, error)
	LinkToMessage(dbc dbctx.Context, ids []uuid.UUID, messageID uuid.UUID) error
	ListByChat(dbc dbctx.Context, chatID uuid.UUID) ([]*chat.ChatArtifact, error)
	DeleteByChat(dbc dbctx.Context, chatID uuid.UUID) error
}

type chatArtifactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatArtifactRepo(db *gorm.DB, log *logger.Logger) ChatArtifactRepo {
	return &chatArtifactRepo{db: db, log: log.With("repo", "ChatArtifactRepo")}
}

func (r *chatArtifactRepo) Create(dbc dbctx.Context, row *chat.ChatArtifact) (*chat.ChatArtifact, error) {
	if row == nil {
		return nil, fmt.Errorf("missing artifact row")
	}
	if row.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *chatArtifactRepo) LinkToMessage(dbc dbctx.Context, ids []uuid.UUID, messageID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if messageID == uuid.Nil {
		return fmt.Errorf("missing message_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&chat.ChatArtifact{}).
		Where("id IN ?", ids).
		Update("message_id", messageID).Error
}

func (r *chatArtifactRepo) ListByChat(dbc dbctx.Context, chatID uuid.UUID) ([]*chat.ChatArtifact, error) {
	if chatID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*chat.ChatArtifact
	if err := txx.WithContext(dbc.Ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatArtifactRepo) DeleteByChat(dbc dbctx.Context, chatID uuid.UUID) error {
	if chatID == uuid.Nil {
		return fmt.Errorf("missing chat_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("chat_id = ?", chatID).
		Delete(&chat.ChatArtifact{}).Error
}
