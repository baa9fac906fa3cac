package repos

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

type ChatRepo interface {
	Create(dbc dbctx.Context, row *chat.Chat) (*chat.Chat, error)
	GetByID(dbc dbctx.Context, userID, id uuid.UUID) (*chat.Chat, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*chat.Chat, error)
	UpdateFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, userID, id uuid.UUID) error
}

type chatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatRepo(db *gorm.DB, log *logger.Logger) ChatRepo {
	return &chatRepo{db: db, log: log.With("repo", "ChatRepo")}
}

func (r *chatRepo) Create(dbc dbctx.Context, row *chat.Chat) (*chat.Chat, error) {
	if row == nil {
		return nil, fmt.Errorf("missing chat row")
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

func (r *chatRepo) GetByID(dbc dbctx.Context, userID, id uuid.UUID) (*chat.Chat, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or chat id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out chat.Chat
	if err := txx.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *chatRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*chat.Chat, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*chat.Chat
	if err := txx.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("is_starred DESC, date_last_modified DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatRepo) UpdateFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing user_id or chat id")
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["date_last_modified"]; !ok {
		updates["date_last_modified"] = time.Now().UTC()
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&chat.Chat{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates).Error
}

func (r *chatRepo) Delete(dbc dbctx.Context, userID, id uuid.UUID) error {
	if userID == uuid.Nil || id == uuid.Nil {
		return fmt.Errorf("missing user_id or chat id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&chat.Chat{}).Error
}
