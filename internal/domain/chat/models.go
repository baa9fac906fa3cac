package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
)

type Chat struct {
	ID               uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ChatName         string    `gorm:"type:text;not null" json:"chat_name"`
	IsStarred        bool      `gorm:"not null;default:false" json:"is_starred"`
	CreatedAt        time.Time `gorm:"not null;default:now()" json:"created_at"`
	DateLastModified time.Time `gorm:"not null;default:now();index" json:"date_last_modified"`
}

func (Chat) TableName() string { return "chats" }

type ChatMessage struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChatID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"chat_id"`
	Sender       string         `gorm:"type:text;not null" json:"sender"`
	Content      string         `gorm:"type:text;not null;default:''" json:"content"`
	Thoughts     string         `gorm:"type:text;not null;default:''" json:"thoughts"`
	ToolCalls    datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"tool_calls"`
	ToolContents datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"tool_contents"`
	Feedback     string         `gorm:"type:text;not null;default:''" json:"feedback"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

type ChatArtifact struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChatID       *uuid.UUID     `gorm:"type:uuid;index" json:"chat_id,omitempty"`
	MessageID    *uuid.UUID     `gorm:"type:uuid;index" json:"message_id,omitempty"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ArtifactType string         `gorm:"type:text;not null;index" json:"artifact_type"`
	Title        string         `gorm:"type:text;not null" json:"title"`
	Tags         datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"tags"`
	Content      datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"content"`
	Summary      string         `gorm:"type:text;not null;default:''" json:"summary"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (ChatArtifact) TableName() string { return "chat_artifacts" }

type Document struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	ChatID       *uuid.UUID     `gorm:"type:uuid;index" json:"chat_id,omitempty"`
	DocumentType string         `gorm:"type:text;not null;default:'document'" json:"document_type"`
	Title        string         `gorm:"type:text;not null" json:"title"`
	Body         string         `gorm:"type:text;not null;default:''" json:"body"`
	Tags         datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"tags"`
	ImagePrompt  string         `gorm:"type:text;not null;default:''" json:"image_prompt"`
	ImageLink    string         `gorm:"type:text;not null;default:''" json:"image_link"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Document) TableName() string { return "documents" }
