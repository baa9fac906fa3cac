package chatstream

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
	"github.com/yungbote/researchmate-backend/internal/repos"
)

type PersistInput struct {
	ChatID *uuid.UUID
	// NewlyCreated marks a chat created for this request; it is the rollback
	// target when the message batch cannot land completely.
	NewlyCreated      bool
	UserID            uuid.UUID
	ChatTitle         string
	UserMessage       string
	AssistantMessage  string
	AssistantThoughts string
	ToolCalls         []chat.ToolCallRecord
	ToolContents      []chat.ToolContentEntry
	ArtifactIDs       []uuid.UUID
}

type PersistResult struct {
	Chat     *chat.Chat
	Messages []*chat.ChatMessage
}

// Persister commits one conversation turn: both message rows in a single
// batch, chat creation when needed, and rollback of a newly created chat on
// partial failure. A chat is never left holding a user message without its
// paired assistant reply.
type Persister interface {
	Persist(ctx context.Context, in PersistInput) (*PersistResult, error)
}

type persister struct {
	log       *logger.Logger
	chats     repos.ChatRepo
	messages  repos.ChatMessageRepo
	artifacts repos.ChatArtifactRepo
}

func NewPersister(log *logger.Logger, chats repos.ChatRepo, messages repos.ChatMessageRepo, artifacts repos.ChatArtifactRepo) Persister {
	return &persister{
		log:       log.With("service", "ChatPersister"),
		chats:     chats,
		messages:  messages,
		artifacts: artifacts,
	}
}

func (p *persister) Persist(ctx context.Context, in PersistInput) (*PersistResult, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	dbc := dbctx.Context{Ctx: ctx}

	var chatRow *chat.Chat
	newlyCreated := in.NewlyCreated
	if in.ChatID == nil {
		title := SanitizeTitle(in.ChatTitle)
		if title == "" {
			title = FallbackTitle
		}
		created, err := p.chats.Create(dbc, &chat.Chat{UserID: in.UserID, ChatName: title})
		if err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
		chatRow = created
		newlyCreated = true
	} else {
		existing, err := p.chats.GetByID(dbc, in.UserID, *in.ChatID)
		if err != nil {
			return nil, fmt.Errorf("resolve chat: %w", err)
		}
		chatRow = existing
	}

	now := time.Now().UTC()
	userRow := &chat.ChatMessage{
		ChatID:       chatRow.ID,
		Sender:       chat.SenderUser,
		Content:      in.UserMessage,
		ToolCalls:    toJSON([]chat.ToolCallRecord{}),
		ToolContents: toJSON([]chat.ToolContentEntry{}),
		CreatedAt:    now,
	}
	toolCalls := in.ToolCalls
	if toolCalls == nil {
		toolCalls = []chat.ToolCallRecord{}
	}
	toolContents := in.ToolContents
	if toolContents == nil {
		toolContents = []chat.ToolContentEntry{}
	}
	assistantRow := &chat.ChatMessage{
		ChatID:       chatRow.ID,
		Sender:       chat.SenderAssistant,
		Content:      in.AssistantMessage,
		Thoughts:     in.AssistantThoughts,
		ToolCalls:    toJSON(toolCalls),
		ToolContents: toJSON(toolContents),
		CreatedAt:    now.Add(time.Millisecond),
	}

	inserted, err := p.messages.CreateBatch(dbc, []*chat.ChatMessage{userRow, assistantRow})
	if err != nil {
		p.rollbackNewChat(dbc, chatRow, newlyCreated)
		return nil, fmt.Errorf("insert messages: %w", err)
	}
	if len(inserted) < 2 {
		p.rollbackNewChat(dbc, chatRow, newlyCreated)
		return nil, fmt.Errorf("incomplete message insert: got %d of 2 rows", len(inserted))
	}

	newest := inserted[len(inserted)-1].CreatedAt
	if err := p.chats.UpdateFields(dbc, in.UserID, chatRow.ID, map[string]interface{}{
		"date_last_modified": newest,
	}); err != nil {
		p.log.Warn("Failed to bump chat date_last_modified", "chat_id", chatRow.ID, "error", err)
	} else {
		chatRow.DateLastModified = newest
	}

	// Artifact rows were created mid-stream, before the assistant message
	// existed; linking is best-effort and never fails the turn.
	if len(in.ArtifactIDs) > 0 {
		if err := p.artifacts.LinkToMessage(dbc, in.ArtifactIDs, assistantRow.ID); err != nil {
			p.log.Warn("Failed to link artifacts to message",
				"message_id", assistantRow.ID, "artifact_count", len(in.ArtifactIDs), "error", err)
		}
	}

	return &PersistResult{Chat: chatRow, Messages: inserted}, nil
}

// rollbackNewChat removes a chat created for this request. Pre-existing chats
// are never deleted on failure.
func (p *persister) rollbackNewChat(dbc dbctx.Context, chatRow *chat.Chat, newlyCreated bool) {
	if !newlyCreated || chatRow == nil {
		return
	}
	if err := p.chats.Delete(dbc, chatRow.UserID, chatRow.ID); err != nil {
		p.log.Warn("Failed to roll back newly created chat", "chat_id", chatRow.ID, "error", err)
	}
}
