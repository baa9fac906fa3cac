package streamclient

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/researchmate-backend/internal/chatstream"
	"github.com/yungbote/researchmate-backend/internal/domain/chat"
)

// ChatView is the client-side projection of a chat row. Temporary chats have a
// TempChatPrefix id until the first complete event promotes them.
type ChatView struct {
	ID               string
	ChatName         string
	IsStarred        bool
	DateLastModified time.Time
}

// MessageView mirrors a message row plus the in-flight accumulators the UI
// renders while the stream is open.
type MessageView struct {
	ID           string
	ChatID       string
	Sender       string
	Content      string
	Thoughts     string
	ToolCalls    []chat.ToolCallRecord
	ToolContents []chat.ToolContentEntry
}

// Store reconstructs optimistic UI state from the event stream. One send is
// in flight at a time per store; events must be applied in arrival order.
type Store struct {
	mu       sync.Mutex
	chats    map[string]*ChatView
	messages map[string][]*MessageView
	selected string

	// in-flight send state
	sendChatID  string
	tempChat    bool
	userMsgID   string
	assistantID string
}

func NewStore() *Store {
	return &Store{
		chats:    map[string]*ChatView{},
		messages: map[string][]*MessageView{},
	}
}

// BeginSend installs the optimistic user and assistant placeholders. An empty
// chatID creates a temporary chat and selects it.
func (s *Store) BeginSend(chatID, userMessage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tempChat = false
	if chatID == "" {
		chatID = NewTempChatID()
		s.tempChat = true
		s.chats[chatID] = &ChatView{ID: chatID, ChatName: "New chat", DateLastModified: time.Now()}
	}
	s.sendChatID = chatID
	s.selected = chatID

	user := &MessageView{
		ID:      nextPlaceholderID(),
		ChatID:  chatID,
		Sender:  chat.SenderUser,
		Content: userMessage,
	}
	assistant := &MessageView{
		ID:     nextPlaceholderID(),
		ChatID: chatID,
		Sender: chat.SenderAssistant,
	}
	s.userMsgID = user.ID
	s.assistantID = assistant.ID
	s.messages[chatID] = append(s.messages[chatID], user, assistant)
}

// Consume decodes and applies events until the stream ends. A transport-level
// read error is treated like a stream error event: optimistic state is
// discarded.
func (s *Store) Consume(r io.Reader) error {
	dec := NewDecoder(r)
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.rollbackSend()
			return err
		}
		if err := s.Apply(ev); err != nil {
			return err
		}
		switch ev.(type) {
		case chatstream.CompleteEvent, chatstream.ErrorEvent:
			return nil
		}
	}
}

func (s *Store) Apply(ev any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case chatstream.ThoughtEvent:
		if m := s.assistantPlaceholder(); m != nil {
			m.Thoughts += e.Delta
		}
	case chatstream.ResponseEvent:
		if m := s.assistantPlaceholder(); m != nil {
			m.Content += e.Delta
		}
	case chatstream.ToolStartEvent:
		s.upsertToolCall(chat.ToolCallRecord{
			ID:     e.Tool.ID,
			Name:   e.Tool.Name,
			Status: chat.ToolStatusPending,
		})
	case chatstream.ToolResultEvent:
		rec := chat.ToolCallRecord{
			ID:     e.Tool.ID,
			Name:   e.Tool.Name,
			Status: e.Status,
			Result: e.Summary,
		}
		if e.Error != nil {
			rec.Error = *e.Error
		}
		s.upsertToolCall(rec)
		if e.Content != nil {
			if m := s.assistantPlaceholder(); m != nil {
				m.ToolContents = chat.MergeToolContent(m.ToolContents, *e.Content)
			}
		}
	case chatstream.CompleteEvent:
		s.reconcile(e)
	case chatstream.ErrorEvent:
		s.discardSendLocked()
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
	return nil
}

// SelectedChat returns the currently selected chat id, empty when none.
func (s *Store) SelectedChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Store) Chat(id string) *ChatView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[id]
}

func (s *Store) Messages(chatID string) []*MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*MessageView(nil), s.messages[chatID]...)
}

func (s *Store) assistantPlaceholder() *MessageView {
	for _, m := range s.messages[s.sendChatID] {
		if m.ID == s.assistantID {
			return m
		}
	}
	return nil
}

func (s *Store) upsertToolCall(rec chat.ToolCallRecord) {
	m := s.assistantPlaceholder()
	if m == nil {
		return
	}
	for i := range m.ToolCalls {
		if m.ToolCalls[i].ID == rec.ID {
			m.ToolCalls[i] = rec
			return
		}
	}
	m.ToolCalls = append(m.ToolCalls, rec)
}

// reconcile swaps the optimistic placeholders for the authoritative rows. The
// match is by chat id, never placeholder id: server ids differ from synthetic
// ones. A temporary chat is promoted in place, keeping selection stable.
func (s *Store) reconcile(e chatstream.CompleteEvent) {
	if e.Chat == nil {
		s.discardSendLocked()
		return
	}
	durableID := e.Chat.ID.String()

	if s.tempChat && s.sendChatID != durableID {
		delete(s.chats, s.sendChatID)
		delete(s.messages, s.sendChatID)
		if s.selected == s.sendChatID {
			s.selected = durableID
		}
	} else {
		// Drop only this send's placeholders from an existing chat.
		kept := s.messages[durableID][:0]
		for _, m := range s.messages[durableID] {
			if m.ID != s.userMsgID && m.ID != s.assistantID {
				kept = append(kept, m)
			}
		}
		s.messages[durableID] = kept
	}

	s.chats[durableID] = &ChatView{
		ID:               durableID,
		ChatName:         e.Chat.ChatName,
		IsStarred:        e.Chat.IsStarred,
		DateLastModified: e.Chat.DateLastModified,
	}
	for _, row := range e.Messages {
		s.messages[durableID] = append(s.messages[durableID], fromRow(row))
	}
	s.clearSendLocked()
}

func fromRow(row *chat.ChatMessage) *MessageView {
	mv := &MessageView{
		ID:       row.ID.String(),
		ChatID:   row.ChatID.String(),
		Sender:   row.Sender,
		Content:  row.Content,
		Thoughts: row.Thoughts,
	}
	// jsonb columns; decode failures leave the slice empty rather than failing
	// the reconciliation.
	_ = unmarshalJSON(row.ToolCalls, &mv.ToolCalls)
	_ = unmarshalJSON(row.ToolContents, &mv.ToolContents)
	return mv
}

func unmarshalJSON(raw datatypes.JSON, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (s *Store) rollbackSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardSendLocked()
}

// discardSendLocked undoes the optimistic send: placeholders go away, and a
// temporary chat disappears entirely with selection reset.
func (s *Store) discardSendLocked() {
	if s.sendChatID == "" {
		return
	}
	if s.tempChat {
		delete(s.chats, s.sendChatID)
		delete(s.messages, s.sendChatID)
		if s.selected == s.sendChatID {
			s.selected = ""
		}
	} else {
		kept := s.messages[s.sendChatID][:0]
		for _, m := range s.messages[s.sendChatID] {
			if m.ID != s.userMsgID && m.ID != s.assistantID {
				kept = append(kept, m)
			}
		}
		s.messages[s.sendChatID] = kept
	}
	s.clearSendLocked()
}

func (s *Store) clearSendLocked() {
	s.sendChatID = ""
	s.tempChat = false
	s.userMsgID = ""
	s.assistantID = ""
}
