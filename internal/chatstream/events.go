package chatstream

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
)

// Wire events for the NDJSON stream, one JSON object per line. The stream
// terminates after a complete or error event; no further lines follow either.

type ToolRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ThoughtEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type ResponseEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type ToolStartEvent struct {
	Type string  `json:"type"`
	Tool ToolRef `json:"tool"`
}

type ToolResultEvent struct {
	Type    string                 `json:"type"`
	Tool    ToolRef                `json:"tool"`
	Status  string                 `json:"status"`
	Summary map[string]any         `json:"summary"`
	Error   *string                `json:"error"`
	Content *chat.ToolContentEntry `json:"content"`
}

type CompleteEvent struct {
	Type     string                 `json:"type"`
	Chat     *chat.Chat             `json:"chat"`
	Messages []*chat.ChatMessage    `json:"messages"`
	Thoughts string                 `json:"thoughts"`
	Sources  []chat.GroundingSource `json:"sources"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewThoughtEvent(delta string) ThoughtEvent {
	return ThoughtEvent{Type: "thought", Delta: delta}
}

func NewResponseEvent(delta string) ResponseEvent {
	return ResponseEvent{Type: "response", Delta: delta}
}

func NewToolStartEvent(ref ToolRef) ToolStartEvent {
	return ToolStartEvent{Type: "tool_start", Tool: ref}
}

func NewToolResultEvent(ref ToolRef, status string, summary map[string]any, errMsg string, content *chat.ToolContentEntry) ToolResultEvent {
	ev := ToolResultEvent{Type: "tool_result", Tool: ref, Status: status, Summary: summary, Content: content}
	if errMsg != "" {
		ev.Error = &errMsg
	}
	return ev
}

func NewCompleteEvent(c *chat.Chat, messages []*chat.ChatMessage, thoughts string, sources []chat.GroundingSource) CompleteEvent {
	if sources == nil {
		sources = []chat.GroundingSource{}
	}
	return CompleteEvent{Type: "complete", Chat: c, Messages: messages, Thoughts: thoughts, Sources: sources}
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}

// Emitter delivers stream events to the client in order.
type Emitter interface {
	Emit(event any) error
}

// NDJSONEmitter writes each event as one JSON line, flushing after every
// write so deltas reach the client immediately.
type NDJSONEmitter struct {
	w io.Writer
}

func NewNDJSONEmitter(w io.Writer) *NDJSONEmitter {
	return &NDJSONEmitter{w: w}
}

func (e *NDJSONEmitter) Emit(event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(append(raw, '\n')); err != nil {
		return err
	}
	if f, ok := e.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
