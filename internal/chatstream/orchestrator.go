package chatstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
	"github.com/yungbote/researchmate-backend/internal/repos"
)

const (
	// maxHistoryMessages bounds how much prior conversation is replayed to
	// the model each turn.
	maxHistoryMessages = 20
	// maxToolRounds caps the outer loop so a misbehaving model cannot spin
	// forever.
	maxToolRounds = 8

	genericStreamError = "Something went wrong while generating the response. Please try again."
)

type StreamRequest struct {
	UserID    uuid.UUID
	ChatID    *uuid.UUID
	Message   string
	ChatTitle string
	ToolMode  string
}

// Orchestrator drives one full conversation turn: streaming model rounds,
// sequential tool execution, grounding reconciliation, and persistence. All
// events are written to the emitter in order; the stream always terminates
// with a complete or error event.
type Orchestrator interface {
	Stream(ctx context.Context, req StreamRequest, em Emitter)
}

type orchestrator struct {
	log       *logger.Logger
	model     gemini.Client
	exec      Executor
	persister Persister
	chats     repos.ChatRepo
	messages  repos.ChatMessageRepo
	artifacts repos.ChatArtifactRepo
	chatModel string
}

func NewOrchestrator(
	log *logger.Logger,
	model gemini.Client,
	exec Executor,
	persister Persister,
	chats repos.ChatRepo,
	messages repos.ChatMessageRepo,
	artifacts repos.ChatArtifactRepo,
	chatModel string,
) Orchestrator {
	if strings.TrimSpace(chatModel) == "" {
		chatModel = gemini.DefaultChatModel
	}
	return &orchestrator{
		log:       log.With("service", "ChatOrchestrator"),
		model:     model,
		exec:      exec,
		persister: persister,
		chats:     chats,
		messages:  messages,
		artifacts: artifacts,
		chatModel: chatModel,
	}
}

// turnState is the explicit accumulator for one request. Text fields are
// append-only; tool ids are monotonic starting at 1 and continue across
// rounds.
type turnState struct {
	content     string
	thoughts    string
	nextToolID  int
	records     []chat.ToolCallRecord
	contents    []chat.ToolContentEntry
	artifactIDs []uuid.UUID
	grounding   *GroundingState
}

func (o *orchestrator) Stream(ctx context.Context, req StreamRequest, em Emitter) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		o.emitError(em, "message is required")
		return
	}
	mode := req.ToolMode
	if !ValidToolMode(mode) {
		mode = ModeResearchTools
	}
	log := o.log.With("user_id", req.UserID, "tool_mode", mode)
	dbc := dbctx.Context{Ctx: ctx}

	// Resolve or eagerly create the chat: tools need a durable chat id for
	// artifact rows and asset paths before persistence runs.
	var chatRow *chat.Chat
	newlyCreated := false
	if req.ChatID != nil {
		existing, err := o.chats.GetByID(dbc, req.UserID, *req.ChatID)
		if err != nil {
			log.Warn("Chat lookup failed", "chat_id", req.ChatID, "error", err)
			o.emitError(em, "chat not found")
			return
		}
		chatRow = existing
	} else {
		title := SanitizeTitle(req.ChatTitle)
		if title == "" {
			title = FallbackTitle
		}
		created, err := o.chats.Create(dbc, &chat.Chat{UserID: req.UserID, ChatName: title})
		if err != nil {
			log.Error("Chat creation failed", "error", err)
			o.emitError(em, genericStreamError)
			return
		}
		chatRow = created
		newlyCreated = true
	}
	log = log.With("chat_id", chatRow.ID)

	history, err := o.buildHistory(dbc, chatRow, req.ChatID != nil)
	if err != nil {
		log.Error("History load failed", "error", err)
		o.fail(ctx, em, chatRow, newlyCreated)
		return
	}
	history = append(history, gemini.TextMessage(gemini.RoleUser, message))

	st := &turnState{nextToolID: 1, grounding: NewGroundingState()}
	ec := ExecContext{UserID: req.UserID, ChatID: &chatRow.ID}
	tools := ToolsForMode(mode)

	for round := 0; round < maxToolRounds; round++ {
		roundCalls, err := o.streamRound(ctx, history, tools, mode, st, em)
		if err != nil {
			log.Error("Model round failed", "round", round, "error", err)
			o.fail(ctx, em, chatRow, newlyCreated)
			return
		}
		if len(roundCalls) == 0 {
			break
		}

		for _, call := range roundCalls {
			id := st.nextToolID
			st.nextToolID++
			ref := ToolRef{ID: id, Name: call.Name}

			if err := em.Emit(NewToolStartEvent(ref)); err != nil {
				log.Warn("Emit failed mid-stream", "error", err)
			}

			// The marker anchors the tool's rich block positionally in the
			// rendered markdown; the client resolves it by id.
			marker := fmt.Sprintf("\n\n[tool:%d]\n\n", id)
			st.content += marker
			_ = em.Emit(NewResponseEvent(marker))

			outcome := o.exec.Execute(ctx, call.Name, call.Args, ec)

			rec := chat.ToolCallRecord{
				ID:     id,
				Name:   call.Name,
				Status: outcome.Status,
				Args:   call.Args,
				Result: outcome.Result,
				Error:  outcome.Error,
			}
			st.records = append(st.records, rec)

			var content *chat.ToolContentEntry
			if outcome.Content != nil {
				c := *outcome.Content
				c.ToolID = id
				st.contents = chat.MergeToolContent(st.contents, c)
				content = &c
			}
			if outcome.ArtifactID != nil {
				st.artifactIDs = append(st.artifactIDs, *outcome.ArtifactID)
			}

			_ = em.Emit(NewToolResultEvent(ref, outcome.Status, outcome.Result, outcome.Error, content))

			// Feed the call and its result back so the next round sees them.
			fc := call
			history = append(history, gemini.Message{
				Role:  gemini.RoleModel,
				Parts: []gemini.Part{{FunctionCall: &fc}},
			})
			payload := any(outcome.Result)
			if outcome.Status == chat.ToolStatusError {
				payload = map[string]any{"error": outcome.Error}
			}
			history = append(history, gemini.Message{
				Role: gemini.RoleUser,
				Parts: []gemini.Part{{FunctionResponse: &gemini.FunctionResponse{
					Name:     call.Name,
					Response: map[string]any{"result": payload},
				}}},
			})
		}
	}

	if strings.TrimSpace(st.content) == "" && len(st.records) == 0 {
		log.Warn("Model produced no output")
		o.fail(ctx, em, chatRow, newlyCreated)
		return
	}

	finalText, sources := st.grounding.Reconcile(st.content)
	if len(sources) > 0 {
		st.contents = chat.MergeToolContent(st.contents, chat.ToolContentEntry{
			Type:    chat.ContentGroundingSources,
			Sources: sources,
		})
	}

	result, err := o.persister.Persist(ctx, PersistInput{
		ChatID:            &chatRow.ID,
		NewlyCreated:      newlyCreated,
		UserID:            req.UserID,
		ChatTitle:         chatRow.ChatName,
		UserMessage:       message,
		AssistantMessage:  finalText,
		AssistantThoughts: st.thoughts,
		ToolCalls:         st.records,
		ToolContents:      st.contents,
		ArtifactIDs:       st.artifactIDs,
	})
	if err != nil {
		log.Error("Persistence failed", "error", err)
		// The persister already rolled back a newly created chat.
		o.emitError(em, genericStreamError)
		return
	}

	_ = em.Emit(NewCompleteEvent(result.Chat, result.Messages, st.thoughts, sources))
}

// streamRound runs one streaming generation request, forwarding deltas as
// they arrive and collecting the round's function calls. A zero-chunk stream
// falls back to a single non-streaming call.
func (o *orchestrator) streamRound(ctx context.Context, history []gemini.Message, tools []*genai.Tool, mode string, st *turnState, em Emitter) ([]gemini.FunctionCall, error) {
	var calls []gemini.FunctionCall
	consume := func(ch gemini.Chunk) error {
		st.grounding.Merge(ch.Grounding)
		st.grounding.MergeURLContext(ch.URLContext)
		for _, p := range ch.Parts {
			if p.FunctionCall != nil {
				calls = append(calls, *p.FunctionCall)
				continue
			}
			if p.Text == "" {
				continue
			}
			if p.Thought {
				st.thoughts += p.Text
				if err := em.Emit(NewThoughtEvent(p.Text)); err != nil {
					return err
				}
				continue
			}
			st.content += p.Text
			if err := em.Emit(NewResponseEvent(p.Text)); err != nil {
				return err
			}
		}
		return nil
	}

	req := gemini.Request{
		Model:           o.chatModel,
		System:          systemPrompt(mode),
		Contents:        history,
		Tools:           tools,
		IncludeThoughts: true,
	}
	n, err := o.model.GenerateStream(ctx, req, consume)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		resp, err := o.model.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := consume(*resp); err != nil {
			return nil, err
		}
	}
	return calls, nil
}

func (o *orchestrator) buildHistory(dbc dbctx.Context, chatRow *chat.Chat, existing bool) ([]gemini.Message, error) {
	if !existing {
		return nil, nil
	}
	rows, err := o.messages.ListRecent(dbc, chatRow.ID, maxHistoryMessages)
	if err != nil {
		return nil, err
	}
	out := make([]gemini.Message, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Content) == "" {
			continue
		}
		role := gemini.RoleUser
		if row.Sender == chat.SenderAssistant {
			role = gemini.RoleModel
		}
		out = append(out, gemini.TextMessage(role, row.Content))
	}
	return out, nil
}

// fail emits the terminal error event and cleans up a chat that was created
// for this request. Cleanup is best-effort; failures are logged only.
func (o *orchestrator) fail(ctx context.Context, em Emitter, chatRow *chat.Chat, newlyCreated bool) {
	o.emitError(em, genericStreamError)
	if !newlyCreated || chatRow == nil {
		return
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := o.artifacts.DeleteByChat(dbc, chatRow.ID); err != nil {
		o.log.Warn("Failed to clean up artifacts for abandoned chat", "chat_id", chatRow.ID, "error", err)
	}
	if err := o.chats.Delete(dbc, chatRow.UserID, chatRow.ID); err != nil {
		o.log.Warn("Failed to clean up abandoned chat", "chat_id", chatRow.ID, "error", err)
	}
}

func (o *orchestrator) emitError(em Emitter, message string) {
	_ = em.Emit(NewErrorEvent(message))
}

func systemPrompt(mode string) string {
	base := "You are a research assistant. Be precise, cite what you know, and keep answers well structured markdown."
	switch mode {
	case ModeWebSearch:
		return base + " Use web search and URL context to ground every factual claim in current sources."
	default:
		return base + "\n\nTOOLBOX HINTS\n" +
			"- create_document: persist polished narrative content with a descriptive title and tags.\n" +
			"- update_document: revise an existing document; only send fields that differ.\n" +
			"- generate_image: craft a vivid prompt when a fresh visual helps; decide show_to_user explicitly.\n" +
			"- create_visual_json: emit a concise dataset (<= 20 points) for pie, bar, or line charts.\n" +
			"- create_knowledge_graph_json: capture entities and relationships for an interactive graph.\n" +
			"- timeline_builder: lay out milestones chronologically with rich descriptions.\n" +
			"- contextual_search: look up the user's indexed research passages.\n" +
			"- answer_with_sources: answer strictly from indexed passages with numbered citations."
	}
}
