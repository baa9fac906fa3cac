package chatstream

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
)

// scriptedExecutor returns canned outcomes in call order.
type scriptedExecutor struct {
	outcomes []Outcome
	names    []string
}

func (e *scriptedExecutor) Execute(ctx context.Context, name string, args map[string]any, ec ExecContext) Outcome {
	e.names = append(e.names, name)
	if len(e.outcomes) == 0 {
		return Outcome{Status: chat.ToolStatusSuccess, Result: map[string]any{"ok": true}}
	}
	out := e.outcomes[0]
	e.outcomes = e.outcomes[1:]
	return out
}

type orchestratorFixture struct {
	orch      Orchestrator
	model     *fakeModel
	exec      *scriptedExecutor
	chats     *fakeChatRepo
	messages  *fakeMessageRepo
	artifacts *fakeArtifactRepo
	em        *collectEmitter
	userID    uuid.UUID
}

func newOrchestratorFixture(t *testing.T, rounds [][]gemini.Chunk) *orchestratorFixture {
	t.Helper()
	log := mustTestLogger(t)
	f := &orchestratorFixture{
		model:     &fakeModel{rounds: rounds},
		exec:      &scriptedExecutor{},
		chats:     newFakeChatRepo(),
		messages:  &fakeMessageRepo{},
		artifacts: newFakeArtifactRepo(),
		em:        &collectEmitter{},
		userID:    uuid.New(),
	}
	persister := NewPersister(log, f.chats, f.messages, f.artifacts)
	f.orch = NewOrchestrator(log, f.model, f.exec, persister, f.chats, f.messages, f.artifacts, "")
	return f
}

func textChunk(text string) gemini.Chunk {
	return gemini.Chunk{Parts: []gemini.Part{{Text: text}}}
}

func thoughtChunk(text string) gemini.Chunk {
	return gemini.Chunk{Parts: []gemini.Part{{Text: text, Thought: true}}}
}

func callChunk(name string) gemini.Chunk {
	return gemini.Chunk{Parts: []gemini.Part{{FunctionCall: &gemini.FunctionCall{Name: name, Args: map[string]any{}}}}}
}

func lastEvent(f *orchestratorFixture) any {
	if len(f.em.events) == 0 {
		return nil
	}
	return f.em.events[len(f.em.events)-1]
}

func TestStreamSimpleTurnEmitsDeltasAndComplete(t *testing.T) {
	f := newOrchestratorFixture(t, [][]gemini.Chunk{
		{thoughtChunk("considering... "), textChunk("Hello"), textChunk(" there")},
	})

	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, Message: "hi"}, f.em)

	var thoughts, response string
	for _, ev := range f.em.events {
		switch e := ev.(type) {
		case ThoughtEvent:
			thoughts += e.Delta
		case ResponseEvent:
			response += e.Delta
		}
	}
	if thoughts != "considering... " {
		t.Fatalf("thought deltas: got=%q", thoughts)
	}
	if response != "Hello there" {
		t.Fatalf("response deltas: got=%q", response)
	}

	done, ok := lastEvent(f).(CompleteEvent)
	if !ok {
		t.Fatalf("last event should be complete, got %T", lastEvent(f))
	}
	if done.Chat == nil || done.Chat.ID == uuid.Nil {
		t.Fatalf("complete must carry the durable chat row")
	}
	if len(done.Messages) != 2 {
		t.Fatalf("message rows: want=2 got=%d", len(done.Messages))
	}
	if done.Messages[0].Sender != chat.SenderUser || done.Messages[1].Sender != chat.SenderAssistant {
		t.Fatalf("row order: got=[%s %s]", done.Messages[0].Sender, done.Messages[1].Sender)
	}
	if done.Messages[1].Content != "Hello there" {
		t.Fatalf("assistant content: got=%q", done.Messages[1].Content)
	}
}

func TestStreamToolIDsMonotonicAcrossRounds(t *testing.T) {
	f := newOrchestratorFixture(t, [][]gemini.Chunk{
		{textChunk("Working. "), callChunk("contextual_search"), callChunk("create_visual_json")},
		{callChunk("answer_with_sources")},
		{textChunk("Done.")},
	})

	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, Message: "go"}, f.em)

	var startIDs []int
	var resultIDs []int
	for _, ev := range f.em.events {
		switch e := ev.(type) {
		case ToolStartEvent:
			startIDs = append(startIDs, e.Tool.ID)
		case ToolResultEvent:
			resultIDs = append(resultIDs, e.Tool.ID)
		}
	}
	for i, want := range []int{1, 2, 3} {
		if startIDs[i] != want || resultIDs[i] != want {
			t.Fatalf("tool ids must be monotonic from 1: starts=%v results=%v", startIDs, resultIDs)
		}
	}

	done, ok := lastEvent(f).(CompleteEvent)
	if !ok {
		t.Fatalf("last event should be complete, got %T", lastEvent(f))
	}
	content := done.Messages[1].Content
	for _, marker := range []string{"[tool:1]", "[tool:2]", "[tool:3]"} {
		if !strings.Contains(content, marker) {
			t.Fatalf("assistant content missing marker %s: %q", marker, content)
		}
	}
	if f.exec.names[0] != "contextual_search" || f.exec.names[2] != "answer_with_sources" {
		t.Fatalf("tools must run in emission order: %v", f.exec.names)
	}
}

func TestStreamZeroChunkStreamFallsBackToGenerate(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.model.generateResp = &gemini.Chunk{Parts: []gemini.Part{{Text: "fallback answer"}}}

	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, Message: "hi"}, f.em)

	done, ok := lastEvent(f).(CompleteEvent)
	if !ok {
		t.Fatalf("last event should be complete, got %T", lastEvent(f))
	}
	if done.Messages[1].Content != "fallback answer" {
		t.Fatalf("fallback content: got=%q", done.Messages[1].Content)
	}
}

func TestStreamModelFailureCleansUpNewChat(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.model.streamErr = fmt.Errorf("upstream exploded: secret internals")
	f.model.generateErr = f.model.streamErr

	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, Message: "hi"}, f.em)

	errEv, ok := lastEvent(f).(ErrorEvent)
	if !ok {
		t.Fatalf("last event should be error, got %T", lastEvent(f))
	}
	// Raw provider errors never reach the wire.
	if strings.Contains(errEv.Message, "secret internals") {
		t.Fatalf("error event leaked internals: %q", errEv.Message)
	}
	if len(f.chats.rows) != 0 {
		t.Fatalf("newly created chat must be cleaned up, %d rows remain", len(f.chats.rows))
	}
}

func TestStreamExistingChatSurvivesFailure(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	existing, err := f.chats.Create(dbCtx(), &chat.Chat{UserID: f.userID, ChatName: "Keep me"})
	if err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	f.model.streamErr = fmt.Errorf("boom")
	f.model.generateErr = f.model.streamErr

	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, ChatID: &existing.ID, Message: "hi"}, f.em)

	if _, ok := lastEvent(f).(ErrorEvent); !ok {
		t.Fatalf("last event should be error, got %T", lastEvent(f))
	}
	if _, err := f.chats.GetByID(dbCtx(), f.userID, existing.ID); err != nil {
		t.Fatalf("pre-existing chat must never be deleted: %v", err)
	}
}

func TestStreamRejectsEmptyMessage(t *testing.T) {
	f := newOrchestratorFixture(t, nil)
	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, Message: "   "}, f.em)
	if _, ok := lastEvent(f).(ErrorEvent); !ok {
		t.Fatalf("expected error event, got %T", lastEvent(f))
	}
	if len(f.chats.rows) != 0 {
		t.Fatalf("no chat may be created for an empty message")
	}
}

func TestStreamToolErrorFeedsBackAndLoopContinues(t *testing.T) {
	f := newOrchestratorFixture(t, [][]gemini.Chunk{
		{callChunk("generate_image")},
		{textChunk("Recovered without the image.")},
	})
	f.exec.outcomes = []Outcome{{Status: chat.ToolStatusError, Error: "generate_image requires a prompt"}}

	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, Message: "draw"}, f.em)

	var result ToolResultEvent
	found := false
	for _, ev := range f.em.events {
		if e, ok := ev.(ToolResultEvent); ok {
			result = e
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a tool_result event")
	}
	if result.Status != chat.ToolStatusError || result.Error == nil {
		t.Fatalf("tool failure should surface in the event: %+v", result)
	}
	if _, ok := lastEvent(f).(CompleteEvent); !ok {
		t.Fatalf("tool errors must not abort the turn, got %T", lastEvent(f))
	}
}

func TestStreamGroundingReconciledIntoCompleteAndContents(t *testing.T) {
	f := newOrchestratorFixture(t, [][]gemini.Chunk{
		{
			{
				Parts: []gemini.Part{{Text: "Cited claim here."}},
				Grounding: &gemini.GroundingMetadata{
					Chunks: []gemini.GroundingChunk{{URI: "https://src.example/a", Title: "Source A"}},
					Supports: []gemini.GroundingSupport{
						{Text: "Cited claim here.", StartIndex: 0, EndIndex: 17, ChunkIndices: []int{0}},
					},
				},
			},
		},
	})

	f.orch.Stream(context.Background(), StreamRequest{UserID: f.userID, Message: "cite", ToolMode: ModeWebSearch}, f.em)

	done, ok := lastEvent(f).(CompleteEvent)
	if !ok {
		t.Fatalf("last event should be complete, got %T", lastEvent(f))
	}
	if len(done.Sources) != 1 || done.Sources[0].ID != 1 {
		t.Fatalf("sources: got=%+v", done.Sources)
	}
	if !strings.Contains(done.Messages[1].Content, "[[1]](https://src.example/a)") {
		t.Fatalf("persisted content missing citation token: %q", done.Messages[1].Content)
	}
	if !strings.Contains(string(done.Messages[1].ToolContents), chat.ContentGroundingSources) {
		t.Fatalf("tool_contents missing grounding_sources entry: %s", done.Messages[1].ToolContents)
	}
}

func TestStreamChatTitleSanitizedOnCreate(t *testing.T) {
	f := newOrchestratorFixture(t, [][]gemini.Chunk{{textChunk("ok")}})
	f.orch.Stream(context.Background(), StreamRequest{
		UserID:    f.userID,
		Message:   "hi",
		ChatTitle: `  "Quantum   Notes"  `,
	}, f.em)

	done, ok := lastEvent(f).(CompleteEvent)
	if !ok {
		t.Fatalf("last event should be complete, got %T", lastEvent(f))
	}
	if done.Chat.ChatName != "Quantum Notes" {
		t.Fatalf("chat title: want=%q got=%q", "Quantum Notes", done.Chat.ChatName)
	}
}
