package chatstream

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
)

type executorFixture struct {
	exec      Executor
	docs      *fakeDocumentRepo
	artifacts *fakeArtifactRepo
	images    *fakeImageProvider
	assets    *fakeAssetStore
	search    *fakeSearchGateway
	model     *fakeModel
	ec        ExecContext
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := &executorFixture{
		docs:      newFakeDocumentRepo(),
		artifacts: newFakeArtifactRepo(),
		images:    &fakeImageProvider{},
		assets:    &fakeAssetStore{},
		search:    &fakeSearchGateway{},
		model:     &fakeModel{},
	}
	chatID := uuid.New()
	f.ec = ExecContext{UserID: uuid.New(), ChatID: &chatID}
	f.exec = NewExecutor(mustTestLogger(t), f.docs, f.artifacts, f.images, f.assets, f.search, f.model, "")
	return f
}

func TestExecuteUnknownToolErrors(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "launch_rocket", nil, f.ec)
	if out.Status != chat.ToolStatusError {
		t.Fatalf("status: want=error got=%q", out.Status)
	}
}

func TestCreateDocumentValidatesBeforeWriting(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "create_document", map[string]any{"title": "  "}, f.ec)
	if out.Status != chat.ToolStatusError {
		t.Fatalf("status: want=error got=%q", out.Status)
	}
	if len(f.docs.rows) != 0 {
		t.Fatalf("validation failure must not write rows, got %d", len(f.docs.rows))
	}
}

func TestCreateDocumentGeneratesImageFromPrompt(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "create_document", map[string]any{
		"title":        "Fusion primer",
		"body":         "Plasma basics.",
		"image_prompt": "a tokamak cutaway",
		"tags":         []any{"physics", "energy"},
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	if f.images.calls != 1 || f.assets.saves != 1 {
		t.Fatalf("expected one image generation and upload, got calls=%d saves=%d", f.images.calls, f.assets.saves)
	}
	if out.Content == nil || out.Content.Type != chat.ContentDocumentReference {
		t.Fatalf("expected document_reference content, got %+v", out.Content)
	}
	if out.Content.Document.ImageLink == "" {
		t.Fatalf("generated image link missing from content")
	}
}

func TestCreateDocumentFailsWholeCallWhenImageFails(t *testing.T) {
	f := newExecutorFixture(t)
	f.images.err = context.DeadlineExceeded
	out := f.exec.Execute(context.Background(), "create_document", map[string]any{
		"title":        "Doc",
		"body":         "Body",
		"image_prompt": "anything",
	}, f.ec)
	if out.Status != chat.ToolStatusError {
		t.Fatalf("status: want=error got=%q", out.Status)
	}
	if len(f.docs.rows) != 0 {
		t.Fatalf("no partial document may be created, got %d rows", len(f.docs.rows))
	}
}

func TestUpdateDocumentRequiresAtLeastOneField(t *testing.T) {
	f := newExecutorFixture(t)
	doc := &chat.Document{UserID: f.ec.UserID, Title: "Old"}
	if _, err := f.docs.Create(dbCtx(), doc); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	out := f.exec.Execute(context.Background(), "update_document", map[string]any{
		"doc_id": doc.ID.String(),
	}, f.ec)
	if out.Status != chat.ToolStatusError {
		t.Fatalf("status: want=error got=%q", out.Status)
	}
	if len(f.docs.updates) != 0 {
		t.Fatalf("no update may run, got %d", len(f.docs.updates))
	}
}

func TestUpdateDocumentPatchesOnlySuppliedFields(t *testing.T) {
	f := newExecutorFixture(t)
	doc := &chat.Document{UserID: f.ec.UserID, Title: "Old", DocumentType: "document"}
	if _, err := f.docs.Create(dbCtx(), doc); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	out := f.exec.Execute(context.Background(), "update_document", map[string]any{
		"doc_id": doc.ID.String(),
		"title":  "New title",
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	if len(f.docs.updates) != 1 {
		t.Fatalf("update count: want=1 got=%d", len(f.docs.updates))
	}
	if _, hasBody := f.docs.updates[0]["body"]; hasBody {
		t.Fatalf("absent fields must stay untouched")
	}
	if f.docs.updates[0]["title"] != "New title" {
		t.Fatalf("title update missing: %+v", f.docs.updates[0])
	}
}

func TestGenerateImageRequiresExplicitShowToUser(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "generate_image", map[string]any{
		"prompt": "a red bridge at dawn",
	}, f.ec)
	if out.Status != chat.ToolStatusError {
		t.Fatalf("status: want=error got=%q", out.Status)
	}
	if f.images.calls != 0 {
		t.Fatalf("no image call may happen without show_to_user")
	}

	out = f.exec.Execute(context.Background(), "generate_image", map[string]any{
		"prompt":       "a red bridge at dawn",
		"show_to_user": true,
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	if out.Content == nil || out.Content.Image == nil || !out.Content.Image.ShowToUser {
		t.Fatalf("image content should carry show_to_user=true, got %+v", out.Content)
	}
}

func TestCreateVisualJSONDropsInvalidPoints(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "create_visual_json", map[string]any{
		"chart_type": "pie",
		"title":      "Shares",
		"data_points": []any{
			map[string]any{"label": "A", "value": float64(1)},
			map[string]any{"label": "", "value": float64(2)},
			map[string]any{"label": "B"},
			map[string]any{"label": "C", "value": float64(3)},
			"not a point",
		},
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	if out.Content == nil || out.Content.Artifact == nil {
		t.Fatalf("expected artifact_reference content")
	}
	points, _ := out.Content.Artifact.Data["data_points"].([]map[string]any)
	if len(points) != 2 {
		t.Fatalf("valid point count: want=2 got=%d", len(points))
	}
	if points[0]["label"] != "A" || points[1]["label"] != "C" {
		t.Fatalf("points must keep input order: %+v", points)
	}
	if len(f.artifacts.rows) != 1 {
		t.Fatalf("artifact row count: want=1 got=%d", len(f.artifacts.rows))
	}
	if out.ArtifactID == nil {
		t.Fatalf("artifact id missing from outcome")
	}
}

func TestCreateVisualJSONRejectsAllInvalidPoints(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "create_visual_json", map[string]any{
		"chart_type":  "bar",
		"title":       "Empty",
		"data_points": []any{map[string]any{"label": ""}},
	}, f.ec)
	if out.Status != chat.ToolStatusError {
		t.Fatalf("status: want=error got=%q", out.Status)
	}
	if len(f.artifacts.rows) != 0 {
		t.Fatalf("no artifact may be written")
	}
}

func TestKnowledgeGraphKeepsDanglingEdges(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "create_knowledge_graph_json", map[string]any{
		"nodes": []any{
			map[string]any{"id": "a", "label": "Alpha"},
			map[string]any{"id": "", "label": "dropped"},
		},
		"edges": []any{
			map[string]any{"source": "a", "target": "ghost", "relation": "haunts"},
		},
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	nodes, _ := out.Content.Artifact.Data["nodes"].([]map[string]any)
	edges, _ := out.Content.Artifact.Data["edges"].([]map[string]any)
	if len(nodes) != 1 {
		t.Fatalf("node count: want=1 got=%d", len(nodes))
	}
	if len(edges) != 1 || edges[0]["target"] != "ghost" {
		t.Fatalf("dangling edge must be kept as-is: %+v", edges)
	}
}

func TestTimelineAbortsOnAnyImageFailure(t *testing.T) {
	f := newExecutorFixture(t)
	f.images.err = context.DeadlineExceeded
	out := f.exec.Execute(context.Background(), "timeline_builder", map[string]any{
		"title": "Space race",
		"timeline_sections": []any{
			map[string]any{"title": "Sputnik", "description": "1957", "image_prompt": "satellite"},
			map[string]any{"title": "Apollo", "description": "1969"},
		},
	}, f.ec)
	if out.Status != chat.ToolStatusError {
		t.Fatalf("status: want=error got=%q", out.Status)
	}
	if len(f.artifacts.rows) != 0 {
		t.Fatalf("partial timelines must not be persisted")
	}
}

func TestTimelineAttachesSequentialImages(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "timeline_builder", map[string]any{
		"title": "Space race",
		"timeline_sections": []any{
			map[string]any{"title": "Sputnik", "description": "1957", "image_prompt": "satellite"},
			map[string]any{"title": "Apollo", "description": "1969", "image_prompt": "lander"},
			map[string]any{"title": "no image", "description": "text only"},
		},
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	if f.images.calls != 2 {
		t.Fatalf("image call count: want=2 got=%d", f.images.calls)
	}
	sections, _ := out.Content.Artifact.Data["timeline_sections"].([]map[string]any)
	if len(sections) != 3 {
		t.Fatalf("section count: want=3 got=%d", len(sections))
	}
	if sections[0]["image_url"] == "" || sections[2]["image_url"] != nil {
		t.Fatalf("image urls misplaced: %+v", sections)
	}
}

func TestContextualSearchClampsTopK(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "contextual_search", map[string]any{
		"query": "neural pruning",
		"top_k": float64(9000),
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	// The executor passes the raw value; the gateway clamps. Assert the call
	// went through with what the model asked for.
	if f.search.calls != 1 {
		t.Fatalf("search call count: want=1 got=%d", f.search.calls)
	}
	if out.Content == nil || out.Content.Search == nil {
		t.Fatalf("expected contextual_search content")
	}
}

func TestAnswerWithSourcesNoResultsReturnsCannedAnswer(t *testing.T) {
	f := newExecutorFixture(t)
	out := f.exec.Execute(context.Background(), "answer_with_sources", map[string]any{
		"query": "anything at all",
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	if out.Result["answer"] != noSourcesAnswer {
		t.Fatalf("answer: want canned got=%q", out.Result["answer"])
	}
	if out.Content.Answer == nil || len(out.Content.Answer.Sources) != 0 {
		t.Fatalf("expected empty source list")
	}
}

func TestAnswerWithSourcesReusesSuppliedResults(t *testing.T) {
	f := newExecutorFixture(t)
	f.model.generateResp = &gemini.Chunk{Parts: []gemini.Part{{Text: "Pruning trims weak synapses [1]."}}}
	out := f.exec.Execute(context.Background(), "answer_with_sources", map[string]any{
		"query": "what is pruning",
		"contextual_results": []any{
			map[string]any{"id": "p1", "title": "Synaptic pruning", "passage": "Pruning removes connections.", "score": float64(3)},
			map[string]any{"id": "p2"}, // no passage, dropped
		},
	}, f.ec)
	if out.Status != chat.ToolStatusSuccess {
		t.Fatalf("status: want=success got=%q err=%q", out.Status, out.Error)
	}
	if f.search.calls != 0 {
		t.Fatalf("supplied results must not trigger a new search")
	}
	if out.Content.Answer == nil || len(out.Content.Answer.Sources) != 1 {
		t.Fatalf("source count: want=1 got=%+v", out.Content.Answer)
	}
	if out.Content.Answer.Sources[0].Score != 1 {
		t.Fatalf("score must be clamped to 1, got %v", out.Content.Answer.Sources[0].Score)
	}
	if !strings.Contains(out.Content.Answer.Answer, "[1]") {
		t.Fatalf("answer should cite numbered sources: %q", out.Content.Answer.Answer)
	}
}

func TestToJSONEmptyCollections(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "{}"},
		{name: "nil_string_slice", in: []string(nil), want: "[]"},
		{name: "nil_map", in: map[string]any(nil), want: "{}"},
		{name: "values", in: []string{"a"}, want: `["a"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := string(toJSON(tc.in))
			if got != tc.want {
				t.Fatalf("toJSON: want=%s got=%s", tc.want, got)
			}
		})
	}
}

func TestAsFloatRejectsNonFinite(t *testing.T) {
	if _, ok := asFloat(json.Number("nonsense")); ok {
		t.Fatalf("bad json.Number should not parse")
	}
	if v, ok := asFloat(json.Number("2.5")); !ok || v != 2.5 {
		t.Fatalf("json.Number parse: got v=%v ok=%v", v, ok)
	}
	if _, ok := asFloat("7"); ok {
		t.Fatalf("strings are not numbers")
	}
}
