package chatstream

import (
	"testing"
)

var researchToolNames = []string{
	"create_document",
	"update_document",
	"generate_image",
	"create_visual_json",
	"create_knowledge_graph_json",
	"timeline_builder",
	"contextual_search",
	"answer_with_sources",
}

func TestResearchModeDeclaresExactlyTheArtifactTools(t *testing.T) {
	tools := ToolsForMode(ModeResearchTools)
	if len(tools) != 1 {
		t.Fatalf("tool group count: want=1 got=%d", len(tools))
	}
	if tools[0].GoogleSearch != nil || tools[0].URLContext != nil {
		t.Fatalf("research mode must not declare web search capabilities")
	}
	decls := tools[0].FunctionDeclarations
	if len(decls) != len(researchToolNames) {
		t.Fatalf("declaration count: want=%d got=%d", len(researchToolNames), len(decls))
	}
	for i, want := range researchToolNames {
		if decls[i].Name != want {
			t.Fatalf("declaration %d: want=%s got=%s", i, want, decls[i].Name)
		}
	}
}

func TestWebSearchModeDeclaresNoFunctions(t *testing.T) {
	// The model cannot call an undeclared function, so excluding the artifact
	// tools here is the entire mode enforcement.
	tools := ToolsForMode(ModeWebSearch)
	var hasSearch, hasURLContext bool
	for _, tool := range tools {
		if len(tool.FunctionDeclarations) != 0 {
			t.Fatalf("web-search mode must not declare artifact tools")
		}
		if tool.GoogleSearch != nil {
			hasSearch = true
		}
		if tool.URLContext != nil {
			hasURLContext = true
		}
	}
	if !hasSearch || !hasURLContext {
		t.Fatalf("web-search mode needs both search and url context: search=%v urlctx=%v", hasSearch, hasURLContext)
	}
}

func TestUnknownModeDefaultsToResearchTools(t *testing.T) {
	tools := ToolsForMode("definitely-not-a-mode")
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != len(researchToolNames) {
		t.Fatalf("unknown mode should behave like research-tools")
	}
}

func TestValidToolMode(t *testing.T) {
	cases := []struct {
		mode string
		want bool
	}{
		{mode: ModeResearchTools, want: true},
		{mode: ModeWebSearch, want: true},
		{mode: "", want: false},
		{mode: "research-tools ", want: false},
		{mode: "both", want: false},
	}
	for _, tc := range cases {
		if got := ValidToolMode(tc.mode); got != tc.want {
			t.Fatalf("ValidToolMode(%q): want=%v got=%v", tc.mode, tc.want, got)
		}
	}
}

func TestRequiredFieldsOnDeclarations(t *testing.T) {
	required := map[string][]string{
		"create_document":             {"title", "body"},
		"update_document":             {"doc_id"},
		"generate_image":              {"prompt", "show_to_user"},
		"create_visual_json":          {"chart_type", "title", "data_points"},
		"create_knowledge_graph_json": {"nodes", "edges"},
		"timeline_builder":            {"title", "timeline_sections"},
		"contextual_search":           {"query"},
		"answer_with_sources":         {"query"},
	}
	for _, decl := range ResearchToolDeclarations() {
		want, ok := required[decl.Name]
		if !ok {
			t.Fatalf("unexpected declaration %q", decl.Name)
		}
		got := decl.Parameters.Required
		if len(got) != len(want) {
			t.Fatalf("%s required: want=%v got=%v", decl.Name, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s required: want=%v got=%v", decl.Name, want, got)
			}
		}
	}
}
