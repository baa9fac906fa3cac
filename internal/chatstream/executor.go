package chatstream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/researchmate-backend/internal/assets"
	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/freepik"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
	"github.com/yungbote/researchmate-backend/internal/repos"
	"github.com/yungbote/researchmate-backend/internal/search"
)

// ExecContext carries the identity scope for one tool invocation.
type ExecContext struct {
	UserID uuid.UUID
	ChatID *uuid.UUID
}

// Outcome is the structured result of one tool call. Result is the compact
// model-facing payload fed back as the function response; Content is the rich
// UI-facing reference. ArtifactID is set when the call created an artifact
// row that should later be linked to the assistant message.
type Outcome struct {
	Status     string
	Result     map[string]any
	Content    *chat.ToolContentEntry
	Error      string
	ArtifactID *uuid.UUID
}

func errorOutcome(format string, args ...any) Outcome {
	return Outcome{Status: chat.ToolStatusError, Error: fmt.Sprintf(format, args...)}
}

type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any, ec ExecContext) Outcome
}

type executor struct {
	log       *logger.Logger
	docs      repos.DocumentRepo
	artifacts repos.ChatArtifactRepo
	images    freepik.Client
	assets    assets.Store
	search    search.Gateway
	model     gemini.Client
	liteModel string
}

func NewExecutor(
	log *logger.Logger,
	docs repos.DocumentRepo,
	artifacts repos.ChatArtifactRepo,
	images freepik.Client,
	assetStore assets.Store,
	searchGateway search.Gateway,
	model gemini.Client,
	liteModel string,
) Executor {
	if strings.TrimSpace(liteModel) == "" {
		liteModel = gemini.DefaultLiteModel
	}
	return &executor{
		log:       log.With("service", "ToolExecutor"),
		docs:      docs,
		artifacts: artifacts,
		images:    images,
		assets:    assetStore,
		search:    searchGateway,
		model:     model,
		liteModel: liteModel,
	}
}

// Execute validates arguments before any side effect. Failures come back as
// error outcomes, never panics; the conversation always continues.
func (e *executor) Execute(ctx context.Context, name string, args map[string]any, ec ExecContext) Outcome {
	if args == nil {
		args = map[string]any{}
	}
	switch name {
	case "create_document":
		return e.createDocument(ctx, args, ec)
	case "update_document":
		return e.updateDocument(ctx, args, ec)
	case "generate_image":
		return e.generateImage(ctx, args, ec)
	case "create_visual_json":
		return e.createVisualJSON(ctx, args, ec)
	case "create_knowledge_graph_json":
		return e.createKnowledgeGraph(ctx, args, ec)
	case "timeline_builder":
		return e.buildTimeline(ctx, args, ec)
	case "contextual_search":
		return e.contextualSearch(ctx, args, ec)
	case "answer_with_sources":
		return e.answerWithSources(ctx, args, ec)
	default:
		return errorOutcome("unknown tool %q", name)
	}
}

// -------------------- documents --------------------

func (e *executor) createDocument(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	title := strings.TrimSpace(argString(args, "title"))
	body := argString(args, "body")
	if title == "" {
		return errorOutcome("create_document requires a title")
	}
	if strings.TrimSpace(body) == "" {
		return errorOutcome("create_document requires a body")
	}

	docType := argString(args, "document_type")
	switch docType {
	case "document", "translation", "other":
	default:
		docType = "document"
	}

	imageLink := strings.TrimSpace(argString(args, "image_link"))
	imagePrompt := strings.TrimSpace(argString(args, "image_prompt"))
	if imageLink == "" && imagePrompt != "" {
		asset, err := e.generateAndStoreImage(ctx, ec, imagePrompt, argString(args, "image_aspect_ratio"))
		if err != nil {
			return errorOutcome("create_document image generation failed: %v", err)
		}
		imageLink = asset.SignedURL
	}

	row := &chat.Document{
		UserID:       ec.UserID,
		ChatID:       ec.ChatID,
		DocumentType: docType,
		Title:        title,
		Body:         body,
		Tags:         toJSON(argStringSlice(args, "tags")),
		ImagePrompt:  imagePrompt,
		ImageLink:    imageLink,
		Metadata:     toJSON(argMap(args, "metadata")),
	}
	if _, err := e.docs.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
		return errorOutcome("create_document failed: %v", err)
	}

	return Outcome{
		Status: chat.ToolStatusSuccess,
		Result: map[string]any{
			"document_id":   row.ID.String(),
			"title":         row.Title,
			"document_type": row.DocumentType,
		},
		Content: &chat.ToolContentEntry{
			Type: chat.ContentDocumentReference,
			Document: &chat.DocumentReference{
				DocumentID:   row.ID.String(),
				Title:        row.Title,
				DocumentType: row.DocumentType,
				ImageLink:    row.ImageLink,
			},
		},
	}
}

func (e *executor) updateDocument(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	docID, err := uuid.Parse(strings.TrimSpace(argString(args, "doc_id")))
	if err != nil {
		return errorOutcome("update_document requires a valid doc_id")
	}

	updates := map[string]interface{}{}
	var updated []string
	if v, ok := args["title"].(string); ok && strings.TrimSpace(v) != "" {
		updates["title"] = strings.TrimSpace(v)
		updated = append(updated, "title")
	}
	if v, ok := args["body"].(string); ok && strings.TrimSpace(v) != "" {
		updates["body"] = v
		updated = append(updated, "body")
	}
	if v, ok := args["document_type"].(string); ok {
		switch v {
		case "document", "translation", "other":
			updates["document_type"] = v
			updated = append(updated, "document_type")
		}
	}
	if _, ok := args["tags"]; ok {
		updates["tags"] = toJSON(argStringSlice(args, "tags"))
		updated = append(updated, "tags")
	}
	if _, ok := args["metadata"]; ok {
		updates["metadata"] = toJSON(argMap(args, "metadata"))
		updated = append(updated, "metadata")
	}
	imagePrompt := strings.TrimSpace(argString(args, "image_prompt"))
	imageLink := strings.TrimSpace(argString(args, "image_link"))
	if imagePrompt != "" {
		updates["image_prompt"] = imagePrompt
		updated = append(updated, "image_prompt")
	}
	if imageLink != "" {
		updates["image_link"] = imageLink
		updated = append(updated, "image_link")
	}
	if len(updates) == 0 {
		return errorOutcome("update_document requires at least one field to change")
	}

	// Ownership check before any write; also provides current values for the
	// content reference.
	existing, err := e.docs.GetByID(dbctx.Context{Ctx: ctx}, ec.UserID, docID)
	if err != nil {
		return errorOutcome("update_document: document not found")
	}

	if imageLink == "" && imagePrompt != "" {
		asset, genErr := e.generateAndStoreImage(ctx, ec, imagePrompt, argString(args, "image_aspect_ratio"))
		if genErr != nil {
			return errorOutcome("update_document image generation failed: %v", genErr)
		}
		updates["image_link"] = asset.SignedURL
		updated = append(updated, "image_link")
	}

	if err := e.docs.UpdateFields(dbctx.Context{Ctx: ctx}, ec.UserID, docID, updates); err != nil {
		return errorOutcome("update_document failed: %v", err)
	}

	title := existing.Title
	if v, ok := updates["title"].(string); ok {
		title = v
	}
	docType := existing.DocumentType
	if v, ok := updates["document_type"].(string); ok {
		docType = v
	}
	link := existing.ImageLink
	if v, ok := updates["image_link"].(string); ok {
		link = v
	}

	return Outcome{
		Status: chat.ToolStatusSuccess,
		Result: map[string]any{
			"document_id":    docID.String(),
			"updated_fields": updated,
		},
		Content: &chat.ToolContentEntry{
			Type: chat.ContentDocumentReference,
			Document: &chat.DocumentReference{
				DocumentID:   docID.String(),
				Title:        title,
				DocumentType: docType,
				ImageLink:    link,
			},
		},
	}
}

// -------------------- images --------------------

func (e *executor) generateImage(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	prompt := strings.TrimSpace(argString(args, "prompt"))
	if prompt == "" {
		return errorOutcome("generate_image requires a prompt")
	}
	// show_to_user has no default: it gates inline rendering and the model
	// must decide it explicitly.
	showToUser, ok := args["show_to_user"].(bool)
	if !ok {
		return errorOutcome("generate_image requires show_to_user (true or false)")
	}

	asset, err := e.generateAndStoreImage(ctx, ec, prompt, argString(args, "aspect_ratio"))
	if err != nil {
		return errorOutcome("generate_image failed: %v", err)
	}

	return Outcome{
		Status: chat.ToolStatusSuccess,
		Result: map[string]any{
			"signed_url":   asset.SignedURL,
			"path":         asset.Path,
			"show_to_user": showToUser,
		},
		Content: &chat.ToolContentEntry{
			Type: chat.ContentImageAsset,
			Image: &chat.ImageAsset{
				Bucket:      asset.Bucket,
				Path:        asset.Path,
				SignedURL:   asset.SignedURL,
				ExpiresAt:   asset.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				ContentType: asset.ContentType,
				Prompt:      prompt,
				ShowToUser:  showToUser,
			},
		},
	}
}

func (e *executor) generateAndStoreImage(ctx context.Context, ec ExecContext, prompt, aspectRatio string) (*assets.Asset, error) {
	if e.images == nil || e.assets == nil {
		return nil, fmt.Errorf("image generation is not configured")
	}
	img, err := e.images.GenerateImage(ctx, prompt, aspectRatio)
	if err != nil {
		return nil, err
	}
	chatID := ""
	if ec.ChatID != nil {
		chatID = ec.ChatID.String()
	}
	return e.assets.SaveImage(ctx, ec.UserID, chatID, img.Bytes, img.MimeType)
}

// -------------------- artifacts --------------------

func (e *executor) createVisualJSON(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	chartType := argString(args, "chart_type")
	switch chartType {
	case "pie", "bar", "line":
	default:
		return errorOutcome("create_visual_json requires chart_type of pie, bar, or line")
	}
	title := strings.TrimSpace(argString(args, "title"))
	if title == "" {
		return errorOutcome("create_visual_json requires a title")
	}

	// Malformed points are dropped, not rejected; partial model output still
	// yields a chart as long as one point survives.
	var points []map[string]any
	for _, raw := range argAnySlice(args, "data_points") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label, _ := m["label"].(string)
		value, numOK := asFloat(m["value"])
		if strings.TrimSpace(label) == "" || !numOK {
			continue
		}
		points = append(points, map[string]any{"label": label, "value": value})
	}
	if len(points) == 0 {
		return errorOutcome("create_visual_json requires at least one valid data point")
	}

	data := map[string]any{
		"chart_type":  chartType,
		"title":       title,
		"data_points": points,
	}
	return e.storeArtifact(ctx, ec, "visual_json", title, argStringSlice(args, "tags"), data,
		fmt.Sprintf("%s chart with %d data points", chartType, len(points)))
}

func (e *executor) createKnowledgeGraph(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	var nodes []map[string]any
	for _, raw := range argAnySlice(args, "nodes") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		label, _ := m["label"].(string)
		if strings.TrimSpace(id) == "" || strings.TrimSpace(label) == "" {
			continue
		}
		node := map[string]any{"id": id, "label": label}
		if t, ok := m["type"].(string); ok && t != "" {
			node["type"] = t
		}
		nodes = append(nodes, node)
	}

	// Edges referencing unknown node ids are kept as-is; the UI tolerates
	// dangling edges.
	var edges []map[string]any
	for _, raw := range argAnySlice(args, "edges") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		source, _ := m["source"].(string)
		target, _ := m["target"].(string)
		if strings.TrimSpace(source) == "" || strings.TrimSpace(target) == "" {
			continue
		}
		edge := map[string]any{"source": source, "target": target}
		if rel, ok := m["relation"].(string); ok && rel != "" {
			edge["relation"] = rel
		}
		edges = append(edges, edge)
	}

	if len(nodes) == 0 || len(edges) == 0 {
		return errorOutcome("create_knowledge_graph_json requires at least one valid node and one valid edge")
	}

	title := "Knowledge graph"
	if ctxText := strings.TrimSpace(argString(args, "context")); ctxText != "" {
		title = firstLine(ctxText, 80)
	}
	data := map[string]any{
		"nodes":   nodes,
		"edges":   edges,
		"context": argString(args, "context"),
	}
	return e.storeArtifact(ctx, ec, "knowledge_graph", title, argStringSlice(args, "tags"), data,
		fmt.Sprintf("knowledge graph with %d nodes and %d edges", len(nodes), len(edges)))
}

func (e *executor) buildTimeline(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	title := strings.TrimSpace(argString(args, "title"))
	if title == "" {
		return errorOutcome("timeline_builder requires a title")
	}

	type section struct {
		Title       string
		Description string
		ImagePrompt string
	}
	var sections []section
	for _, raw := range argAnySlice(args, "timeline_sections") {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		st, _ := m["title"].(string)
		desc, _ := m["description"].(string)
		if strings.TrimSpace(st) == "" || strings.TrimSpace(desc) == "" {
			continue
		}
		prompt, _ := m["image_prompt"].(string)
		sections = append(sections, section{Title: st, Description: desc, ImagePrompt: strings.TrimSpace(prompt)})
	}
	if len(sections) == 0 {
		return errorOutcome("timeline_builder requires at least one valid section")
	}

	// Section images run sequentially; a single failure aborts the whole
	// call so partial timelines are never persisted.
	out := make([]map[string]any, 0, len(sections))
	for i, s := range sections {
		entry := map[string]any{"title": s.Title, "description": s.Description}
		if s.ImagePrompt != "" {
			asset, err := e.generateAndStoreImage(ctx, ec, s.ImagePrompt, "")
			if err != nil {
				return errorOutcome("timeline_builder image for section %d failed: %v", i+1, err)
			}
			entry["image_prompt"] = s.ImagePrompt
			entry["image_url"] = asset.SignedURL
		}
		out = append(out, entry)
	}

	data := map[string]any{
		"title":             title,
		"timeline_sections": out,
	}
	return e.storeArtifact(ctx, ec, "timeline", title, argStringSlice(args, "tags"), data,
		fmt.Sprintf("timeline with %d sections", len(out)))
}

func (e *executor) storeArtifact(ctx context.Context, ec ExecContext, artifactType, title string, tags []string, data map[string]any, summary string) Outcome {
	row := &chat.ChatArtifact{
		ChatID:       ec.ChatID,
		UserID:       ec.UserID,
		ArtifactType: artifactType,
		Title:        title,
		Tags:         toJSON(tags),
		Content:      toJSON(data),
		Summary:      summary,
	}
	if _, err := e.artifacts.Create(dbctx.Context{Ctx: ctx}, row); err != nil {
		return errorOutcome("failed to store %s artifact: %v", artifactType, err)
	}
	id := row.ID
	return Outcome{
		Status: chat.ToolStatusSuccess,
		Result: map[string]any{
			"artifact_id":   id.String(),
			"artifact_type": artifactType,
			"title":         title,
		},
		Content: &chat.ToolContentEntry{
			Type: chat.ContentArtifactReference,
			Artifact: &chat.ArtifactReference{
				ArtifactID:   id.String(),
				ArtifactType: artifactType,
				Title:        title,
				Summary:      summary,
				Data:         data,
			},
		},
		ArtifactID: &id,
	}
}

// -------------------- search --------------------

func (e *executor) contextualSearch(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	query := strings.TrimSpace(argString(args, "query"))
	if query == "" {
		return errorOutcome("contextual_search requires a query")
	}
	topK := 0
	if v, ok := asFloat(args["top_k"]); ok {
		topK = int(v)
	}

	results, err := e.search.Search(ctx, ec.UserID, query, topK)
	if err != nil {
		return errorOutcome("contextual_search failed: %v", err)
	}

	return Outcome{
		Status: chat.ToolStatusSuccess,
		Result: map[string]any{
			"query":        query,
			"result_count": len(results),
			"results":      searchResultsPayload(results),
		},
		Content: &chat.ToolContentEntry{
			Type:   chat.ContentContextualSearch,
			Search: &chat.ContextualSearch{Query: query, Results: results},
		},
	}
}

const noSourcesAnswer = "No relevant sources were found to answer this question."

func (e *executor) answerWithSources(ctx context.Context, args map[string]any, ec ExecContext) Outcome {
	query := strings.TrimSpace(argString(args, "query"))
	if query == "" {
		return errorOutcome("answer_with_sources requires a query")
	}

	// Reuse supplied results when present so the same passages are not
	// re-embedded within one response.
	results := parseSuppliedResults(argAnySlice(args, "contextual_results"))
	if results == nil {
		topK := 0
		if v, ok := asFloat(args["top_k"]); ok {
			topK = int(v)
		}
		found, err := e.search.Search(ctx, ec.UserID, query, topK)
		if err != nil {
			return errorOutcome("answer_with_sources search failed: %v", err)
		}
		results = found
	}

	if len(results) == 0 {
		return Outcome{
			Status: chat.ToolStatusSuccess,
			Result: map[string]any{"answer": noSourcesAnswer, "source_count": 0},
			Content: &chat.ToolContentEntry{
				Type:   chat.ContentAnswerWithSources,
				Answer: &chat.AnswerWithSources{Query: query, Answer: noSourcesAnswer, Sources: []chat.SearchResult{}},
			},
		}
	}

	var prompt strings.Builder
	prompt.WriteString("Answer the question using ONLY the numbered sources below. ")
	prompt.WriteString("Cite sources with bracketed numbers like [1]. ")
	prompt.WriteString("If the sources do not contain the answer, say so.\n\nSOURCES:\n")
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.ID
		}
		fmt.Fprintf(&prompt, "[%d] %s: %s\n", i+1, title, r.Passage)
	}
	fmt.Fprintf(&prompt, "\nQUESTION: %s", query)

	resp, err := e.model.Generate(ctx, gemini.Request{
		Model:    e.liteModel,
		Contents: []gemini.Message{gemini.TextMessage(gemini.RoleUser, prompt.String())},
	})
	if err != nil {
		return errorOutcome("answer_with_sources model call failed: %v", err)
	}
	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return errorOutcome("answer_with_sources produced no answer")
	}

	return Outcome{
		Status: chat.ToolStatusSuccess,
		Result: map[string]any{"answer": answer, "source_count": len(results)},
		Content: &chat.ToolContentEntry{
			Type:   chat.ContentAnswerWithSources,
			Answer: &chat.AnswerWithSources{Query: query, Answer: answer, Sources: results},
		},
	}
}

func searchResultsPayload(results []chat.SearchResult) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]any{
			"id":      r.ID,
			"title":   r.Title,
			"passage": r.Passage,
			"score":   r.Score,
		})
	}
	return out
}

func parseSuppliedResults(raw []any) []chat.SearchResult {
	if raw == nil {
		return nil
	}
	out := []chat.SearchResult{}
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		passage, _ := m["passage"].(string)
		if passage == "" {
			continue
		}
		r := chat.SearchResult{Passage: passage}
		r.ID, _ = m["id"].(string)
		r.Title, _ = m["title"].(string)
		if score, ok := asFloat(m["score"]); ok {
			r.Score = search.ClampScore(score)
		}
		out = append(out, r)
	}
	return out
}

// -------------------- argument helpers --------------------

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func argMap(args map[string]any, key string) map[string]any {
	v, _ := args[key].(map[string]any)
	return v
}

func argAnySlice(args map[string]any, key string) []any {
	v, _ := args[key].([]any)
	return v
}

func argStringSlice(args map[string]any, key string) []string {
	var out []string
	for _, item := range argAnySlice(args, key) {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case float32:
		return asFloat(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return asFloat(f)
	default:
		return 0, false
	}
}

func toJSON(v any) datatypes.JSON {
	switch t := v.(type) {
	case nil:
		return datatypes.JSON([]byte("{}"))
	case []string:
		if t == nil {
			return datatypes.JSON([]byte("[]"))
		}
	case map[string]any:
		if t == nil {
			return datatypes.JSON([]byte("{}"))
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func firstLine(s string, maxRunes int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return s
}
