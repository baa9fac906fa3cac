package chatstream

import (
	"google.golang.org/genai"
)

// Tool modes are mutually exclusive per request. Research mode exposes the
// artifact and search tools; web-search mode exposes only live search and URL
// context. The model cannot call an undeclared function, so mode enforcement
// happens entirely here.
const (
	ModeResearchTools = "research-tools"
	ModeWebSearch     = "web-search"
)

func ValidToolMode(mode string) bool {
	return mode == ModeResearchTools || mode == ModeWebSearch
}

func ToolsForMode(mode string) []*genai.Tool {
	switch mode {
	case ModeWebSearch:
		return []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
			{URLContext: &genai.URLContext{}},
		}
	default:
		return []*genai.Tool{
			{FunctionDeclarations: ResearchToolDeclarations()},
		}
	}
}

func stringArray(desc string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: desc,
		Items:       &genai.Schema{Type: genai.TypeString},
	}
}

func ResearchToolDeclarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        "create_document",
			Description: "Create a long-form document artifact to store for later reference. Call once the final text is ready.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":         {Type: genai.TypeString, Description: "Human-friendly title for the document."},
					"body":          {Type: genai.TypeString, Description: "Full body content in markdown or plain text."},
					"document_type": {Type: genai.TypeString, Description: "Document classification.", Enum: []string{"document", "translation", "other"}},
					"image_prompt":  {Type: genai.TypeString, Description: "Optional prompt for a companion image."},
					"image_link":    {Type: genai.TypeString, Description: "Optional URL of an existing image to attach."},
					"image_aspect_ratio": {Type: genai.TypeString,
						Description: "Optional aspect ratio preset for auto-generated images (e.g. 'widescreen_16_9')."},
					"tags":     stringArray("Topic tags that make the document discoverable."),
					"metadata": {Type: genai.TypeObject, Description: "Additional metadata to persist with the document."},
				},
				Required: []string{"title", "body"},
			},
		},
		{
			Name:        "update_document",
			Description: "Update an existing document. Only send the fields that should change.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"doc_id":        {Type: genai.TypeString, Description: "Identifier returned by create_document."},
					"title":         {Type: genai.TypeString, Description: "Revised title."},
					"body":          {Type: genai.TypeString, Description: "Updated body."},
					"document_type": {Type: genai.TypeString, Description: "Updated classification.", Enum: []string{"document", "translation", "other"}},
					"image_prompt":  {Type: genai.TypeString, Description: "New prompt for a companion image."},
					"image_link":    {Type: genai.TypeString, Description: "URL of an updated asset."},
					"image_aspect_ratio": {Type: genai.TypeString,
						Description: "Optional aspect ratio preset for any regenerated image."},
					"tags":     stringArray("Replace the document's tags with this list."),
					"metadata": {Type: genai.TypeObject, Description: "Replace the document's metadata payload."},
				},
				Required: []string{"doc_id"},
			},
		},
		{
			Name:        "generate_image",
			Description: "Generate an illustration, store it in the artifact bucket, and return a signed URL.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"prompt":       {Type: genai.TypeString, Description: "Detailed description of the image to generate."},
					"show_to_user": {Type: genai.TypeBoolean, Description: "Whether the UI should display the image inline immediately."},
					"tags":         stringArray("Optional topic tags for the generated image."),
					"aspect_ratio": {Type: genai.TypeString, Description: "Optional aspect ratio preset (e.g. 'widescreen_16_9', 'classic_4_3')."},
				},
				Required: []string{"prompt", "show_to_user"},
			},
		},
		{
			Name:        "create_visual_json",
			Description: "Create structured data for a pie, bar, or line chart rendered by the UI.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"chart_type": {Type: genai.TypeString, Description: "Chart type.", Enum: []string{"pie", "bar", "line"}},
					"title":      {Type: genai.TypeString, Description: "Short title for the visualization."},
					"data_points": {
						Type:        genai.TypeArray,
						Description: "Data points to plot. Keep the list concise (<= 20 items).",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"label": {Type: genai.TypeString, Description: "Display label."},
								"value": {Type: genai.TypeNumber, Description: "Numeric value."},
							},
							Required: []string{"label", "value"},
						},
					},
					"tags": stringArray("Tags describing the visualization."),
				},
				Required: []string{"chart_type", "title", "data_points"},
			},
		},
		{
			Name:        "create_knowledge_graph_json",
			Description: "Produce a knowledge graph of entities and relationships extracted from research.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"nodes": {
						Type:        genai.TypeArray,
						Description: "Graph nodes with unique ids.",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"id":    {Type: genai.TypeString, Description: "Unique node identifier."},
								"label": {Type: genai.TypeString, Description: "Readable label."},
								"type":  {Type: genai.TypeString, Description: "Optional semantic type for grouping."},
							},
							Required: []string{"id", "label"},
						},
					},
					"edges": {
						Type:        genai.TypeArray,
						Description: "Relationships between nodes.",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"source":   {Type: genai.TypeString, Description: "Source node id."},
								"target":   {Type: genai.TypeString, Description: "Target node id."},
								"relation": {Type: genai.TypeString, Description: "Description of the relationship."},
							},
							Required: []string{"source", "target", "relation"},
						},
					},
					"context": {Type: genai.TypeString, Description: "Optional background text explaining the graph."},
					"tags":    stringArray("Tags describing the graph's topic."),
				},
				Required: []string{"nodes", "edges"},
			},
		},
		{
			Name:        "timeline_builder",
			Description: "Create a narrative timeline of milestones, each with a description and optional image prompt.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title": {Type: genai.TypeString, Description: "Title for the timeline artifact."},
					"timeline_sections": {
						Type:        genai.TypeArray,
						Description: "Ordered sections from start to finish.",
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"title":        {Type: genai.TypeString, Description: "Headline for the section."},
								"description":  {Type: genai.TypeString, Description: "Supporting narrative."},
								"image_prompt": {Type: genai.TypeString, Description: "Optional prompt for a section visual."},
							},
							Required: []string{"title", "description"},
						},
					},
					"tags": stringArray("Tags highlighting the theme of the timeline."),
				},
				Required: []string{"title", "timeline_sections"},
			},
		},
		{
			Name:        "contextual_search",
			Description: "Search the user's indexed research passages by semantic similarity.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString, Description: "Natural-language search query."},
					"top_k": {Type: genai.TypeNumber, Description: "How many passages to return (max 20, default 5)."},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "answer_with_sources",
			Description: "Answer a question strictly from indexed passages, citing numbered sources.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString, Description: "Question to answer from stored sources."},
					"top_k": {Type: genai.TypeNumber, Description: "How many passages to consider (max 20, default 5)."},
					"contextual_results": {
						Type:        genai.TypeArray,
						Description: "Results from a prior contextual_search to reuse instead of searching again.",
						Items:       &genai.Schema{Type: genai.TypeObject},
					},
				},
				Required: []string{"query"},
			},
		},
	}
}
