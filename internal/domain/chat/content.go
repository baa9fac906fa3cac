package chat

// Tool call and tool content payloads stored on a message's jsonb columns and
// streamed to the client. Content entries form a tagged union discriminated by
// Type; consumers must switch on Type exhaustively.

const (
	ToolStatusPending = "pending"
	ToolStatusSuccess = "success"
	ToolStatusError   = "error"
)

const (
	ContentGroundingSources  = "grounding_sources"
	ContentDocumentReference = "document_reference"
	ContentArtifactReference = "artifact_reference"
	ContentImageAsset        = "image_asset"
	ContentContextualSearch  = "contextual_search"
	ContentAnswerWithSources = "answer_with_sources"
)

// ToolCallRecord is one model-issued function call within a response.
// Status moves pending -> success|error exactly once.
type ToolCallRecord struct {
	ID     int            `json:"id"`
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type GroundingSupportSnippet struct {
	Text       string `json:"text"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// GroundingSource is one cited web source. ID is the 1-based display index,
// stable per grounding chunk position within a response.
type GroundingSource struct {
	ID              int                       `json:"id"`
	Title           string                    `json:"title"`
	URL             string                    `json:"url"`
	Domain          string                    `json:"domain"`
	Favicon         string                    `json:"favicon"`
	RetrievalStatus string                    `json:"retrieval_status,omitempty"`
	Supports        []GroundingSupportSnippet `json:"supports"`
}

type DocumentReference struct {
	DocumentID   string `json:"document_id"`
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	ImageLink    string `json:"image_link,omitempty"`
}

type ArtifactReference struct {
	ArtifactID   string         `json:"artifact_id"`
	ArtifactType string         `json:"artifact_type"`
	Title        string         `json:"title"`
	Summary      string         `json:"summary,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type ImageAsset struct {
	Bucket      string `json:"bucket"`
	Path        string `json:"path"`
	SignedURL   string `json:"signed_url"`
	ExpiresAt   string `json:"expires_at"`
	ContentType string `json:"content_type"`
	Prompt      string `json:"prompt,omitempty"`
	ShowToUser  bool   `json:"show_to_user"`
}

type SearchResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Passage string  `json:"passage"`
	Score   float64 `json:"score"`
}

type ContextualSearch struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

type AnswerWithSources struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer"`
	Sources []SearchResult `json:"sources"`
}

type ToolContentEntry struct {
	Type     string             `json:"type"`
	ToolID   int                `json:"tool_id,omitempty"`
	Sources  []GroundingSource  `json:"sources,omitempty"`
	Document *DocumentReference `json:"document,omitempty"`
	Artifact *ArtifactReference `json:"artifact,omitempty"`
	Image    *ImageAsset        `json:"image,omitempty"`
	Search   *ContextualSearch  `json:"search,omitempty"`
	Answer   *AnswerWithSources `json:"answer,omitempty"`
}

// MergeToolContent upserts an entry into a content list. grounding_sources is
// a singleton per message and replaced wholesale; every other kind is keyed by
// (tool_id, type) and replaced per tool call.
func MergeToolContent(entries []ToolContentEntry, e ToolContentEntry) []ToolContentEntry {
	for i := range entries {
		if entries[i].Type != e.Type {
			continue
		}
		if e.Type == ContentGroundingSources || entries[i].ToolID == e.ToolID {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}
