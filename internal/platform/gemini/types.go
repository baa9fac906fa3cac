package gemini

import (
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultChatModel  = "gemini-2.5-flash"
	DefaultLiteModel  = "gemini-2.5-flash-lite"
	DefaultEmbedModel = "gemini-embedding-001"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type FunctionCall struct {
	Name string
	Args map[string]any
}

type FunctionResponse struct {
	Name     string
	Response map[string]any
}

type Part struct {
	Text             string
	Thought          bool
	FunctionCall     *FunctionCall
	FunctionResponse *FunctionResponse
}

type Message struct {
	Role  string
	Parts []Part
}

func TextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{{Text: text}}}
}

// GroundingChunk is one web source referenced by grounding supports. Entries
// keep their positional index even when the provider omits the web payload,
// since supports reference chunks by index.
type GroundingChunk struct {
	URI   string
	Title string
}

type GroundingSupport struct {
	Text         string
	StartIndex   int
	EndIndex     int
	ChunkIndices []int
}

type GroundingMetadata struct {
	Chunks   []GroundingChunk
	Supports []GroundingSupport
}

type URLMetadata struct {
	RetrievedURL string
	Status       string
}

// Chunk is one unit of streamed model output, or a whole non-streaming
// response collapsed into a single unit.
type Chunk struct {
	Parts      []Part
	Grounding  *GroundingMetadata
	URLContext []URLMetadata
}

// Text returns the concatenated non-thought text parts.
func (ch Chunk) Text() string {
	var b strings.Builder
	for _, p := range ch.Parts {
		if p.Text != "" && !p.Thought && p.FunctionCall == nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// FunctionCalls returns the function-call parts in emission order.
func (ch Chunk) FunctionCalls() []FunctionCall {
	var out []FunctionCall
	for _, p := range ch.Parts {
		if p.FunctionCall != nil {
			out = append(out, *p.FunctionCall)
		}
	}
	return out
}

type Request struct {
	Model           string
	System          string
	Contents        []Message
	Tools           []*genai.Tool
	IncludeThoughts bool
	Temperature     *float32
}
