package streamclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/yungbote/researchmate-backend/internal/chatstream"
)

// Decoder reads one NDJSON stream event per call. Blank lines are skipped;
// unknown event types are an error since the merge logic depends on seeing
// every event in order.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{scanner: sc}
}

type eventProbe struct {
	Type string `json:"type"`
}

// Next returns the next decoded event, or io.EOF when the stream ends.
func (d *Decoder) Next() (any, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		return decodeLine([]byte(line))
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func decodeLine(raw []byte) (any, error) {
	var probe eventProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("malformed stream line: %w", err)
	}
	switch probe.Type {
	case "thought":
		var ev chatstream.ThoughtEvent
		return ev, json.Unmarshal(raw, &ev)
	case "response":
		var ev chatstream.ResponseEvent
		return ev, json.Unmarshal(raw, &ev)
	case "tool_start":
		var ev chatstream.ToolStartEvent
		return ev, json.Unmarshal(raw, &ev)
	case "tool_result":
		var ev chatstream.ToolResultEvent
		return ev, json.Unmarshal(raw, &ev)
	case "complete":
		var ev chatstream.CompleteEvent
		return ev, json.Unmarshal(raw, &ev)
	case "error":
		var ev chatstream.ErrorEvent
		return ev, json.Unmarshal(raw, &ev)
	default:
		return nil, fmt.Errorf("unknown stream event type %q", probe.Type)
	}
}
