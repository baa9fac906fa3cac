package chatstream

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
)

const faviconEndpoint = "https://www.google.com/s2/favicons?domain="

// GroundingState accumulates grounding and URL-retrieval metadata across all
// rounds of one request. Chunks keep their positional index (a later round's
// chunk at the same index wins); supports are unioned by a composite key so
// repeated spans never produce duplicate citations.
type GroundingState struct {
	chunks    []gemini.GroundingChunk
	supports  []gemini.GroundingSupport
	seen      map[string]struct{}
	urlStatus map[string]string
}

func NewGroundingState() *GroundingState {
	return &GroundingState{
		seen:      map[string]struct{}{},
		urlStatus: map[string]string{},
	}
}

func (g *GroundingState) Merge(meta *gemini.GroundingMetadata) {
	if meta == nil {
		return
	}
	for i, c := range meta.Chunks {
		if i < len(g.chunks) {
			if c.URI != "" || c.Title != "" {
				g.chunks[i] = c
			}
			continue
		}
		g.chunks = append(g.chunks, c)
	}
	for _, s := range meta.Supports {
		key := supportKey(s)
		if _, ok := g.seen[key]; ok {
			continue
		}
		g.seen[key] = struct{}{}
		g.supports = append(g.supports, s)
	}
}

func (g *GroundingState) MergeURLContext(items []gemini.URLMetadata) {
	for _, m := range items {
		u := normalizeURL(m.RetrievedURL)
		if u == "" {
			continue
		}
		g.urlStatus[u] = m.Status
	}
}

func (g *GroundingState) HasData() bool {
	return len(g.chunks) > 0 || len(g.supports) > 0
}

func supportKey(s gemini.GroundingSupport) string {
	idx := make([]string, 0, len(s.ChunkIndices))
	for _, i := range s.ChunkIndices {
		idx = append(idx, fmt.Sprint(i))
	}
	return fmt.Sprintf("%d|%d|%s|%s", s.StartIndex, s.EndIndex, s.Text, strings.Join(idx, ","))
}

// Reconcile rewrites text with inline citation tokens and returns the ordered
// source list. Only supports with a defined end offset inside the text and at
// least one resolvable chunk reference take part. Citations are spliced
// back-to-front so earlier splices never invalidate pending offsets. Chunk
// index k always maps to display id k+1; two chunks sharing a URL at
// different indices stay distinct sources.
func (g *GroundingState) Reconcile(text string) (string, []chat.GroundingSource) {
	type eligible struct {
		support gemini.GroundingSupport
		indices []int
	}

	var elig []eligible
	for _, s := range g.supports {
		if s.EndIndex <= 0 || s.EndIndex > len(text) {
			continue
		}
		var valid []int
		seenIdx := map[int]struct{}{}
		for _, idx := range s.ChunkIndices {
			if idx < 0 || idx >= len(g.chunks) {
				continue
			}
			if g.chunks[idx].URI == "" {
				continue
			}
			if _, dup := seenIdx[idx]; dup {
				continue
			}
			seenIdx[idx] = struct{}{}
			valid = append(valid, idx)
		}
		if len(valid) == 0 {
			continue
		}
		elig = append(elig, eligible{support: s, indices: valid})
	}
	if len(elig) == 0 {
		return text, nil
	}

	sourcesByIdx := map[int]*chat.GroundingSource{}
	for _, e := range elig {
		for _, idx := range e.indices {
			src, ok := sourcesByIdx[idx]
			if !ok {
				src = g.newSource(idx)
				sourcesByIdx[idx] = src
			}
			snippet := chat.GroundingSupportSnippet{
				Text:       e.support.Text,
				StartIndex: e.support.StartIndex,
				EndIndex:   e.support.EndIndex,
			}
			if !hasSnippetText(src.Supports, snippet.Text) {
				src.Supports = append(src.Supports, snippet)
			}
		}
	}

	sorted := make([]eligible, len(elig))
	copy(sorted, elig)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].support.EndIndex > sorted[j].support.EndIndex
	})
	for _, e := range sorted {
		tokens := make([]string, 0, len(e.indices))
		for _, idx := range e.indices {
			tokens = append(tokens, fmt.Sprintf("[[%d]](%s)", idx+1, g.chunks[idx].URI))
		}
		at := e.support.EndIndex
		text = text[:at] + strings.Join(tokens, " ") + text[at:]
	}

	out := make([]chat.GroundingSource, 0, len(sourcesByIdx))
	for _, src := range sourcesByIdx {
		sort.SliceStable(src.Supports, func(i, j int) bool {
			return src.Supports[i].StartIndex < src.Supports[j].StartIndex
		})
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return text, out
}

func (g *GroundingState) newSource(idx int) *chat.GroundingSource {
	c := g.chunks[idx]
	domain := domainOf(c.URI)
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = domain
	}
	return &chat.GroundingSource{
		ID:              idx + 1,
		Title:           title,
		URL:             c.URI,
		Domain:          domain,
		Favicon:         faviconEndpoint + domain,
		RetrievalStatus: g.urlStatus[normalizeURL(c.URI)],
	}
}

func hasSnippetText(snippets []chat.GroundingSupportSnippet, text string) bool {
	for _, s := range snippets {
		if s.Text == text {
			return true
		}
	}
	return false
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

func normalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
