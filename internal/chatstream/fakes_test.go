package chatstream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/researchmate-backend/internal/assets"
	"github.com/yungbote/researchmate-backend/internal/domain/chat"
	"github.com/yungbote/researchmate-backend/internal/platform/dbctx"
	"github.com/yungbote/researchmate-backend/internal/platform/freepik"
	"github.com/yungbote/researchmate-backend/internal/platform/gemini"
	"github.com/yungbote/researchmate-backend/internal/platform/logger"
)

func dbCtx() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

// fakeModel replays scripted rounds: one GenerateStream call consumes one
// round's chunks. Generate serves the non-streaming fallback and sub-calls.
type fakeModel struct {
	rounds       [][]gemini.Chunk
	streamCalls  int
	generateResp *gemini.Chunk
	generateErr  error
	streamErr    error
	lastRequest  gemini.Request
}

func (m *fakeModel) GenerateStream(ctx context.Context, req gemini.Request, fn func(gemini.Chunk) error) (int, error) {
	m.lastRequest = req
	if m.streamErr != nil {
		return 0, m.streamErr
	}
	if m.streamCalls >= len(m.rounds) {
		return 0, nil
	}
	chunks := m.rounds[m.streamCalls]
	m.streamCalls++
	for _, ch := range chunks {
		if err := fn(ch); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

func (m *fakeModel) Generate(ctx context.Context, req gemini.Request) (*gemini.Chunk, error) {
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	if m.generateResp != nil {
		return m.generateResp, nil
	}
	return &gemini.Chunk{}, nil
}

func (m *fakeModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type fakeChatRepo struct {
	rows      map[uuid.UUID]*chat.Chat
	createErr error
	deleted   []uuid.UUID
	updates   []map[string]interface{}
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{rows: map[uuid.UUID]*chat.Chat{}}
}

func (r *fakeChatRepo) Create(dbc dbctx.Context, row *chat.Chat) (*chat.Chat, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	row.ID = uuid.New()
	row.CreatedAt = time.Now().UTC()
	row.DateLastModified = row.CreatedAt
	r.rows[row.ID] = row
	return row, nil
}

func (r *fakeChatRepo) GetByID(dbc dbctx.Context, userID, id uuid.UUID) (*chat.Chat, error) {
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		return nil, fmt.Errorf("chat not found")
	}
	return row, nil
}

func (r *fakeChatRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*chat.Chat, error) {
	var out []*chat.Chat
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeChatRepo) UpdateFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) error {
	r.updates = append(r.updates, updates)
	if row, ok := r.rows[id]; ok {
		if v, ok := updates["date_last_modified"].(time.Time); ok {
			row.DateLastModified = v
		}
	}
	return nil
}

func (r *fakeChatRepo) Delete(dbc dbctx.Context, userID, id uuid.UUID) error {
	r.deleted = append(r.deleted, id)
	delete(r.rows, id)
	return nil
}

type fakeMessageRepo struct {
	rows      []*chat.ChatMessage
	createErr error
	// shortInsert simulates a batch that lands fewer rows than requested.
	shortInsert bool
}

func (r *fakeMessageRepo) CreateBatch(dbc dbctx.Context, rows []*chat.ChatMessage) ([]*chat.ChatMessage, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, row := range rows {
		row.ID = uuid.New()
	}
	if r.shortInsert && len(rows) > 1 {
		rows = rows[:1]
	}
	r.rows = append(r.rows, rows...)
	return rows, nil
}

func (r *fakeMessageRepo) ListByChat(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*chat.ChatMessage, error) {
	return r.byChat(chatID), nil
}

func (r *fakeMessageRepo) ListRecent(dbc dbctx.Context, chatID uuid.UUID, limit int) ([]*chat.ChatMessage, error) {
	out := r.byChat(chatID)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMessageRepo) DeleteByChat(dbc dbctx.Context, chatID uuid.UUID) error {
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.ChatID != chatID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

func (r *fakeMessageRepo) byChat(chatID uuid.UUID) []*chat.ChatMessage {
	var out []*chat.ChatMessage
	for _, row := range r.rows {
		if row.ChatID == chatID {
			out = append(out, row)
		}
	}
	return out
}

type fakeArtifactRepo struct {
	rows      []*chat.ChatArtifact
	createErr error
	linked    map[uuid.UUID]uuid.UUID
	linkErr   error
}

func newFakeArtifactRepo() *fakeArtifactRepo {
	return &fakeArtifactRepo{linked: map[uuid.UUID]uuid.UUID{}}
}

func (r *fakeArtifactRepo) Create(dbc dbctx.Context, row *chat.ChatArtifact) (*chat.ChatArtifact, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	row.ID = uuid.New()
	r.rows = append(r.rows, row)
	return row, nil
}

func (r *fakeArtifactRepo) LinkToMessage(dbc dbctx.Context, ids []uuid.UUID, messageID uuid.UUID) error {
	if r.linkErr != nil {
		return r.linkErr
	}
	for _, id := range ids {
		r.linked[id] = messageID
	}
	return nil
}

func (r *fakeArtifactRepo) ListByChat(dbc dbctx.Context, chatID uuid.UUID) ([]*chat.ChatArtifact, error) {
	var out []*chat.ChatArtifact
	for _, row := range r.rows {
		if row.ChatID != nil && *row.ChatID == chatID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeArtifactRepo) DeleteByChat(dbc dbctx.Context, chatID uuid.UUID) error {
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.ChatID == nil || *row.ChatID != chatID {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

type fakeDocumentRepo struct {
	rows      map[uuid.UUID]*chat.Document
	createErr error
	updates   []map[string]interface{}
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{rows: map[uuid.UUID]*chat.Document{}}
}

func (r *fakeDocumentRepo) Create(dbc dbctx.Context, row *chat.Document) (*chat.Document, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	row.ID = uuid.New()
	r.rows[row.ID] = row
	return row, nil
}

func (r *fakeDocumentRepo) GetByID(dbc dbctx.Context, userID, id uuid.UUID) (*chat.Document, error) {
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		return nil, fmt.Errorf("document not found")
	}
	return row, nil
}

func (r *fakeDocumentRepo) UpdateFields(dbc dbctx.Context, userID, id uuid.UUID, updates map[string]interface{}) error {
	r.updates = append(r.updates, updates)
	return nil
}

type fakeImageProvider struct {
	calls int
	err   error
}

func (p *fakeImageProvider) GenerateImage(ctx context.Context, prompt, aspectRatio string) (freepik.Image, error) {
	p.calls++
	if p.err != nil {
		return freepik.Image{}, p.err
	}
	return freepik.Image{Bytes: []byte{0x89, 0x50}, MimeType: "image/png"}, nil
}

type fakeAssetStore struct {
	saves int
	err   error
}

func (s *fakeAssetStore) SaveImage(ctx context.Context, userID uuid.UUID, chatID string, data []byte, contentType string) (*assets.Asset, error) {
	s.saves++
	if s.err != nil {
		return nil, s.err
	}
	return &assets.Asset{
		Bucket:      "test-bucket",
		Path:        fmt.Sprintf("users/%s/chats/%s/%d.png", userID, chatID, s.saves),
		SignedURL:   fmt.Sprintf("https://storage.test/signed/%d", s.saves),
		ExpiresAt:   time.Now().Add(time.Hour),
		ContentType: contentType,
	}, nil
}

type fakeSearchGateway struct {
	results []chat.SearchResult
	err     error
	lastK   int
	calls   int
}

func (g *fakeSearchGateway) Search(ctx context.Context, userID uuid.UUID, query string, topK int) ([]chat.SearchResult, error) {
	g.calls++
	g.lastK = topK
	if g.err != nil {
		return nil, g.err
	}
	return g.results, nil
}

// collectEmitter records every emitted event in order.
type collectEmitter struct {
	events []any
}

func (e *collectEmitter) Emit(event any) error {
	e.events = append(e.events, event)
	return nil
}
