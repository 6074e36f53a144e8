package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"coverage-rag-be/internal/config"
	"coverage-rag-be/internal/dto"
	"coverage-rag-be/internal/entity"
	"coverage-rag-be/internal/repository/contract"
	"coverage-rag-be/internal/repository/specification"
	"coverage-rag-be/internal/repository/unitofwork"
	"coverage-rag-be/pkg/llm"
	"coverage-rag-be/pkg/rag/history"
	"coverage-rag-be/pkg/rag/prompt"
	"coverage-rag-be/pkg/rag/session"
	"coverage-rag-be/pkg/search"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- In-memory store implementing the unit of work contracts ---

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*entity.ChatSession
	exchanges []*entity.Exchange

	failExchangeCreate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[uuid.UUID]*entity.ChatSession{}}
}

func (f *fakeStore) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &fakeUow{store: f}
}

func (f *fakeStore) RecentExchanges(ctx context.Context, sessionId uuid.UUID, limit int) ([]history.ExchangeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*entity.Exchange
	for _, ex := range f.exchanges {
		if ex.ChatSessionId == sessionId {
			matched = append(matched, ex)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	entries := make([]history.ExchangeEntry, len(matched))
	for i, ex := range matched {
		entries[i] = history.ExchangeEntry{Query: ex.Query, Response: ex.Response}
	}
	return entries, nil
}

type fakeUow struct {
	store *fakeStore
}

func (u *fakeUow) Begin(ctx context.Context) error { return nil }
func (u *fakeUow) Commit() error                   { return nil }
func (u *fakeUow) Rollback() error                 { return nil }

func (u *fakeUow) ChatSessionRepository() contract.ChatSessionRepository {
	return &fakeSessionRepo{store: u.store}
}

func (u *fakeUow) ExchangeRepository() contract.ExchangeRepository {
	return &fakeExchangeRepo{store: u.store}
}

func (u *fakeUow) DocumentChunkRepository() contract.DocumentChunkRepository {
	return &fakeChunkRepo{}
}

type fakeSessionRepo struct {
	store *fakeStore
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *entity.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *s
	r.store.sessions[s.Id] = &copied
	return nil
}

func (r *fakeSessionRepo) Update(ctx context.Context, s *entity.ChatSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	copied := *s
	r.store.sessions[s.Id] = &copied
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.sessions, id)
	return nil
}

func (r *fakeSessionRepo) matches(s *entity.ChatSession, specs []specification.Specification) bool {
	for _, spec := range specs {
		switch v := spec.(type) {
		case specification.ByID:
			if s.Id != v.ID {
				return false
			}
		case specification.ByUserID:
			if s.UserId != v.UserID {
				return false
			}
		}
	}
	return true
}

func (r *fakeSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, s := range r.store.sessions {
		if r.matches(s, specs) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*entity.ChatSession
	for _, s := range r.store.sessions {
		if r.matches(s, specs) {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	all, _ := r.FindAll(ctx, specs...)
	return int64(len(all)), nil
}

type fakeExchangeRepo struct {
	store *fakeStore
}

func (r *fakeExchangeRepo) Create(ctx context.Context, ex *entity.Exchange) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failExchangeCreate {
		return assert.AnError
	}
	copied := *ex
	r.store.exchanges = append(r.store.exchanges, &copied)
	return nil
}

func (r *fakeExchangeRepo) filter(specs []specification.Specification) []*entity.Exchange {
	var out []*entity.Exchange
	for _, ex := range r.store.exchanges {
		keep := true
		for _, spec := range specs {
			if v, ok := spec.(specification.ByChatSessionID); ok && ex.ChatSessionId != v.ChatSessionID {
				keep = false
			}
		}
		if keep {
			out = append(out, ex)
		}
	}

	for _, spec := range specs {
		if v, ok := spec.(specification.OrderBy); ok && v.Field == "created_at" {
			sort.SliceStable(out, func(i, j int) bool {
				if v.Desc {
					return out[i].CreatedAt.After(out[j].CreatedAt)
				}
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			})
		}
	}
	for _, spec := range specs {
		if v, ok := spec.(specification.Pagination); ok && v.Limit > 0 && len(out) > v.Limit {
			out = out[:v.Limit]
		}
	}
	return out
}

func (r *fakeExchangeRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Exchange, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.filter(specs), nil
}

func (r *fakeExchangeRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Exchange, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := r.filter(specs)
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fakeExchangeRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return int64(len(r.filter(specs))), nil
}

func (r *fakeExchangeRepo) LatestCreatedAt(ctx context.Context, sessionIds []uuid.UUID) (map[uuid.UUID]time.Time, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	latest := make(map[uuid.UUID]time.Time, len(sessionIds))
	for _, id := range sessionIds {
		for _, ex := range r.store.exchanges {
			if ex.ChatSessionId != id {
				continue
			}
			if t, ok := latest[id]; !ok || ex.CreatedAt.After(t) {
				latest[id] = ex.CreatedAt
			}
		}
	}
	return latest, nil
}

type fakeChunkRepo struct{}

func (r *fakeChunkRepo) CreateBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	return nil
}
func (r *fakeChunkRepo) DeleteByDocumentName(ctx context.Context, documentName string) error {
	return nil
}
func (r *fakeChunkRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentChunk, error) {
	return nil, nil
}
func (r *fakeChunkRepo) SearchSimilarWithScore(ctx context.Context, queryVector []float32, topK int, planFilter string) ([]*contract.ScoredDocumentChunk, error) {
	return nil, nil
}

// --- Fake retrieval and generation backends ---

type fakeSearch struct {
	results []search.Result
	err     error
}

func (f *fakeSearch) Retrieve(ctx context.Context, query search.Query) ([]search.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeLLM struct {
	chatText  string
	fragments []llm.Fragment
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return f.chatText, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.Fragment, error) {
	ch := make(chan llm.Fragment, len(f.fragments))
	for _, frag := range f.fragments {
		ch <- frag
	}
	close(ch)
	return ch, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.chatText, nil
}

// producerLLM streams over an unbuffered channel from a goroutine, the way
// a real backend does, so tests can observe whether the producer is torn
// down when the consumer stops reading.
type producerLLM struct {
	fragments    []llm.Fragment
	producerDone chan struct{}
}

func (f *producerLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return "", nil
}

func (f *producerLLM) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (<-chan llm.Fragment, error) {
	ch := make(chan llm.Fragment)
	go func() {
		defer close(ch)
		defer close(f.producerDone)
		for _, frag := range f.fragments {
			select {
			case ch <- frag:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (f *producerLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return "", nil
}

// failingWriter accepts writes until failAfter frames have gone through,
// then errors on every write, like a connection the client walked away from.
type failingWriter struct {
	bytes.Buffer
	failAfter int
	writes    int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > w.failAfter {
		return 0, errors.New("connection reset by peer")
	}
	return w.Buffer.Write(p)
}

type noopLogger struct{}

func (noopLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopLogger) Info(module, message string, details map[string]interface{})  {}
func (noopLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopLogger) Error(module, message string, details map[string]interface{}) {}
func (noopLogger) Sync() error                                                  { return nil }

// --- Wiring helper ---

func newTestService(store *fakeStore, sp search.Provider, lp llm.LLMProvider) IChatService {
	return NewChatService(
		store,
		sp,
		lp,
		prompt.NewBuilder(""),
		history.NewLoader(store, 10),
		session.NewCacheLocker(),
		nil,
		noopLogger{},
		config.SearchConfig{Top: 5},
		config.RagConfig{CitationThreshold: 0.7, Temperature: 1.0, TopP: 0.95},
	)
}

func coverageResults() []search.Result {
	return []search.Result{
		{Document: "SBC.pdf", Content: "Emergency room visits are covered.", Score: 0.91},
		{Document: "Exclusions.pdf", Content: "Cosmetic procedures are excluded.", Score: 0.42},
		{Document: "Rider.pdf", Content: "Dental rider covers cleanings.", Score: 0.78},
	}
}

// --- Tests ---

func TestQueryStream_WritesDeltasThenCitationFrame(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, &fakeLLM{
		fragments: []llm.Fragment{
			{Content: "ER visits are covered"},
			{Content: " [1] and cleanings too [3]."},
		},
	})

	var buf bytes.Buffer
	err := svc.QueryStream(context.Background(), uuid.New(), &dto.QueryRequest{Query: "Is the ER covered?"}, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var delta struct {
		Response string `json:"response"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &delta))
	assert.Equal(t, "ER visits are covered", delta.Response)

	var final struct {
		Citations []struct {
			Document string  `json:"document"`
			Score    float64 `json:"score"`
		} `json:"citations"`
		Incomplete bool `json:"incomplete"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &final))
	assert.False(t, final.Incomplete)

	// [1] and [3] cited; [3] (Rider.pdf) passes the threshold, result order kept
	require.Len(t, final.Citations, 2)
	assert.Equal(t, "SBC.pdf", final.Citations[0].Document)
	assert.Equal(t, "Rider.pdf", final.Citations[1].Document)
}

func TestQueryStream_PersistsExchangeAndTitlesSession(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, &fakeLLM{
		fragments: []llm.Fragment{{Content: "Covered [1]."}},
	})

	userId := uuid.New()
	var buf bytes.Buffer
	query := "Does my plan cover emergency room visits out of state?"
	err := svc.QueryStream(context.Background(), userId, &dto.QueryRequest{Query: query}, &buf)
	require.NoError(t, err)

	require.Len(t, store.exchanges, 1)
	ex := store.exchanges[0]
	assert.Equal(t, query, ex.Query)
	assert.Equal(t, "Covered [1].", ex.Response)
	assert.False(t, ex.Incomplete)
	assert.Len(t, ex.Results, 3)

	// First exchange promotes the query to the session title
	sess := store.sessions[ex.ChatSessionId]
	require.NotNil(t, sess)
	assert.Equal(t, query, sess.Title)
}

func TestQueryStream_InterruptedGenerationPersistsPartial(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, &fakeLLM{
		fragments: []llm.Fragment{
			{Content: "Partial answer [1]"},
			{Err: llm.ErrInterrupted},
		},
	})

	var buf bytes.Buffer
	err := svc.QueryStream(context.Background(), uuid.New(), &dto.QueryRequest{Query: "coverage?"}, &buf)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var final struct {
		Citations  []json.RawMessage `json:"citations"`
		Incomplete bool              `json:"incomplete"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &final))
	assert.True(t, final.Incomplete)
	assert.Len(t, final.Citations, 1)

	require.Len(t, store.exchanges, 1)
	assert.True(t, store.exchanges[0].Incomplete)
	assert.Equal(t, "Partial answer [1]", store.exchanges[0].Response)
}

func TestQueryStream_ClientDisconnectPersistsIncomplete(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, &fakeLLM{
		fragments: []llm.Fragment{
			{Content: "Coverage "},
			{Content: "includes X[1]."},
			{Content: " And more detail never delivered."},
		},
	})

	// Second frame write fails, as when the client drops the connection
	w := &failingWriter{failAfter: 1}
	err := svc.QueryStream(context.Background(), uuid.New(), &dto.QueryRequest{Query: "coverage?"}, w)
	require.NoError(t, err)

	require.Len(t, store.exchanges, 1)
	ex := store.exchanges[0]
	assert.True(t, ex.Incomplete, "abandoned stream must persist as incomplete")
	assert.Equal(t, "Coverage includes X[1].", ex.Response,
		"only text reached before the failure is kept")
}

func TestQueryStream_ClientDisconnectStopsGeneration(t *testing.T) {
	store := newFakeStore()
	producer := &producerLLM{
		fragments: []llm.Fragment{
			{Content: "Coverage "},
			{Content: "includes X[1]."},
			{Content: " third"},
			{Content: " fourth"},
		},
		producerDone: make(chan struct{}),
	}
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, producer)

	w := &failingWriter{failAfter: 1}
	err := svc.QueryStream(context.Background(), uuid.New(), &dto.QueryRequest{Query: "coverage?"}, w)
	require.NoError(t, err)

	select {
	case <-producer.producerDone:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("fragment producer still running after client disconnect")
	}

	require.Len(t, store.exchanges, 1)
	assert.True(t, store.exchanges[0].Incomplete)
}

func TestQueryStream_RetrievalFailureIsTerminal(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{err: search.ErrUnavailable}, &fakeLLM{})

	var buf bytes.Buffer
	err := svc.QueryStream(context.Background(), uuid.New(), &dto.QueryRequest{Query: "coverage?"}, &buf)
	require.ErrorIs(t, err, search.ErrUnavailable)

	assert.Zero(t, buf.Len(), "no frame may be written before the error")
	assert.Empty(t, store.exchanges)
}

func TestQueryStream_BusySessionRejected(t *testing.T) {
	store := newFakeStore()
	locker := session.NewCacheLocker()
	svc := NewChatService(
		store,
		&fakeSearch{results: coverageResults()},
		&fakeLLM{fragments: []llm.Fragment{{Content: "ok"}}},
		prompt.NewBuilder(""),
		history.NewLoader(store, 10),
		locker,
		nil,
		noopLogger{},
		config.SearchConfig{Top: 5},
		config.RagConfig{CitationThreshold: 0.7},
	)

	userId := uuid.New()
	sessionId := uuid.New()

	// Simulate an in-flight exchange on the same session
	require.NoError(t, locker.Acquire(context.Background(), sessionId.String()))

	// Session must exist so the supplied id resolves to it
	_, err := svc.CreateSession(context.Background(), userId, &sessionId)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = svc.QueryStream(context.Background(), userId, &dto.QueryRequest{SessionId: &sessionId, Query: "coverage?"}, &buf)
	require.ErrorIs(t, err, session.ErrBusy)
	assert.Zero(t, buf.Len())
}

func TestQueryStream_PersistenceFailureDoesNotFailExchange(t *testing.T) {
	store := newFakeStore()
	store.failExchangeCreate = true
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, &fakeLLM{
		fragments: []llm.Fragment{{Content: "Covered [1]."}},
	})

	var buf bytes.Buffer
	err := svc.QueryStream(context.Background(), uuid.New(), &dto.QueryRequest{Query: "coverage?"}, &buf)
	require.NoError(t, err, "store failure after delivery must not surface to the client")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2, "delta and citation frames still delivered")
	assert.Empty(t, store.exchanges)
}

func TestQuery_BlockingPathResolvesCitations(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, &fakeLLM{
		chatText: "Yes, covered [1]. Excluded items listed [2].",
	})

	res, err := svc.Query(context.Background(), uuid.New(), &dto.QueryRequest{Query: "coverage?"})
	require.NoError(t, err)

	// [2] scores 0.42, below threshold; only [1] survives
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "SBC.pdf", res.Citations[0].Document)
	assert.False(t, res.Incomplete)
	require.Len(t, store.exchanges, 1)
}

func TestGetHistory_UnknownSessionYieldsEmptySlice(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{}, &fakeLLM{})

	res, err := svc.GetHistory(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestGetHistory_RecomputesCitationsFromStoredResults(t *testing.T) {
	store := newFakeStore()
	userId := uuid.New()
	sessionId := uuid.New()
	store.sessions[sessionId] = &entity.ChatSession{Id: sessionId, UserId: userId, Title: "t"}
	store.exchanges = append(store.exchanges, &entity.Exchange{
		Id:            uuid.New(),
		ChatSessionId: sessionId,
		Query:         "coverage?",
		Response:      "Covered [1] but not [2].",
		Results:       coverageResults(),
		CreatedAt:     time.Now(),
	})

	svc := newTestService(store, &fakeSearch{}, &fakeLLM{})
	res, err := svc.GetHistory(context.Background(), userId, sessionId)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Len(t, res[0].Citations, 1)
	assert.Equal(t, "SBC.pdf", res[0].Citations[0].Document)
}

func TestHistoryBound_OldestExchangesDropped(t *testing.T) {
	store := newFakeStore()
	userId := uuid.New()
	sessionId := uuid.New()
	store.sessions[sessionId] = &entity.ChatSession{Id: sessionId, UserId: userId, Title: "t"}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		store.exchanges = append(store.exchanges, &entity.Exchange{
			Id:            uuid.New(),
			ChatSessionId: sessionId,
			Query:         string(rune('a' + i)),
			Response:      "r",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
	}

	loader := history.NewLoader(store, 3)
	messages, err := loader.Load(context.Background(), sessionId)
	require.NoError(t, err)

	// 3 exchanges kept, oldest first, user+assistant per exchange
	require.Len(t, messages, 6)
	assert.Equal(t, "c", messages[0].Content)
	assert.Equal(t, "e", messages[4].Content)
}

func TestCreateSession_SuppliedIdIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{}, &fakeLLM{})

	userId := uuid.New()
	clientId := uuid.New()

	first, err := svc.CreateSession(context.Background(), userId, &clientId)
	require.NoError(t, err)
	assert.Equal(t, clientId, first.Id)

	second, err := svc.CreateSession(context.Background(), userId, &clientId)
	require.NoError(t, err)
	assert.Equal(t, clientId, second.Id)
	assert.Len(t, store.sessions, 1)
}

func TestListSessions_TitleAndLatestExchange(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{results: coverageResults()}, &fakeLLM{
		fragments: []llm.Fragment{{Content: "Covered."}},
	})

	userId := uuid.New()
	var buf bytes.Buffer
	err := svc.QueryStream(context.Background(), userId, &dto.QueryRequest{Query: "What is my deductible?"}, &buf)
	require.NoError(t, err)

	// A second session with no exchanges yet
	empty, err := svc.CreateSession(context.Background(), userId, nil)
	require.NoError(t, err)

	sessions, err := svc.ListSessions(context.Background(), userId, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	byId := map[uuid.UUID]dto.SessionSummaryResponse{}
	for _, s := range sessions {
		byId[s.Id] = s
	}

	titled := byId[store.exchanges[0].ChatSessionId]
	assert.Equal(t, "What is my deductible?", titled.Title)
	require.NotNil(t, titled.LatestExchange)

	assert.Nil(t, byId[empty.Id].LatestExchange)
}

func TestClearSession_MintsFreshIdentity(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeSearch{}, &fakeLLM{})

	userId := uuid.New()
	old, err := svc.CreateSession(context.Background(), userId, nil)
	require.NoError(t, err)

	cleared, err := svc.ClearSession(context.Background(), userId, old.Id)
	require.NoError(t, err)
	assert.NotEqual(t, old.Id, cleared.Id)

	// The old session stays persisted
	assert.Contains(t, store.sessions, old.Id)
}
