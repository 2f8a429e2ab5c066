package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/generation"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

const testDims = 32

// hashEmbedder maps tokens onto a small bag-of-words vector so texts sharing
// words land close together.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *hashEmbedder) Name() string { return "hash" }

func (e *hashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *hashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDims)
		v[0] = 0.1
		for _, tok := range tokenize(t) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(tok))
			v[1+int(h.Sum32()%(testDims-1))]++
		}
		out[i] = v
	}
	return out, nil
}

func (e *hashEmbedder) Ping(ctx context.Context) error { return e.err }

// recordingStore keeps inserted chunks in memory and answers searches with
// every chunk that passes the equality clauses.
type recordingStore struct {
	mu      sync.Mutex
	chunks  map[string]domain.IndexedChunk
	inserts int
	pingErr error
	failIns error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{chunks: make(map[string]domain.IndexedChunk)}
}

func (s *recordingStore) InsertChunks(ctx context.Context, chunks []domain.IndexedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIns != nil {
		return s.failIns
	}
	s.inserts++
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *recordingStore) DeleteBySourceType(ctx context.Context, t domain.EntityType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, c := range s.chunks {
		if c.SourceType == t {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

func (s *recordingStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.chunks))
	s.chunks = make(map[string]domain.IndexedChunk)
	return n, nil
}

func (s *recordingStore) SearchChunks(ctx context.Context, embedding []float32, filter domain.ChunkFilter, limit int) ([]domain.ChunkMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChunkMatch
	for _, c := range s.chunks {
		if v, ok := filter.Equals["entity_type"]; ok && string(c.Metadata.EntityType) != v {
			continue
		}
		if v, ok := filter.Equals["entity_id"]; ok && c.Metadata.EntityID != v {
			continue
		}
		out = append(out, domain.ChunkMatch{Chunk: c, Similarity: 0.5})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chunk.ID < out[j].Chunk.ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *recordingStore) Stats(ctx context.Context) (*domain.IndexStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &domain.IndexStats{
		ChunksByType:    map[domain.EntityType]int64{},
		DocumentsByType: map[domain.EntityType]int64{},
	}
	docs := map[string]domain.EntityType{}
	for _, c := range s.chunks {
		stats.TotalChunks++
		stats.ChunksByType[c.SourceType]++
		docs[c.DocumentID] = c.SourceType
	}
	for _, t := range docs {
		stats.DocumentsByType[t]++
		stats.TotalDocuments++
	}
	return stats, nil
}

func (s *recordingStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *recordingStore) count(t domain.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chunks {
		if c.SourceType == t {
			n++
		}
	}
	return n
}

// memStatusStore is an in-memory SyncStatusStore.
type memStatusStore struct {
	mu       sync.Mutex
	statuses map[domain.EntityType]domain.SyncStatus
	pingErr  error
	upserts  int
}

func newMemStatusStore() *memStatusStore {
	return &memStatusStore{statuses: make(map[domain.EntityType]domain.SyncStatus)}
}

func (s *memStatusStore) EnsureDefaults(ctx context.Context, types []domain.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		if _, ok := s.statuses[t]; !ok {
			s.statuses[t] = *domain.NewSyncStatus(t)
		}
	}
	return nil
}

func (s *memStatusStore) Get(ctx context.Context, t domain.EntityType) (*domain.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[t]
	if !ok {
		return nil, domain.ErrSyncStatusNotFound
	}
	return &st, nil
}

func (s *memStatusStore) List(ctx context.Context) ([]*domain.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.SyncStatus
	for _, t := range domain.AllEntityTypes() {
		if st, ok := s.statuses[t]; ok {
			out = append(out, &st)
		}
	}
	return out, nil
}

func (s *memStatusStore) Upsert(ctx context.Context, st *domain.SyncStatus) error {
	if err := domain.ValidateSyncStatus(st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.statuses[st.EntityType] = *st
	return nil
}

func (s *memStatusStore) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.statuses {
		s.statuses[t] = *domain.NewSyncStatus(t)
	}
	return nil
}

func (s *memStatusStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *memStatusStore) status(t domain.EntityType) domain.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[t]
}

// staticLister serves a fixed record set and can fail its first calls.
type staticLister struct {
	mu       sync.Mutex
	t        domain.EntityType
	records  []domain.Record
	failures int
	err      error
	calls    int
	sinces   []time.Time
}

func (l *staticLister) EntityType() domain.EntityType { return l.t }

func (l *staticLister) ListRecords(ctx context.Context) ([]domain.Record, error) {
	return l.ListRecordsChangedSince(ctx, domain.SyncEpoch)
}

func (l *staticLister) ListRecordsChangedSince(ctx context.Context, since time.Time) ([]domain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.sinces = append(l.sinces, since)
	if l.calls <= l.failures {
		if l.err != nil {
			return nil, l.err
		}
		return nil, errors.New("source unavailable")
	}
	var out []domain.Record
	for _, r := range l.records {
		if r.UpdatedTime().After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *staticLister) set(records ...domain.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = records
}

func (l *staticLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *staticLister) lastSince() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sinces) == 0 {
		return time.Time{}
	}
	return l.sinces[len(l.sinces)-1]
}

// emptyListers returns one lister per entity type with no records.
func emptyListers() map[domain.EntityType]*staticLister {
	out := make(map[domain.EntityType]*staticLister)
	for _, t := range domain.AllEntityTypes() {
		out[t] = &staticLister{t: t}
	}
	return out
}

func registryOf(listers map[domain.EntityType]*staticLister) *SyncRegistry {
	var ls []RecordLister
	for _, t := range domain.AllEntityTypes() {
		ls = append(ls, listers[t])
	}
	reg, err := NewSyncRegistry(ls...)
	if err != nil {
		panic(err)
	}
	return reg
}

func readyReadiness() *Readiness {
	r := NewReadiness()
	r.MarkReady()
	return r
}

// MockGenerator is a testify mock of Generator.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Name() string  { return "mock" }
func (m *MockGenerator) Model() string { return "mock-1" }

func (m *MockGenerator) Generate(ctx context.Context, prompt string, params generation.SamplingParams) (string, error) {
	args := m.Called(ctx, prompt, params)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
