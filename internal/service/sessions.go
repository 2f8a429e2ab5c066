package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

const (
	sessionShards = 16

	DefaultSessionMaxMessages = 30
	DefaultSessionIdleTTL     = time.Hour
)

// SessionArchive persists the transcript of a session being evicted.
type SessionArchive interface {
	Archive(ctx context.Context, session *domain.ChatSession) error
}

type SessionConfig struct {
	MaxMessages int
	IdleTTL     time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{MaxMessages: DefaultSessionMaxMessages, IdleTTL: DefaultSessionIdleTTL}
}

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.ChatSession
	removed bool
}

type sessionShard struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

// SessionStore keeps chat sessions in memory. Sessions are spread over
// hash-selected shards; each shard lock guards its map and each entry lock
// guards one conversation.
type SessionStore struct {
	shards  [sessionShards]*sessionShard
	cfg     SessionConfig
	archive SessionArchive
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionStore creates a store. archive may be nil.
func NewSessionStore(cfg SessionConfig, archive SessionArchive, logger *zap.Logger) *SessionStore {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultSessionMaxMessages
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultSessionIdleTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionStore{
		cfg:     cfg,
		archive: archive,
		logger:  logger.Named("sessions"),
		now:     time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &sessionShard{entries: make(map[string]*sessionEntry)}
	}
	return s
}

func (s *SessionStore) shardFor(id string) *sessionShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%sessionShards]
}

func (s *SessionStore) getOrCreate(id, userID string) *sessionEntry {
	shard := s.shardFor(id)

	shard.mu.RLock()
	e, ok := shard.entries[id]
	shard.mu.RUnlock()
	if ok {
		return e
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if e, ok = shard.entries[id]; ok {
		return e
	}
	e = &sessionEntry{session: domain.NewChatSession(id, userID, s.now())}
	shard.entries[id] = e
	return e
}

// Append adds msgs to the session, creating it when needed, and returns a
// copy of the updated session.
func (s *SessionStore) Append(id, userID string, msgs ...domain.Message) *domain.ChatSession {
	for {
		e := s.getOrCreate(id, userID)
		e.mu.Lock()
		if e.removed {
			// Swept between lookup and lock; retry against a fresh entry.
			e.mu.Unlock()
			continue
		}
		for _, m := range msgs {
			if m.Timestamp.IsZero() {
				m.Timestamp = s.now()
			}
			e.session.Append(m, s.cfg.MaxMessages)
		}
		out := e.session.Clone()
		e.mu.Unlock()
		return out
	}
}

// Get returns a copy of the session.
func (s *SessionStore) Get(id string) (*domain.ChatSession, error) {
	shard := s.shardFor(id)
	shard.mu.RLock()
	e, ok := shard.entries[id]
	shard.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return nil, domain.ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Delete drops a session without archiving it.
func (s *SessionStore) Delete(id string) bool {
	shard := s.shardFor(id)
	shard.mu.Lock()
	e, ok := shard.entries[id]
	delete(shard.entries, id)
	shard.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return true
}

func (s *SessionStore) Len() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.RLock()
		n += len(shard.entries)
		shard.mu.RUnlock()
	}
	return n
}

// Sweep removes sessions idle for longer than the configured TTL, archiving
// them first when an archive is configured. It returns the number removed.
func (s *SessionStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	return s.evict(ctx, func(cs *domain.ChatSession) bool {
		return cs.IdleSince(now, s.cfg.IdleTTL)
	})
}

// Drain removes and archives every session. It is used on shutdown.
func (s *SessionStore) Drain(ctx context.Context) (int, error) {
	return s.evict(ctx, func(*domain.ChatSession) bool { return true })
}

func (s *SessionStore) evict(ctx context.Context, match func(*domain.ChatSession) bool) (int, error) {
	var (
		removed []*domain.ChatSession
		errs    []error
	)

	for _, shard := range s.shards {
		shard.mu.Lock()
		for id, e := range shard.entries {
			e.mu.Lock()
			if match(e.session) {
				e.removed = true
				delete(shard.entries, id)
				removed = append(removed, e.session.Clone())
			}
			e.mu.Unlock()
		}
		shard.mu.Unlock()
	}

	if s.archive != nil {
		for _, cs := range removed {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			if err := s.archive.Archive(ctx, cs); err != nil {
				s.logger.Warn("session archive failed", zap.String("session_id", cs.ID), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}

	if len(removed) > 0 {
		s.logger.Debug("sessions evicted", zap.Int("count", len(removed)))
	}
	return len(removed), errors.Join(errs...)
}
