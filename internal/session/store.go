package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
	ErrStoreClosed     = errors.New("session store closed")
)

// Config controls session limits. Zero values take defaults.
type Config struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxSessions   int
	Coordinator   coordinator.Options
}

const (
	defaultIdleTimeout   = 30 * time.Minute
	defaultSweepInterval = time.Minute
	defaultMaxSessions   = 10000
)

// Store owns every live session.
type Store struct {
	fetcher  coordinator.Fetcher
	searcher coordinator.Searcher
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewStore creates an empty store. Sessions fetch through fetcher and search
// through searcher, normally the same *service.DiscoveryService.
func NewStore(fetcher coordinator.Fetcher, searcher coordinator.Searcher, cfg Config, logger *zap.Logger) *Store {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		fetcher:  fetcher,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session and runs its Init with loc.
func (s *Store) Create(ctx context.Context, loc coordinator.Locator) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	if len(s.sessions) >= s.cfg.MaxSessions {
		s.mu.Unlock()
		return nil, ErrTooManySessions
	}
	id := uuid.NewString()
	opts := s.cfg.Coordinator
	opts.Logger = s.logger.With(zap.String("session_id", id))
	sess := newSession(id, s.now(), coordinator.New(s.fetcher, opts), s.searcher)
	s.sessions[id] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	observability.SessionsActive.Set(float64(n))
	s.logger.Debug("session created", zap.String("session_id", id))

	if err := sess.Init(ctx, loc); err != nil {
		_ = s.Delete(id)
		return nil, err
	}
	return sess, nil
}

// Get returns the session and marks it as used.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	sess.touch(s.now())
	return sess, nil
}

// Delete closes and removes the session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	observability.SessionsActive.Set(float64(n))
	sess.close()
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions untouched for longer than the idle timeout and
// without an open stream. It returns how many were removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)
	var expired []*Session

	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.LastSeen().Before(cutoff) && sess.subscribers() == 0 {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		sess.close()
		s.logger.Debug("session expired", zap.String("session_id", sess.ID))
	}
	if len(expired) > 0 {
		observability.SessionsExpiredTotal.Add(float64(len(expired)))
		observability.SessionsActive.Set(float64(n))
	}
	return len(expired)
}

// Run sweeps idle sessions every SweepInterval until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("expired idle sessions", zap.Int("count", n), zap.Int("active", s.Len()))
			}
		}
	}
}

// Close closes every session and rejects new ones.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	all := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.close()
	}
	observability.SessionsActive.Set(0)
}
