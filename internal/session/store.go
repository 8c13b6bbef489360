package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/metrics"
)

// ErrSessionNotFound is returned for unknown, expired or foreign sessions
var ErrSessionNotFound = errors.New("form session not found")

// Config configures the session store
type Config struct {
	TTL           time.Duration
	SweepInterval time.Duration
	LoadTimeout   time.Duration
}

// Store holds the open form sessions
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	loader      CatalogLoader
	ttl         time.Duration
	sweep       time.Duration
	loadTimeout time.Duration
	logger      *zap.Logger
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewStore creates a session store. Sessions fetch their catalog with loader.
func NewStore(loader CatalogLoader, config Config, logger *zap.Logger) *Store {
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 10 * time.Second
	}
	return &Store{
		sessions:    make(map[string]*Session),
		loader:      loader,
		ttl:         config.TTL,
		sweep:       config.SweepInterval,
		loadTimeout: config.LoadTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Open registers a session for ctrl and starts loading the catalog. Indicator
// selections the controller already holds, as when editing, are resolved once
// the catalog arrives.
func (s *Store) Open(owner, token string, ctrl *alertform.Controller) *Session {
	sess := &Session{
		id:       uuid.NewString(),
		owner:    owner,
		token:    token,
		ctrl:     ctrl,
		lastUsed: s.now(),
		store:    s,
	}

	sess.mu.Lock()
	for _, cond := range ctrl.Conditions() {
		for _, slot := range []alertform.Slot{alertform.SourceSlot, alertform.ValueSlot} {
			if !cond.Pending(slot) {
				continue
			}
			sess.waiting = append(sess.waiting, selection{
				condition:  cond.ID(),
				slot:       slot,
				generation: cond.Generation(slot),
				name:       indicatorName(cond, slot),
			})
		}
	}
	if ctrl.Catalog() == nil {
		sess.startLoadLocked()
	}
	sess.mu.Unlock()

	s.mu.Lock()
	s.sessions[sess.id] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	metrics.SetOpenSessions(n)

	s.logger.Debug("Form session opened",
		zap.String("session", sess.id),
		zap.String("owner", owner))
	return sess
}

func indicatorName(cond *alertform.ConditionForm, slot alertform.Slot) string {
	field := alertform.FieldIndicator
	if slot == alertform.ValueSlot {
		field = alertform.FieldValueIndicator
	}
	name, _ := cond.Group().Control(field).Value().(string)
	return name
}

// Get returns the session with id if it belongs to owner
func (s *Store) Get(id, owner string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.owner != owner {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close removes the session with id if it belongs to owner
func (s *Store) Close(id, owner string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || sess.owner != owner {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetOpenSessions(n)
	return nil
}

// Len returns the number of open sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep closes every session idle for longer than the TTL and returns how
// many were closed
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	expired := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastUsed.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			expired++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetOpenSessions(n)
	if expired > 0 {
		s.logger.Info("Expired idle form sessions", zap.Int("count", expired), zap.Int("open", n))
	}
	return expired
}

// Run sweeps expired sessions until ctx is cancelled
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Wait blocks until every running catalog load has finished
func (s *Store) Wait() {
	s.wg.Wait()
}
