// Package session keeps alert forms in memory between requests and completes
// their asynchronous indicator resolutions.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stockwatch/alert-composer/internal/alertform"
	"github.com/stockwatch/alert-composer/internal/catalog"
	"github.com/stockwatch/alert-composer/internal/model"
)

// CatalogLoader fetches the indicator catalog on behalf of a token
type CatalogLoader interface {
	Load(ctx context.Context, token string) (*catalog.Catalog, error)
}

// selection is an indicator choice waiting for the catalog
type selection struct {
	condition  model.ConditionID
	slot       alertform.Slot
	generation uint64
	name       string
}

// Session is one user's form. All access to the controller goes through the
// session lock.
type Session struct {
	id    string
	owner string
	token string

	mu         sync.Mutex
	ctrl       *alertform.Controller
	lastUsed   time.Time
	loading    bool
	catalogErr error
	waiting    []selection

	store *Store
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Owner returns the key of the user the session belongs to
func (s *Session) Owner() string {
	return s.owner
}

// Token returns the backend token the session was opened with
func (s *Session) Token() string {
	return s.token
}

// Do runs fn with exclusive access to the controller
func (s *Session) Do(fn func(ctrl *alertform.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.store.now()
	return fn(s.ctrl)
}

// CatalogErr returns the error of the last failed catalog load, if any
func (s *Session) CatalogErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalogErr
}

// SelectIndicator selects an indicator for a condition slot. When the catalog
// is not loaded yet the selection is queued and a load is started unless one
// is already running.
func (s *Session) SelectIndicator(id model.ConditionID, slot alertform.Slot, name string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.store.now()

	gen, pending, err := s.ctrl.SelectIndicator(id, slot, name)
	if err != nil || !pending {
		return gen, pending, err
	}
	s.waiting = append(s.waiting, selection{condition: id, slot: slot, generation: gen, name: name})
	s.startLoadLocked()
	return gen, pending, nil
}

// startLoadLocked starts a catalog fetch. The caller holds s.mu.
func (s *Session) startLoadLocked() {
	if s.loading || s.store.loader == nil {
		return
	}
	s.loading = true
	s.catalogErr = nil
	s.store.wg.Add(1)
	go s.load()
}

func (s *Session) load() {
	defer s.store.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.store.loadTimeout)
	defer cancel()
	cat, err := s.store.loader.Load(ctx, s.token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.complete(cat, err)
}

// complete applies a finished catalog load to every queued selection. The
// caller holds s.mu.
func (s *Session) complete(cat *catalog.Catalog, err error) {
	waiting := s.waiting
	s.waiting = nil

	if err != nil {
		s.catalogErr = err
		s.store.logger.Warn("Failed to load indicator catalog",
			zap.String("session", s.id),
			zap.Error(err))
	}

	for _, sel := range waiting {
		var (
			ind   model.Indicator
			found bool
		)
		if err == nil {
			ind, found = cat.Resolve(sel.name)
		}
		if !s.ctrl.CompleteResolution(sel.condition, sel.slot, sel.generation, ind, found) {
			s.store.logger.Debug("Dropping stale indicator resolution",
				zap.String("session", s.id),
				zap.String("condition", string(sel.condition)),
				zap.Stringer("slot", sel.slot),
				zap.Uint64("generation", sel.generation))
		}
	}

	if err == nil {
		s.ctrl.SetCatalog(cat)
	}
}
