// Package linkindex owns the mutable link index and its mutation
// operations: full rebuild, debounced single-file update, and single-file
// removal. Consumers receive read-only snapshots via Index() and change
// notifications via Subscribe.
package linkindex

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/resolver"
	"github.com/starford/raido/internal/vault"
)

// DefaultDebounce is the quiet period before a pending file update is
// applied. Rapid successive edits to the same path coalesce into one
// update reflecting the latest content.
const DefaultDebounce = 500 * time.Millisecond

// Stats summarizes the current index for status endpoints.
type Stats struct {
	TotalFiles      int   `json:"total_files"`
	TotalLinks      int   `json:"total_links"`
	TotalTags       int   `json:"total_tags"`
	LastBuildTimeMs int64 `json:"last_build_time_ms"`
}

// Listener receives a read-only index snapshot after every successful
// rebuild, update, or removal.
type Listener func(*models.Index)

// Subscription identifies a registered listener.
type Subscription struct {
	id  uuid.UUID
	svc *Service
}

// Cancel removes the listener. Safe to call more than once.
func (s Subscription) Cancel() {
	if s.svc == nil {
		return
	}
	s.svc.subMu.Lock()
	delete(s.svc.subscribers, s.id)
	s.svc.subMu.Unlock()
}

// Option configures a Service.
type Option func(*Service)

// WithDebounce overrides the per-path update debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithFuzzyDistance overrides the resolver's fuzzy-match cutoff.
func WithFuzzyDistance(d int) Option {
	return func(s *Service) {
		if d > 0 {
			s.fuzzyDistance = d
		}
	}
}

// Service maintains the index over a vault. All mutations run to
// completion under the service lock, so readers never observe partial
// backlink or tag state.
type Service struct {
	store         vault.Provider
	logger        *slog.Logger
	debounce      time.Duration
	fuzzyDistance int

	mu           sync.RWMutex
	idx          *models.Index
	lastBuildDur time.Duration

	building atomic.Bool

	pendMu  sync.Mutex
	pending map[string]*time.Timer
	closed  bool

	subMu       sync.Mutex
	subscribers map[uuid.UUID]Listener
}

// New creates an index service over the given vault. The index starts
// empty; call Rebuild to populate it.
func New(store vault.Provider, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:         store,
		logger:        logger,
		debounce:      DefaultDebounce,
		fuzzyDistance: resolver.DefaultFuzzyDistance,
		idx:           models.NewIndex(),
		pending:       make(map[string]*time.Timer),
		subscribers:   make(map[uuid.UUID]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index returns a deep-copy snapshot of the current index. Callers may
// hold it indefinitely; it never changes under them.
func (s *Service) Index() *models.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Clone()
}

// SetIndex replaces the live index wholesale, e.g. with a snapshot
// restored from the cache store at startup. Counters are recomputed and
// stale entries pruned before the swap.
func (s *Service) SetIndex(idx *models.Index) {
	if idx == nil {
		return
	}
	validate(idx)
	recount(idx)

	s.mu.Lock()
	s.idx = idx
	snapshot := s.idx.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// Stats reports current totals and the duration of the last full rebuild.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalFiles:      s.idx.Metadata.TotalFiles,
		TotalLinks:      s.idx.Metadata.TotalLinks,
		TotalTags:       s.idx.TotalTags(),
		LastBuildTimeMs: s.lastBuildDur.Milliseconds(),
	}
}

// Subscribe registers a listener for change notifications.
// Listeners run synchronously on the mutating goroutine and must return
// quickly.
func (s *Service) Subscribe(fn Listener) Subscription {
	id := uuid.New()
	s.subMu.Lock()
	s.subscribers[id] = fn
	s.subMu.Unlock()
	return Subscription{id: id, svc: s}
}

// Close cancels every pending debounce timer and drops all subscribers.
// In-flight rebuilds are not interrupted; the in-progress guard prevents
// new ones from overlapping.
func (s *Service) Close() {
	s.pendMu.Lock()
	s.closed = true
	for path, t := range s.pending {
		t.Stop()
		delete(s.pending, path)
	}
	s.pendMu.Unlock()

	s.subMu.Lock()
	s.subscribers = make(map[uuid.UUID]Listener)
	s.subMu.Unlock()
}

// notify fans a snapshot out to all current subscribers.
func (s *Service) notify(snapshot *models.Index) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
