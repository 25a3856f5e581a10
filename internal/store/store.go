// Package store keeps an in-memory collection consistent with a remote store using
// optimistic updates. Local changes are applied before the remote call and rolled
// back from a snapshot when it fails.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/folio/internal/realtime"
)

// TempIDPrefix marks ids of tentative items that the remote store has not confirmed.
const TempIDPrefix = "temp-"

// ErrNotFound is returned when a mutation names an id that is not in the collection.
var ErrNotFound = errors.New("item not found")

// IsTemporaryID reports whether id was generated locally for a tentative item.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Item is a collection element with a stable id that can copy itself.
type Item[T any] interface {
	ItemID() string
	Clone() T
}

// Draft builds a tentative item from create input.
type Draft[T any] interface {
	Tentative(id string, now time.Time) T
}

// Patch applies a partial update to an item.
type Patch[T any] interface {
	Apply(T) T
}

// Remote is the asynchronous store that holds the authoritative collection.
type Remote[T, D, P any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, draft D) (T, error)
	Update(ctx context.Context, id string, patch P) (T, error)
	Delete(ctx context.Context, id string) error
}

// Cache persists the collection across restarts on a best-effort basis.
type Cache interface {
	Save(key string, value any) error
	Load(key string, dst any) (bool, error)
}

// State is a point-in-time copy of the store. Callers own it.
type State[T any] struct {
	Items     []T
	Selected  *T
	IsLoading bool
	Error     string
}

// Config names the collection and supplies its validation and fallback messages.
type Config[D, P any] struct {
	// Name is used in log lines and fallback messages, e.g. "holdings".
	Name          string
	ValidateDraft func(D) error
	ValidatePatch func(P) error
	Cache         Cache
	CacheKey      string
	Now           func() time.Time
	NewID         func() string
}

// Store owns one collection and its selection.
type Store[T Item[T], D Draft[T], P Patch[T]] struct {
	remote Remote[T, D, P]
	cfg    Config[D, P]

	mu        sync.Mutex
	items     []T
	selected  *T
	isLoading bool
	errMsg    string

	observers map[int]func(State[T])
	nextObs   int
}

// New creates an empty Store backed by remote.
func New[T Item[T], D Draft[T], P Patch[T]](remote Remote[T, D, P], cfg Config[D, P]) *Store[T, D, P] {
	if remote == nil {
		panic("store.New: remote is nil")
	}
	if cfg.Name == "" {
		cfg.Name = "items"
	}
	if cfg.CacheKey == "" {
		cfg.CacheKey = cfg.Name
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return TempIDPrefix + uuid.NewString() }
	}
	return &Store[T, D, P]{
		remote:    remote,
		cfg:       cfg,
		observers: make(map[int]func(State[T])),
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store[T, D, P]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Items returns a copy of the collection.
func (s *Store[T, D, P]) Items() []T {
	return s.Snapshot().Items
}

// Get returns a copy of the item with the given id.
func (s *Store[T, D, P]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := lo.Find(s.items, func(it T) bool { return it.ItemID() == id })
	if !ok {
		return it, false
	}
	return it.Clone(), true
}

// Subscribe registers fn to receive a snapshot after every state change.
// The returned function removes the subscription.
func (s *Store[T, D, P]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Select marks the item with id as selected.
func (s *Store[T, D, P]) Select(id string) bool {
	found := false
	s.mutate(func() {
		it, ok := lo.Find(s.items, func(it T) bool { return it.ItemID() == id })
		if !ok {
			return
		}
		c := it.Clone()
		s.selected = &c
		found = true
	})
	return found
}

// ClearSelection drops the selection.
func (s *Store[T, D, P]) ClearSelection() {
	s.mutate(func() { s.selected = nil })
}

// ClearError drops the last error message.
func (s *Store[T, D, P]) ClearError() {
	s.mutate(func() { s.errMsg = "" })
}

// Hydrate pre-populates an empty collection from the cache. It never overrides
// items that are already loaded.
func (s *Store[T, D, P]) Hydrate() (bool, error) {
	if s.cfg.Cache == nil {
		return false, nil
	}
	var cached []T
	found, err := s.cfg.Cache.Load(s.cfg.CacheKey, &cached)
	if err != nil {
		return false, fmt.Errorf("loading cached %s: %w", s.cfg.Name, err)
	}
	if !found {
		return false, nil
	}

	applied := false
	s.mutate(func() {
		if len(s.items) > 0 {
			return
		}
		s.items = cached
		applied = true
	})
	return applied, nil
}

// Fetch replaces the collection with the remote list. On failure the current items
// are kept and the error is recorded.
func (s *Store[T, D, P]) Fetch(ctx context.Context) error {
	s.mutate(func() { s.isLoading = true })

	items, err := s.remote.List(ctx)
	if err != nil {
		s.fail(err, "fetch")
		return fmt.Errorf("fetching %s: %w", s.cfg.Name, err)
	}

	s.mutate(func() {
		s.items = items
		s.errMsg = ""
		s.isLoading = false
	})

	if s.cfg.Cache != nil {
		if err := s.cfg.Cache.Save(s.cfg.CacheKey, items); err != nil {
			slog.Warn("store: failed to cache collection", "store", s.cfg.Name, "error", err)
		}
	}
	return nil
}

// Create inserts a tentative item at the head of the collection, submits draft, and
// swaps the tentative item for the server's on success.
func (s *Store[T, D, P]) Create(ctx context.Context, draft D) (T, error) {
	var zero T
	if s.cfg.ValidateDraft != nil {
		if err := s.cfg.ValidateDraft(draft); err != nil {
			return zero, err
		}
	}

	tempID := s.cfg.NewID()
	tentative := draft.Tentative(tempID, s.cfg.Now())
	s.mutate(func() {
		s.errMsg = ""
		s.isLoading = true
		s.items = append([]T{tentative}, s.items...)
	})

	created, err := s.remote.Create(ctx, draft)
	if err != nil {
		s.mutateFailed(err, "create", func() {
			s.items = lo.Reject(s.items, func(it T, _ int) bool { return it.ItemID() == tempID })
		})
		return zero, fmt.Errorf("creating %s: %w", s.cfg.Name, err)
	}

	s.mutate(func() {
		// A push insert for the new row may have landed before the remote call returned.
		items := lo.Reject(s.items, func(it T, _ int) bool {
			return it.ItemID() == created.ItemID() && it.ItemID() != tempID
		})
		s.items = lo.Map(items, func(it T, _ int) T {
			if it.ItemID() == tempID {
				return created
			}
			return it
		})
		s.isLoading = false
	})
	return created.Clone(), nil
}

// Update applies patch locally, submits it, and replaces the item with the server's
// version on success. On failure only the patched item is restored.
func (s *Store[T, D, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	var zero T
	if s.cfg.ValidatePatch != nil {
		if err := s.cfg.ValidatePatch(patch); err != nil {
			return zero, err
		}
	}

	var (
		prev  T
		found bool
	)
	s.mutate(func() {
		_, idx, ok := lo.FindIndexOf(s.items, func(it T) bool { return it.ItemID() == id })
		if !ok {
			return
		}
		found = true
		prev = s.items[idx].Clone()
		s.errMsg = ""
		s.isLoading = true
		next := make([]T, len(s.items))
		copy(next, s.items)
		next[idx] = patch.Apply(next[idx])
		s.items = next
	})
	if !found {
		return zero, fmt.Errorf("updating %s %s: %w", s.cfg.Name, id, ErrNotFound)
	}

	updated, err := s.remote.Update(ctx, id, patch)
	if err != nil {
		s.mutateFailed(err, "update", func() { s.restoreItemLocked(prev) })
		return zero, fmt.Errorf("updating %s %s: %w", s.cfg.Name, id, err)
	}

	s.mutate(func() {
		s.items = lo.Map(s.items, func(it T, _ int) T {
			if it.ItemID() == id {
				return updated
			}
			return it
		})
		if s.selected != nil && (*s.selected).ItemID() == id {
			c := updated.Clone()
			s.selected = &c
		}
		s.isLoading = false
	})
	return updated.Clone(), nil
}

// Delete removes the item locally and submits the delete. On failure the item is put
// back behind its former predecessor unless it reappeared meanwhile.
func (s *Store[T, D, P]) Delete(ctx context.Context, id string) error {
	var (
		prev        T
		prevIdx     = -1
		after       string
		wasSelected bool
	)
	s.mutate(func() {
		if _, idx, ok := lo.FindIndexOf(s.items, func(it T) bool { return it.ItemID() == id }); ok {
			prev, prevIdx = s.items[idx].Clone(), idx
			if idx > 0 {
				after = s.items[idx-1].ItemID()
			}
		}
		s.errMsg = ""
		s.isLoading = true
		s.items = lo.Reject(s.items, func(it T, _ int) bool { return it.ItemID() == id })
		if s.selected != nil && (*s.selected).ItemID() == id {
			s.selected = nil
			wasSelected = true
		}
	})

	if err := s.remote.Delete(ctx, id); err != nil {
		s.mutateFailed(err, "delete", func() {
			if prevIdx < 0 || lo.ContainsBy(s.items, func(it T) bool { return it.ItemID() == id }) {
				return
			}
			at := min(prevIdx, len(s.items))
			if after == "" {
				at = 0
			} else if _, j, ok := lo.FindIndexOf(s.items, func(it T) bool { return it.ItemID() == after }); ok {
				at = j + 1
			}
			s.items = append(s.items[:at:at], append([]T{prev}, s.items[at:]...)...)
			if wasSelected && s.selected == nil {
				c := prev.Clone()
				s.selected = &c
			}
		})
		return fmt.Errorf("deleting %s %s: %w", s.cfg.Name, id, err)
	}

	s.mutate(func() { s.isLoading = false })
	return nil
}

// Apply merges a push event into the collection.
func (s *Store[T, D, P]) Apply(ev realtime.Event[T]) {
	s.mutate(func() {
		s.items, s.selected = realtime.Reconcile(s.items, s.selected, ev)
	})
}

// fail records a remote failure without touching items.
func (s *Store[T, D, P]) fail(err error, op string) {
	s.mutateFailed(err, op, func() {})
}

func (s *Store[T, D, P]) mutateFailed(err error, op string, restore func()) {
	msg := errorMessage(err, fmt.Sprintf("failed to %s %s", op, s.cfg.Name))
	slog.Warn("store: remote operation failed", "store", s.cfg.Name, "op", op, "error", msg)
	s.mutate(func() {
		restore()
		s.errMsg = msg
		s.isLoading = false
	})
}

// restoreItemLocked puts prev back in place of the item with the same id. Changes to
// other items since the mutation started are kept. An item removed in the meantime stays
// removed.
func (s *Store[T, D, P]) restoreItemLocked(prev T) {
	id := prev.ItemID()
	s.items = lo.Map(s.items, func(it T, _ int) T {
		if it.ItemID() == id {
			return prev.Clone()
		}
		return it
	})
	if s.selected != nil && (*s.selected).ItemID() == id {
		c := prev.Clone()
		s.selected = &c
	}
}

// mutate runs fn under the lock and notifies observers once the lock is released.
func (s *Store[T, D, P]) mutate(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	observers := lo.Values(s.observers)
	s.mu.Unlock()

	for _, obs := range observers {
		obs(snap)
	}
}

func (s *Store[T, D, P]) snapshotLocked() State[T] {
	items, selected := s.copyLocked()
	return State[T]{
		Items:     items,
		Selected:  selected,
		IsLoading: s.isLoading,
		Error:     s.errMsg,
	}
}

func (s *Store[T, D, P]) copyLocked() ([]T, *T) {
	items := lo.Map(s.items, func(it T, _ int) T { return it.Clone() })
	var selected *T
	if s.selected != nil {
		c := (*s.selected).Clone()
		selected = &c
	}
	return items, selected
}

// errorMessage reduces err to a user-facing message, using fallback when err carries none.
func errorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fallback
}
