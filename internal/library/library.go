package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/loykin/gestures/internal/metrics"
	"github.com/loykin/gestures/internal/store"
	"github.com/loykin/gestures/internal/take"
)

var (
	ErrNotFound      = errors.New("recording not found")
	ErrInvalidName   = errors.New("recording name must not be empty")
	ErrEmptyLibrary  = errors.New("library is empty")
	ErrInvalidImport = errors.New("import document contains no recording list")
)

const (
	DefaultKey        = "vib34d-gestures"
	DefaultNamePrefix = "Gesture"
	CopySuffix        = " (copy)"
)

// Options configures a Library. Store may be nil for a purely in-memory library.
type Options struct {
	Store      store.Store
	Key        string
	NamePrefix string
	Logger     *slog.Logger
	Clock      clockwork.Clock
	NewID      func() string
}

// Library owns the ordered list of recordings (newest first) and the
// current selection. The selection always names an existing recording or
// is empty.
type Library struct {
	mu       sync.RWMutex
	order    []string
	byID     map[string]*take.Recording
	selected string

	st     store.Store
	key    string
	prefix string
	logger *slog.Logger
	clock  clockwork.Clock
	newID  func() string
}

func New(opts Options) *Library {
	l := &Library{
		byID:   make(map[string]*take.Recording),
		st:     opts.Store,
		key:    opts.Key,
		prefix: opts.NamePrefix,
		logger: opts.Logger,
		clock:  opts.Clock,
		newID:  opts.NewID,
	}
	if l.key == "" {
		l.key = DefaultKey
	}
	if l.prefix == "" {
		l.prefix = DefaultNamePrefix
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.clock == nil {
		l.clock = clockwork.NewRealClock()
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

func (l *Library) NamePrefix() string { return l.prefix }

// NewID returns a fresh recording id from the configured generator.
func (l *Library) NewID() string { return l.newID() }

func (l *Library) defaults() take.Defaults {
	return take.Defaults{NamePrefix: l.prefix, Now: l.clock.Now, NewID: l.newID}
}

// Load replaces the in-memory state with the persisted one. Missing or
// corrupt state yields an empty library; only store failures are returned.
func (l *Library) Load(ctx context.Context) error {
	if l.st == nil {
		return nil
	}
	data, err := l.st.Get(ctx, l.key)
	if errors.Is(err, store.ErrNotFound) {
		l.reset(nil, "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load library: %w", err)
	}
	st := decodeState(data, l.defaults(), l.logger)
	l.reset(st.Recordings, st.SelectedID)
	l.logger.Info("library loaded", "recordings", len(st.Recordings), "selected", st.SelectedID)
	return nil
}

// reset installs recs, deduplicating ids, and resolves the selection.
func (l *Library) reset(recs []take.Recording, selected string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = make([]string, 0, len(recs))
	l.byID = make(map[string]*take.Recording, len(recs))
	for _, r := range recs {
		r := r.Clone()
		if _, dup := l.byID[r.ID]; dup || r.ID == "" {
			r.ID = l.newID()
		}
		l.byID[r.ID] = &r
		l.order = append(l.order, r.ID)
	}
	l.selected = ""
	if _, ok := l.byID[selected]; ok {
		l.selected = selected
	} else if selected != "" && len(l.order) > 0 {
		l.selected = l.order[0]
	}
	metrics.SetLibrarySize(len(l.order))
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// List returns copies of all recordings, newest first.
func (l *Library) List() []take.Recording {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]take.Recording, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id].Clone())
	}
	return out
}

func (l *Library) Summaries() []take.Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]take.Summary, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id].Summary())
	}
	return out
}

func (l *Library) Get(id string) (take.Recording, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byID[id]
	if !ok {
		return take.Recording{}, false
	}
	return r.Clone(), true
}

// SelectedID returns the selected recording id or "".
func (l *Library) SelectedID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selected
}

// Add prepends rec and selects it. A colliding or empty id is replaced.
func (l *Library) Add(rec take.Recording) take.Recording {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prependLocked(rec.Clone())
}

func (l *Library) prependLocked(rec take.Recording) take.Recording {
	if _, dup := l.byID[rec.ID]; dup || rec.ID == "" {
		rec.ID = l.newID()
	}
	l.byID[rec.ID] = &rec
	l.order = append([]string{rec.ID}, l.order...)
	l.selected = rec.ID
	metrics.SetLibrarySize(len(l.order))
	return rec.Clone()
}

// Select sets the selection when id exists and reports whether it did.
func (l *Library) Select(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[id]; !ok {
		return false
	}
	l.selected = id
	return true
}

func (l *Library) Rename(id, name string) (take.Recording, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return take.Recording{}, ErrInvalidName
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.byID[id]
	if !ok {
		return take.Recording{}, fmt.Errorf("rename %q: %w", id, ErrNotFound)
	}
	r.Name = name
	r.UpdatedAt = l.clock.Now()
	return r.Clone(), nil
}

// Duplicate clones id under a new id at the front and selects the copy.
func (l *Library) Duplicate(id string) (take.Recording, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.byID[id]
	if !ok {
		return take.Recording{}, fmt.Errorf("duplicate %q: %w", id, ErrNotFound)
	}
	now := l.clock.Now()
	cp := src.Clone()
	cp.ID = l.newID()
	cp.Name = src.Name + CopySuffix
	cp.CreatedAt = now
	cp.UpdatedAt = now
	return l.prependLocked(cp), nil
}

// Delete removes id. A deleted selection moves to the new front entry.
func (l *Library) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[id]; !ok {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	delete(l.byID, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i:i], l.order[i+1:]...)
			break
		}
	}
	if l.selected == id {
		l.selected = ""
		if len(l.order) > 0 {
			l.selected = l.order[0]
		}
	}
	metrics.SetLibrarySize(len(l.order))
	return nil
}

func (l *Library) Clear() {
	l.reset(nil, "")
}

// Replace installs recs as the whole library and selects the front entry.
func (l *Library) Replace(recs []take.Recording) {
	l.reset(recs, "")
	l.mu.Lock()
	if l.selected == "" && len(l.order) > 0 {
		l.selected = l.order[0]
	}
	l.mu.Unlock()
}

// Snapshot returns a deep copy of the library state.
func (l *Library) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st := State{Recordings: make([]take.Recording, 0, len(l.order)), SelectedID: l.selected}
	for _, id := range l.order {
		st.Recordings = append(st.Recordings, l.byID[id].Clone())
	}
	return st
}

// Save writes st under the library key. It is a no-op without a store.
func (l *Library) Save(ctx context.Context, st State) error {
	if l.st == nil {
		return nil
	}
	data, err := st.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode library: %w", err)
	}
	if err := l.st.Put(ctx, l.key, data); err != nil {
		metrics.IncPersistError()
		return fmt.Errorf("persist library: %w", err)
	}
	return nil
}

// Persist saves the current state.
func (l *Library) Persist(ctx context.Context) error {
	return l.Save(ctx, l.Snapshot())
}
