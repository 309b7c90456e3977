package engine

import (
	"github.com/loykin/gestures/internal/take"
)

// Library mutations go through the engine so that every change is persisted
// and re-published in the same order it was made.

func (e *Engine) Select(id string) bool {
	e.mu.Lock()
	ok := e.lib.Select(id)
	if ok {
		e.libraryChangedLocked()
	}
	e.mu.Unlock()
	e.flush()
	return ok
}

func (e *Engine) Rename(id, name string) (take.Recording, error) {
	e.mu.Lock()
	rec, err := e.lib.Rename(id, name)
	if err == nil {
		e.libraryChangedLocked()
	}
	e.mu.Unlock()
	e.flush()
	return rec, err
}

func (e *Engine) Duplicate(id string) (take.Recording, error) {
	e.mu.Lock()
	rec, err := e.lib.Duplicate(id)
	if err == nil {
		e.libraryChangedLocked()
		e.statusLocked("Duplicated as " + rec.Name)
	}
	e.mu.Unlock()
	e.flush()
	return rec, err
}

func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	err := e.lib.Delete(id)
	if err == nil {
		e.libraryChangedLocked()
	}
	e.mu.Unlock()
	e.flush()
	return err
}

func (e *Engine) Clear() {
	e.mu.Lock()
	e.lib.Clear()
	e.libraryChangedLocked()
	e.statusLocked("Library cleared")
	e.mu.Unlock()
	e.flush()
}

// Import replaces the library with the recordings in data.
func (e *Engine) Import(data []byte) ([]take.Recording, error) {
	e.mu.Lock()
	recs, err := e.lib.Import(data)
	if err != nil {
		e.statusLocked("Import failed")
	} else {
		e.libraryChangedLocked()
		e.statusLocked("Imported gestures")
	}
	e.mu.Unlock()
	e.flush()
	return recs, err
}

// Export renders the library document. It fails with library.ErrEmptyLibrary
// when there is nothing to export.
func (e *Engine) Export() ([]byte, error) {
	return e.lib.Export()
}

func (e *Engine) Recordings() []take.Recording { return e.lib.List() }

func (e *Engine) Summaries() []take.Summary { return e.lib.Summaries() }

func (e *Engine) Get(id string) (take.Recording, bool) { return e.lib.Get(id) }

func (e *Engine) SelectedID() string { return e.lib.SelectedID() }
