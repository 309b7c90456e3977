package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/loykin/gestures/internal/store"
)

var _ store.Store = (*DB)(nil)

func TestMemoryKeyValue(t *testing.T) {
	db := New()
	ctx := context.Background()
	if _, err := db.Get(ctx, "lib"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	in := []byte(`{"recordings":[]}`)
	if err := db.Put(ctx, "lib", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	in[0] = 'X'
	got, err := db.Get(ctx, "lib")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"recordings":[]}` {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
	got[0] = 'Y'
	again, _ := db.Get(ctx, "lib")
	if again[0] != '{' {
		t.Fatalf("returned value aliases stored buffer")
	}

	if err := db.Delete(ctx, "lib"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get(ctx, "lib"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
