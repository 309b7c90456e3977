package factory

import (
	"errors"
	"strings"

	"github.com/loykin/gestures/internal/store"
	"github.com/loykin/gestures/internal/store/memory"
	pg "github.com/loykin/gestures/internal/store/postgres"
	sq "github.com/loykin/gestures/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - memory:   "memory://"
//   - sqlite:   "sqlite:///<path>", "sqlite://:memory:" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if ld == "memory://" || ld == "memory" {
		return memory.New(), nil
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		path := d[len("sqlite://"):]
		return sq.New(path)
	}
	if strings.Contains(ld, "://") {
		return nil, errors.New("unsupported store DSN: " + d)
	}
	// default to sqlite path
	return sq.New(d)
}
