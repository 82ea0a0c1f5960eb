// Package repotest opens migrated in-memory databases for tests.
package repotest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/joseph-ayodele/shift-reports/internal/repository"
)

var seq atomic.Int64

// Logger discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewSQLite returns a migrated, isolated in-memory sqlite database closed at test cleanup.
func NewSQLite(t testing.TB) *repository.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, dsn, Logger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close(Logger()) })
	if err := repository.Migrate(ctx, db, Logger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
