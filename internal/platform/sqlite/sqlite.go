// Package sqlite opens the pure-Go SQLite driver used for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ragdesk/internal/platform/dbutil"
)

// New opens path, creating its directory. ":memory:" and "file:" DSNs are
// passed through unchanged.
func New(ctx context.Context, path string, log *zap.Logger) (*gorm.DB, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir failed: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), dbutil.Config(log))
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	// a single writer avoids SQLITE_BUSY under concurrent uploads
	pool := dbutil.DefaultPool
	pool.MaxOpen = 1
	pool.MaxIdle = 1
	if err := dbutil.Tune(ctx, db, "sqlite", pool); err != nil {
		return nil, err
	}
	return db, nil
}
