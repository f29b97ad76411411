package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ragdesk/internal/platform/dbutil"
)

func New(ctx context.Context, dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), dbutil.Config(log))
	if err != nil {
		return nil, fmt.Errorf("open postgres failed: %w", err)
	}
	pool := dbutil.DefaultPool
	pool.MaxOpen = 100
	if err := dbutil.Tune(ctx, db, "postgres", pool); err != nil {
		return nil, err
	}
	return db, nil
}
