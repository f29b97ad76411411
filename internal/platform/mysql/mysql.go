package mysql

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"ragdesk/internal/platform/dbutil"
)

func New(ctx context.Context, dsn string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), dbutil.Config(log))
	if err != nil {
		return nil, fmt.Errorf("open mysql failed: %w", err)
	}
	if err := dbutil.Tune(ctx, db, "mysql", dbutil.DefaultPool); err != nil {
		return nil, err
	}
	return db, nil
}
