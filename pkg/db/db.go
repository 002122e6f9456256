package db

import (
	"context"
	"time"

	"github.com/stellarwp/restrict-content-sub000/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Module provides the shared gorm handle and closes it on shutdown.
var Module = fx.Module("db",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

// New opens the postgres connection pool. TranslateError is on so
// repositories can match gorm.ErrDuplicatedKey instead of driver
// error codes.
func New(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.IsProduction() {
		level = gormlogger.Error
	}

	conn, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("database connected")
	return conn, nil
}

func registerLifecycle(lc fx.Lifecycle, conn *gorm.DB, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("closing database connection")
			return sqlDB.Close()
		},
	})
}
