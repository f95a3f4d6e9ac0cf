// Package database manages the bounded connection pool behind the store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PoolConfig bounds the connection pool. AcquireTimeout caps how long a
// request may block waiting for a connection so persistence stalls cannot
// cascade into request latency.
type PoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
}

// DefaultPoolConfig returns production defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    50,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		AcquireTimeout:  5 * time.Second,
	}
}

// Pool wraps the sql.DB pool settings of a gorm handle.
type Pool struct {
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger
}

// Configure applies the pool bounds to db's underlying sql.DB.
func Configure(db *gorm.DB, config PoolConfig, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AcquireTimeout <= 0 || config.AcquireTimeout > 5*time.Second {
		config.AcquireTimeout = 5 * time.Second
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	logger.Info("database pool configured",
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Duration("acquire_timeout", config.AcquireTimeout),
	)

	return &Pool{sqlDB: sqlDB, config: config, logger: logger}, nil
}

// AcquireContext derives a context bounded by the acquire timeout, for
// callers about to touch the pool on the request path.
func (p *Pool) AcquireContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.config.AcquireTimeout)
}

// Ping verifies connectivity under the acquire timeout.
func (p *Pool) Ping(ctx context.Context) error {
	ctx, cancel := p.AcquireContext(ctx)
	defer cancel()
	return p.sqlDB.PingContext(ctx)
}

// Stats exposes pool statistics for the health endpoint.
func (p *Pool) Stats() sql.DBStats { return p.sqlDB.Stats() }

// Close closes the pool.
func (p *Pool) Close() error { return p.sqlDB.Close() }
