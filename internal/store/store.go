// Package store is the persistence layer: gorm models for API keys, cost
// records and request logs, plus the aggregation queries behind the
// analytics endpoints.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the gorm handle.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to PostgreSQL with the given DSN.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return New(db, logger), nil
}

// New wraps an existing gorm handle (tests use an in-memory sqlite one).
func New(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.With(zap.String("component", "store"))}
}

// DB exposes the underlying handle for pool configuration.
func (s *Store) DB() *gorm.DB { return s.db }

// AutoMigrate creates the schema. Production deployments run the SQL
// migrations instead; this exists for tests and dev bootstrap.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&APIKey{}, &CostRecord{}, &RequestLog{})
}

// --- API keys ---

// ActiveAPIKeys returns all keys with is_active = true.
func (s *Store) ActiveAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&keys).Error
	return keys, err
}

// APIKeyByID fetches one key row.
func (s *Store) APIKeyByID(ctx context.Context, id string) (*APIKey, error) {
	var key APIKey
	if err := s.db.WithContext(ctx).First(&key, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// CreateAPIKey inserts a key row.
func (s *Store) CreateAPIKey(ctx context.Context, key *APIKey) error {
	return s.db.WithContext(ctx).Create(key).Error
}

// ListAPIKeys returns every key row, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// DeactivateAPIKey soft-disables a key.
func (s *Store) DeactivateAPIKey(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&APIKey{}).
		Where("id = ?", id).Update("is_active", false).Error
}

// --- cost records ---

// CreateCostRecord writes one cost row in a transaction.
func (s *Store) CreateCostRecord(ctx context.Context, record *CostRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})
}

// CreateRequestLog writes one request-log row.
func (s *Store) CreateRequestLog(ctx context.Context, log *RequestLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// RecordFilter narrows cost-record queries.
type RecordFilter struct {
	APIKeyID  string
	Provider  string
	Model     string
	StartDate *time.Time
	EndDate   *time.Time
}

func (s *Store) filtered(ctx context.Context, f RecordFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&CostRecord{}).Where("api_key_id = ?", f.APIKeyID)
	if f.Provider != "" {
		q = q.Where("provider = ?", f.Provider)
	}
	if f.Model != "" {
		q = q.Where("model = ?", f.Model)
	}
	if f.StartDate != nil {
		q = q.Where("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("created_at <= ?", *f.EndDate)
	}
	return q
}

// Aggregate is one grouped aggregation row.
type Aggregate struct {
	Group        string
	TotalCostUSD decimal.Decimal
	RequestCount int64
	TokensIn     int64
	TokensOut    int64
	AvgLatencyMs float64
}

type aggregateRow struct {
	Grp          string
	TotalCost    decimal.Decimal
	RequestCount int64
	TokensIn     int64
	TokensOut    int64
	AvgLatency   float64
}

const aggregateSelect = "COALESCE(SUM(cost_usd), 0) AS total_cost, COUNT(id) AS request_count, " +
	"COALESCE(SUM(tokens_in), 0) AS tokens_in, COALESCE(SUM(tokens_out), 0) AS tokens_out, " +
	"COALESCE(AVG(latency_ms), 0) AS avg_latency"

// Totals returns the unsliced aggregate for a filter.
func (s *Store) Totals(ctx context.Context, f RecordFilter) (*Aggregate, error) {
	var row aggregateRow
	err := s.filtered(ctx, f).Select(aggregateSelect).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &Aggregate{
		TotalCostUSD: row.TotalCost,
		RequestCount: row.RequestCount,
		TokensIn:     row.TokensIn,
		TokensOut:    row.TokensOut,
		AvgLatencyMs: row.AvgLatency,
	}, nil
}

// GroupedTotals aggregates by "provider" or "model".
func (s *Store) GroupedTotals(ctx context.Context, f RecordFilter, column string) ([]Aggregate, error) {
	var rows []aggregateRow
	err := s.filtered(ctx, f).
		Select(column + " AS grp, " + aggregateSelect).
		Group(column).
		Order("total_cost DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Aggregate, 0, len(rows))
	for _, r := range rows {
		out = append(out, Aggregate{
			Group:        r.Grp,
			TotalCostUSD: r.TotalCost,
			RequestCount: r.RequestCount,
			TokensIn:     r.TokensIn,
			TokensOut:    r.TokensOut,
			AvgLatencyMs: r.AvgLatency,
		})
	}
	return out, nil
}

// CostRecords returns filtered rows, newest first, paginated.
func (s *Store) CostRecords(ctx context.Context, f RecordFilter, limit, offset int) ([]CostRecord, error) {
	var records []CostRecord
	err := s.filtered(ctx, f).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	return records, err
}

// RecordCount counts rows matching a filter.
func (s *Store) RecordCount(ctx context.Context, f RecordFilter) (int64, error) {
	var n int64
	err := s.filtered(ctx, f).Count(&n).Error
	return n, err
}

// RecordsInRange returns the raw rows for Go-side trend bucketing. The
// daily/monthly bucketing happens in the handler so the query stays
// portable across postgres and the sqlite test store.
func (s *Store) RecordsInRange(ctx context.Context, f RecordFilter) ([]CostRecord, error) {
	var records []CostRecord
	err := s.filtered(ctx, f).Order("created_at ASC").Find(&records).Error
	return records, err
}
