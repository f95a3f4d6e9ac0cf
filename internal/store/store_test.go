package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	st := New(db, nil)
	require.NoError(t, st.AutoMigrate())
	return st
}

func seedKey(t *testing.T, st *Store, name string) *APIKey {
	t.Helper()
	key := &APIKey{KeyHash: "hash-" + name, Name: name, RateLimitPerMinute: 60, IsActive: true}
	require.NoError(t, st.CreateAPIKey(context.Background(), key))
	return key
}

func seedRecord(t *testing.T, st *Store, keyID, provider, model, cost string, at time.Time) {
	t.Helper()
	require.NoError(t, st.CreateCostRecord(context.Background(), &CostRecord{
		APIKeyID:  keyID,
		RequestID: "req-test",
		Provider:  provider,
		Model:     model,
		TokensIn:  100,
		TokensOut: 50,
		CostUSD:   decimal.RequireFromString(cost),
		LatencyMs: 120,
		CreatedAt: at,
	}))
}

func TestAPIKeyLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	key := seedKey(t, st, "alpha")
	require.NotEmpty(t, key.ID, "BeforeCreate assigns a uuid")

	active, err := st.ActiveAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	got, err := st.APIKeyByID(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
	assert.True(t, got.IsActive)

	require.NoError(t, st.DeactivateAPIKey(ctx, key.ID))

	active, err = st.ActiveAPIKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := st.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}

func TestTotalsAndGroupedTotals(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := seedKey(t, st, "alpha")
	other := seedKey(t, st, "beta")

	now := time.Now().UTC()
	seedRecord(t, st, key.ID, "openai", "gpt-4", "0.09", now)
	seedRecord(t, st, key.ID, "openai", "gpt-3.5-turbo", "0.004", now)
	seedRecord(t, st, key.ID, "deepseek", "deepseek-chat", "0.0004", now)
	// Another tenant's spend must not leak into alpha's totals.
	seedRecord(t, st, other.ID, "openai", "gpt-4", "1.00", now)

	totals, err := st.Totals(ctx, RecordFilter{APIKeyID: key.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), totals.RequestCount)
	assert.True(t, totals.TotalCostUSD.Equal(decimal.RequireFromString("0.0944")),
		"got %s", totals.TotalCostUSD)
	assert.Equal(t, int64(300), totals.TokensIn)
	assert.Equal(t, int64(150), totals.TokensOut)
	assert.InDelta(t, 120.0, totals.AvgLatencyMs, 0.001)

	byProvider, err := st.GroupedTotals(ctx, RecordFilter{APIKeyID: key.ID}, "provider")
	require.NoError(t, err)
	require.Len(t, byProvider, 2)
	// Ordered by total cost descending.
	assert.Equal(t, "openai", byProvider[0].Group)
	assert.Equal(t, int64(2), byProvider[0].RequestCount)
	assert.Equal(t, "deepseek", byProvider[1].Group)

	byModel, err := st.GroupedTotals(ctx, RecordFilter{APIKeyID: key.ID}, "model")
	require.NoError(t, err)
	assert.Len(t, byModel, 3)
}

func TestRecordFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := seedKey(t, st, "alpha")

	now := time.Now().UTC()
	old := now.Add(-72 * time.Hour)
	seedRecord(t, st, key.ID, "openai", "gpt-4", "0.09", old)
	seedRecord(t, st, key.ID, "deepseek", "deepseek-chat", "0.0004", now)

	byProvider, err := st.Totals(ctx, RecordFilter{APIKeyID: key.ID, Provider: "deepseek"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byProvider.RequestCount)

	start := now.Add(-24 * time.Hour)
	recent, err := st.Totals(ctx, RecordFilter{APIKeyID: key.ID, StartDate: &start})
	require.NoError(t, err)
	assert.Equal(t, int64(1), recent.RequestCount)

	inRange, err := st.RecordsInRange(ctx, RecordFilter{APIKeyID: key.ID})
	require.NoError(t, err)
	require.Len(t, inRange, 2)
	// Ascending order for trend bucketing.
	assert.True(t, inRange[0].CreatedAt.Before(inRange[1].CreatedAt))
}

func TestCostRecordsPagination(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	key := seedKey(t, st, "alpha")

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedRecord(t, st, key.ID, "openai", "gpt-4", "0.01", base.Add(time.Duration(i)*time.Minute))
	}

	page, err := st.CostRecords(ctx, RecordFilter{APIKeyID: key.ID}, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Newest first.
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	rest, err := st.CostRecords(ctx, RecordFilter{APIKeyID: key.ID}, 10, 4)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	n, err := st.RecordCount(ctx, RecordFilter{APIKeyID: key.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestCreateRequestLog(t *testing.T) {
	st := newTestStore(t)
	key := seedKey(t, st, "alpha")

	log := &RequestLog{
		RequestID:    "req-abc",
		APIKeyID:     key.ID,
		Task:         "summarization",
		ProviderUsed: "deepseek",
		Status:       "success",
	}
	require.NoError(t, st.CreateRequestLog(context.Background(), log))
	assert.NotEmpty(t, log.ID)
}
