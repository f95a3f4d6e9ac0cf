package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/BaSui01/llmgateway/internal/auth"
	"github.com/BaSui01/llmgateway/internal/pricing"
	"github.com/BaSui01/llmgateway/internal/store"
	"github.com/BaSui01/llmgateway/llm"
)

// CostsHandler serves the cost accounting and analytics endpoints. Every
// endpoint is scoped to the authenticated key; one key cannot read
// another's spend.
type CostsHandler struct {
	auth    *auth.Authenticator
	store   *store.Store
	pricing *pricing.Table
	logger  *zap.Logger
}

// NewCostsHandler creates the handler.
func NewCostsHandler(authenticator *auth.Authenticator, st *store.Store, table *pricing.Table, logger *zap.Logger) *CostsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostsHandler{
		auth:    authenticator,
		store:   st,
		pricing: table,
		logger:  logger.With(zap.String("component", "costs_handler")),
	}
}

// CostSummary is the body of GET /v1/costs.
type CostSummary struct {
	TotalCostUSD string         `json:"total_cost_usd"`
	RequestCount int64          `json:"request_count"`
	TokensIn     int64          `json:"tokens_in"`
	TokensOut    int64          `json:"tokens_out"`
	AvgLatencyMs float64        `json:"avg_latency_ms"`
	ByProvider   []GroupSummary `json:"by_provider"`
	ByModel      []GroupSummary `json:"by_model"`
}

// GroupSummary is one provider or model slice of the summary.
type GroupSummary struct {
	Name         string  `json:"name"`
	TotalCostUSD string  `json:"total_cost_usd"`
	RequestCount int64   `json:"request_count"`
	TokensIn     int64   `json:"tokens_in"`
	TokensOut    int64   `json:"tokens_out"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// CostRecordView is one row of GET /v1/costs/records.
type CostRecordView struct {
	RequestID string    `json:"request_id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	TokensIn  int       `json:"tokens_in"`
	TokensOut int       `json:"tokens_out"`
	CostUSD   string    `json:"cost_usd"`
	LatencyMs int       `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordsPage is the paginated body of GET /v1/costs/records.
type RecordsPage struct {
	Records []CostRecordView `json:"records"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// Overview is the body of GET /v1/overview. SavingsUSD compares actual
// spend against pricing every token at the gpt-3.5-turbo rate.
type Overview struct {
	TotalCostUSD    string  `json:"total_cost_usd"`
	RequestCount    int64   `json:"request_count"`
	TokensIn        int64   `json:"tokens_in"`
	TokensOut       int64   `json:"tokens_out"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	BaselineCostUSD string  `json:"baseline_cost_usd"`
	SavingsUSD      string  `json:"savings_usd"`
	SavingsPercent  float64 `json:"savings_percent"`
}

// TrendPoint is one bucket of the analytics trend.
type TrendPoint struct {
	Bucket       string `json:"bucket"`
	CostUSD      string `json:"cost_usd"`
	RequestCount int64  `json:"request_count"`
}

// Analytics is the body of GET /v1/analytics.
type Analytics struct {
	Period       string         `json:"period"`
	TotalCostUSD string         `json:"total_cost_usd"`
	RequestCount int64          `json:"request_count"`
	Trend        []TrendPoint   `json:"trend"`
	ByProvider   []GroupSummary `json:"by_provider"`
}

func (h *CostsHandler) authenticate(w http.ResponseWriter, r *http.Request, requestID string) (*store.APIKey, bool) {
	key, err := h.auth.Authenticate(r.Context(), BearerToken(r))
	if err != nil {
		WriteError(w, llm.AsError(err, ""), requestID, h.logger)
		return nil, false
	}
	return key, true
}

func recordFilter(r *http.Request, apiKeyID string) store.RecordFilter {
	f := store.RecordFilter{
		APIKeyID: apiKeyID,
		Provider: r.URL.Query().Get("provider"),
		Model:    r.URL.Query().Get("model"),
	}
	if v := r.URL.Query().Get("start_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			f.StartDate = &t
		}
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			end := t.Add(24*time.Hour - time.Nanosecond)
			f.EndDate = &end
		}
	}
	return f
}

// HandleCosts handles GET /v1/costs.
func (h *CostsHandler) HandleCosts(w http.ResponseWriter, r *http.Request) {
	requestID := NewRequestID()
	key, ok := h.authenticate(w, r, requestID)
	if !ok {
		return
	}

	f := recordFilter(r, key.ID)
	totals, err := h.store.Totals(r.Context(), f)
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}
	byProvider, err := h.store.GroupedTotals(r.Context(), f, "provider")
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}
	byModel, err := h.store.GroupedTotals(r.Context(), f, "model")
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}

	WriteJSON(w, http.StatusOK, CostSummary{
		TotalCostUSD: totals.TotalCostUSD.StringFixed(6),
		RequestCount: totals.RequestCount,
		TokensIn:     totals.TokensIn,
		TokensOut:    totals.TokensOut,
		AvgLatencyMs: totals.AvgLatencyMs,
		ByProvider:   groupSummaries(byProvider),
		ByModel:      groupSummaries(byModel),
	})
}

// HandleCostRecords handles GET /v1/costs/records.
func (h *CostsHandler) HandleCostRecords(w http.ResponseWriter, r *http.Request) {
	requestID := NewRequestID()
	key, ok := h.authenticate(w, r, requestID)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	f := recordFilter(r, key.ID)
	records, err := h.store.CostRecords(r.Context(), f, limit, offset)
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}
	total, err := h.store.RecordCount(r.Context(), f)
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}

	page := RecordsPage{
		Records: make([]CostRecordView, 0, len(records)),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}
	for _, rec := range records {
		page.Records = append(page.Records, recordView(rec))
	}
	WriteJSON(w, http.StatusOK, page)
}

// HandleOverview handles GET /v1/overview.
func (h *CostsHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	requestID := NewRequestID()
	key, ok := h.authenticate(w, r, requestID)
	if !ok {
		return
	}

	totals, err := h.store.Totals(r.Context(), store.RecordFilter{APIKeyID: key.ID})
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}

	baseline := h.pricing.Cost("openai", "gpt-3.5-turbo", int(totals.TokensIn), int(totals.TokensOut))
	savings := baseline.Sub(totals.TotalCostUSD)
	if savings.IsNegative() {
		savings = decimal.Zero
	}
	var savingsPct float64
	if baseline.IsPositive() {
		savingsPct, _ = savings.Div(baseline).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	}

	WriteJSON(w, http.StatusOK, Overview{
		TotalCostUSD:    totals.TotalCostUSD.StringFixed(6),
		RequestCount:    totals.RequestCount,
		TokensIn:        totals.TokensIn,
		TokensOut:       totals.TokensOut,
		AvgLatencyMs:    totals.AvgLatencyMs,
		BaselineCostUSD: baseline.StringFixed(6),
		SavingsUSD:      savings.StringFixed(6),
		SavingsPercent:  savingsPct,
	})
}

// HandleAnalytics handles GET /v1/analytics?period=1D|7D|30D|ALL.
func (h *CostsHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	requestID := NewRequestID()
	key, ok := h.authenticate(w, r, requestID)
	if !ok {
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "7D"
	}
	start, bucketLayout, ok2 := periodWindow(period, time.Now().UTC())
	if !ok2 {
		WriteErrorMessage(w, http.StatusBadRequest, "period must be one of 1D, 7D, 30D, ALL", requestID)
		return
	}

	f := store.RecordFilter{APIKeyID: key.ID}
	if start != nil {
		f.StartDate = start
	}
	records, err := h.store.RecordsInRange(r.Context(), f)
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}
	byProvider, err := h.store.GroupedTotals(r.Context(), f, "provider")
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}

	total := decimal.Zero
	buckets := make(map[string]*TrendPoint)
	var order []string
	for _, rec := range records {
		total = total.Add(rec.CostUSD)
		bucket := rec.CreatedAt.UTC().Format(bucketLayout)
		pt, ok := buckets[bucket]
		if !ok {
			pt = &TrendPoint{Bucket: bucket, CostUSD: "0"}
			buckets[bucket] = pt
			order = append(order, bucket)
		}
		sum, _ := decimal.NewFromString(pt.CostUSD)
		pt.CostUSD = sum.Add(rec.CostUSD).String()
		pt.RequestCount++
	}

	trend := make([]TrendPoint, 0, len(order))
	for _, bucket := range order {
		pt := buckets[bucket]
		sum, _ := decimal.NewFromString(pt.CostUSD)
		pt.CostUSD = sum.StringFixed(6)
		trend = append(trend, *pt)
	}

	WriteJSON(w, http.StatusOK, Analytics{
		Period:       period,
		TotalCostUSD: total.StringFixed(6),
		RequestCount: int64(len(records)),
		Trend:        trend,
		ByProvider:   groupSummaries(byProvider),
	})
}

// HandleRecentTransactions handles GET /v1/transactions/recent.
func (h *CostsHandler) HandleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	requestID := NewRequestID()
	key, ok := h.authenticate(w, r, requestID)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 10)
	if limit < 1 || limit > 100 {
		limit = 10
	}

	records, err := h.store.CostRecords(r.Context(), store.RecordFilter{APIKeyID: key.ID}, limit, 0)
	if err != nil {
		h.writeStoreError(w, requestID, err)
		return
	}

	views := make([]CostRecordView, 0, len(records))
	for _, rec := range records {
		views = append(views, recordView(rec))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": views})
}

func (h *CostsHandler) writeStoreError(w http.ResponseWriter, requestID string, err error) {
	h.logger.Error("cost query failed", zap.String("request_id", requestID), zap.Error(err))
	WriteErrorMessage(w, http.StatusInternalServerError, "cost query failed", requestID)
}

// periodWindow maps an analytics period to a start time and trend bucket
// layout. ALL has no start and buckets by month; everything else buckets
// by day.
func periodWindow(period string, now time.Time) (*time.Time, string, bool) {
	switch period {
	case "1D":
		start := now.Add(-24 * time.Hour)
		return &start, "2006-01-02", true
	case "7D":
		start := now.Add(-7 * 24 * time.Hour)
		return &start, "2006-01-02", true
	case "30D":
		start := now.Add(-30 * 24 * time.Hour)
		return &start, "2006-01-02", true
	case "ALL":
		return nil, "2006-01", true
	default:
		return nil, "", false
	}
}

func groupSummaries(aggs []store.Aggregate) []GroupSummary {
	out := make([]GroupSummary, 0, len(aggs))
	for _, a := range aggs {
		out = append(out, GroupSummary{
			Name:         a.Group,
			TotalCostUSD: a.TotalCostUSD.StringFixed(6),
			RequestCount: a.RequestCount,
			TokensIn:     a.TokensIn,
			TokensOut:    a.TokensOut,
			AvgLatencyMs: a.AvgLatencyMs,
		})
	}
	return out
}

func recordView(rec store.CostRecord) CostRecordView {
	return CostRecordView{
		RequestID: rec.RequestID,
		Provider:  rec.Provider,
		Model:     rec.Model,
		TokensIn:  rec.TokensIn,
		TokensOut: rec.TokensOut,
		CostUSD:   rec.CostUSD.StringFixed(6),
		LatencyMs: rec.LatencyMs,
		CreatedAt: rec.CreatedAt,
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
