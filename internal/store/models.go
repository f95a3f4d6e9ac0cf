package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// APIKey is a caller credential. The plaintext is never stored; KeyHash is
// a bcrypt hash. Keys are soft-disabled via IsActive, never deleted.
type APIKey struct {
	ID                 string    `gorm:"type:uuid;primaryKey"`
	KeyHash            string    `gorm:"size:255;uniqueIndex;not null"`
	Name               string    `gorm:"size:255"`
	RateLimitPerMinute int       `gorm:"not null;default:60"`
	IsActive           bool      `gorm:"not null;default:true"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (APIKey) TableName() string { return "api_keys" }

func (k *APIKey) BeforeCreate(*gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// CostRecord attributes tokens and USD cost to one successful provider
// attempt. Failed attempts are logged, never charged.
type CostRecord struct {
	ID        string          `gorm:"type:uuid;primaryKey"`
	APIKeyID  string          `gorm:"type:uuid;not null;index:idx_cost_records_api_key_created,priority:1"`
	RequestID string          `gorm:"size:255;not null;index"`
	Provider  string          `gorm:"size:50;not null;index:idx_cost_records_provider_model,priority:1"`
	Model     string          `gorm:"size:100;not null;index:idx_cost_records_provider_model,priority:2"`
	TokensIn  int             `gorm:"not null"`
	TokensOut int             `gorm:"not null"`
	CostUSD   decimal.Decimal `gorm:"type:numeric(12,6);not null"`
	LatencyMs int             `gorm:"not null"`
	CreatedAt time.Time       `gorm:"not null;index:idx_cost_records_api_key_created,priority:2"`

	APIKey APIKey `gorm:"foreignKey:APIKeyID"`
}

func (CostRecord) TableName() string { return "cost_records" }

func (r *CostRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RequestLog is the observability side-channel: one row per chat request,
// success or failure, without cost semantics.
type RequestLog struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	RequestID        string    `gorm:"size:255;not null;index"`
	APIKeyID         string    `gorm:"type:uuid;not null;index"`
	Task             string    `gorm:"size:50"`
	Budget           string    `gorm:"size:20"`
	LatencySensitive bool      `gorm:""`
	ProviderUsed     string    `gorm:"size:50;not null"`
	Status           string    `gorm:"size:20;not null"`
	CreatedAt        time.Time `gorm:"not null;index"`
}

func (RequestLog) TableName() string { return "request_logs" }

func (l *RequestLog) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
