package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a system user (analyst or account holder)
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// RuleType identifies one of the supported fraud heuristics.
// Externally configured rules may carry kinds this build does not know;
// those evaluate to non-violation rather than failing the analysis.
type RuleType string

const (
	RuleTypeAmount   RuleType = "amount"
	RuleTypeVelocity RuleType = "velocity"
	RuleTypeLocation RuleType = "location"
	RuleTypeMerchant RuleType = "merchant"
	RuleTypeTime     RuleType = "time"
)

// Rule condition values
const (
	ConditionGreaterThan = "greater_than"
)

// Rule is a declarative, independently togglable fraud heuristic.
// Weight is a contribution factor in [0,1], not a probability; the
// evaluator never assumes weights sum to 1.
type Rule struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	RuleType    RuleType  `json:"rule_type"`
	Condition   string    `json:"condition"`
	Threshold   float64   `json:"threshold"`
	Weight      float64   `json:"weight"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Transaction represents a payment transaction. Immutable once created;
// it is persisted before analysis begins so an alert can reference it
// even if later steps fail.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    float64   `json:"amount"`
	Merchant  string    `json:"merchant"`
	Location  string    `json:"location"`
	CardType  string    `json:"card_type"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RuleContext carries per-analysis derived signals. Computed fresh for
// every analysis, never stored.
type RuleContext struct {
	RecentTransactionCount int      `json:"recent_transaction_count"`
	UserLocations          []string `json:"user_locations"`
	SuspiciousMerchants    []string `json:"suspicious_merchants"`
}

// RiskLevel enum values
const (
	RiskLevelSafe     = "SAFE"
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// Analysis is the outcome of scoring a single transaction.
type Analysis struct {
	RuleScore     float64  `json:"rule_score"`
	AIScore       float64  `json:"ai_score"`
	TotalScore    float64  `json:"total_score"`
	ViolatedRules []string `json:"violated_rules"`
	RiskLevel     string   `json:"risk_level"`
}

// AlertStatus enum values
const (
	AlertStatusPending       = "pending"
	AlertStatusInvestigating = "investigating"
	AlertStatusResolved      = "resolved"
	AlertStatusFalsePositive = "false_positive"
)

// Alert is created exactly once when a transaction's combined score
// crosses the alert threshold. ResolvedAt is set iff the status is
// resolved or false_positive. Alerts are never deleted.
type Alert struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	UserID        uuid.UUID  `json:"user_id"`
	TotalScore    float64    `json:"total_score"`
	RuleScore     float64    `json:"rule_score"`
	AIScore       float64    `json:"ai_score"`
	RiskLevel     string     `json:"risk_level"`
	ViolatedRules []string   `json:"violated_rules"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

// AlertPayload is the wire form pushed to the broadcast channel and the
// notification service. It enriches the stored alert with transaction
// display fields merged in at emission time; field names are stable
// across both sinks.
type AlertPayload struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	TotalScore    float64   `json:"total_score"`
	RuleScore     float64   `json:"rule_score"`
	AIScore       float64   `json:"ai_score"`
	RiskLevel     string    `json:"risk_level"`
	ViolatedRules []string  `json:"violated_rules"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	Amount        float64   `json:"amount"`
	Merchant      string    `json:"merchant"`
	Location      string    `json:"location"`
}

// TransactionEvent is the event published to Redis Streams when a
// transaction has been durably recorded and awaits analysis.
type TransactionEvent struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	Amount        float64   `json:"amount"`
	Merchant      string    `json:"merchant"`
	Location      string    `json:"location"`
	CardType      string    `json:"card_type"`
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	RetryCount    int       `json:"retry_count"`
}

// AuditEventType enum values
const (
	AuditEventTransaction = "transaction"
	AuditEventAlert       = "alert"
	AuditEventRuleUpdate  = "rule_update"
	AuditEventUserLogin   = "user_login"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID         uuid.UUID              `json:"id"`
	EventType  string                 `json:"event_type"`
	EntityID   uuid.UUID              `json:"entity_id"`
	EntityType string                 `json:"entity_type"`
	UserID     *uuid.UUID             `json:"user_id,omitempty"`
	Action     string                 `json:"action"`
	Payload    map[string]interface{} `json:"payload"`
	RequestID  string                 `json:"request_id"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AlertSummary represents aggregated alert statistics
type AlertSummary struct {
	TotalAlerts       int            `json:"total_alerts"`
	PendingCount      int            `json:"pending_count"`
	ResolvedCount     int            `json:"resolved_count"`
	FalsePositiveRate float64        `json:"false_positive_rate"`
	ByRiskLevel       map[string]int `json:"by_risk_level"`
	TopViolatedRules  []RuleCount    `json:"top_violated_rules"`
}

// RuleCount represents a rule name and its violation count
type RuleCount struct {
	RuleName string `json:"rule_name"`
	Count    int    `json:"count"`
}
