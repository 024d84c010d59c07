package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
)

// TransactionHistory is the slice of the transaction store the context
// builder needs.
type TransactionHistory interface {
	CountRecent(ctx context.Context, userID uuid.UUID, since, until time.Time, excludeID uuid.UUID) (int, error)
	DistinctLocations(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID, limit int) ([]string, error)
}

// maxKnownLocations caps how many prior locations the location rule
// compares against.
const maxKnownLocations = 10

// ContextBuilder derives the per-analysis signals rule evaluation
// needs: recent velocity, known locations, and the merchant denylist.
// Signals are computed fresh for every analysis and never persisted.
type ContextBuilder struct {
	history             TransactionHistory
	velocityWindow      time.Duration
	suspiciousMerchants []string
}

// NewContextBuilder creates a context builder
func NewContextBuilder(history TransactionHistory, cfg configs.ScoringConfig) *ContextBuilder {
	return &ContextBuilder{
		history:             history,
		velocityWindow:      cfg.VelocityWindow,
		suspiciousMerchants: cfg.SuspiciousMerchants,
	}
}

// Build computes the rule context for a transaction. The transaction
// itself is excluded from its own history, and the velocity window is
// anchored at the transaction's timestamp rather than wall time so
// replayed backlogs score the same as live traffic.
func (b *ContextBuilder) Build(ctx context.Context, tx *models.Transaction) (*models.RuleContext, error) {
	since := tx.Timestamp.Add(-b.velocityWindow)

	count, err := b.history.CountRecent(ctx, tx.UserID, since, tx.Timestamp, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent transactions: %w", err)
	}

	locations, err := b.history.DistinctLocations(ctx, tx.UserID, tx.ID, maxKnownLocations)
	if err != nil {
		return nil, fmt.Errorf("failed to load user locations: %w", err)
	}

	return &models.RuleContext{
		RecentTransactionCount: count,
		UserLocations:          locations,
		SuspiciousMerchants:    b.suspiciousMerchants,
	}, nil
}
