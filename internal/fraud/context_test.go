package fraud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHistory struct {
	count     int
	locations []string
	err       error

	gotSince   time.Time
	gotUntil   time.Time
	gotExclude uuid.UUID
	gotLimit   int
}

func (s *stubHistory) CountRecent(ctx context.Context, userID uuid.UUID, since, until time.Time, excludeID uuid.UUID) (int, error) {
	s.gotSince = since
	s.gotUntil = until
	s.gotExclude = excludeID
	return s.count, s.err
}

func (s *stubHistory) DistinctLocations(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID, limit int) ([]string, error) {
	s.gotLimit = limit
	return s.locations, s.err
}

func TestContextBuilderWindowAndExclusion(t *testing.T) {
	history := &stubHistory{count: 4, locations: []string{"Berlin", "Hamburg"}}
	cfg := testScoringConfig()
	cfg.SuspiciousMerchants = []string{"FRAUD_SHOP"}
	builder := NewContextBuilder(history, cfg)

	tx := txAt(14)

	rctx, err := builder.Build(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, 4, rctx.RecentTransactionCount)
	assert.Equal(t, []string{"Berlin", "Hamburg"}, rctx.UserLocations)
	assert.Equal(t, []string{"FRAUD_SHOP"}, rctx.SuspiciousMerchants)

	// Velocity counts the hour before the transaction, not wall time,
	// and never counts the transaction itself. The window closes at
	// the transaction's own timestamp so later arrivals don't count.
	assert.Equal(t, tx.Timestamp.Add(-time.Hour), history.gotSince)
	assert.Equal(t, tx.Timestamp, history.gotUntil)
	assert.Equal(t, tx.ID, history.gotExclude)

	// Known locations are capped
	assert.Equal(t, 10, history.gotLimit)
}

func TestContextBuilderHistoryFailure(t *testing.T) {
	builder := NewContextBuilder(&stubHistory{err: errors.New("db down")}, testScoringConfig())

	_, err := builder.Build(context.Background(), txAt(14))
	assert.Error(t, err)
}
