package fraud

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frauddetect/fraud-engine/internal/models"
)

type stubAlertStore struct {
	created *models.Alert
	err     error
}

func (s *stubAlertStore) Create(ctx context.Context, alert *models.Alert) error {
	s.created = alert
	return s.err
}

type stubBroadcaster struct {
	topic   string
	payload interface{}
	called  bool
}

func (s *stubBroadcaster) Publish(topic string, payload interface{}) {
	s.called = true
	s.topic = topic
	s.payload = payload
}

type stubNotifier struct {
	email   string
	payload *models.AlertPayload
	err     error
	called  bool
}

func (s *stubNotifier) SendFraudAlert(ctx context.Context, email string, payload *models.AlertPayload) error {
	s.called = true
	s.email = email
	s.payload = payload
	return s.err
}

type stubUserSource struct {
	user *models.User
	err  error
}

func (s *stubUserSource) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.user, s.err
}

func highRiskAnalysis(total float64) *models.Analysis {
	return &models.Analysis{
		RuleScore:     1.0,
		AIScore:       0.72,
		TotalScore:    total,
		ViolatedRules: []string{"High Amount"},
		RiskLevel:     ClassifyRisk(total),
	}
}

func TestEmitBelowThresholdDoesNothing(t *testing.T) {
	store := &stubAlertStore{}
	broadcaster := &stubBroadcaster{}
	notifier := &stubNotifier{}
	emitter := NewAlertEmitter(store, broadcaster, notifier, &stubUserSource{}, 0.5)

	alert := emitter.Emit(context.Background(), txAt(14), highRiskAnalysis(0.4999))

	assert.Nil(t, alert)
	assert.Nil(t, store.created)
	assert.False(t, broadcaster.called)
	assert.False(t, notifier.called)
}

func TestEmitAtThresholdDispatchesBothSinks(t *testing.T) {
	store := &stubAlertStore{}
	broadcaster := &stubBroadcaster{}
	notifier := &stubNotifier{}
	users := &stubUserSource{user: &models.User{Email: "analyst@example.com"}}
	emitter := NewAlertEmitter(store, broadcaster, notifier, users, 0.5)

	tx := txAt(14)
	tx.Amount = 7320.10

	alert := emitter.Emit(context.Background(), tx, highRiskAnalysis(0.5))

	require.NotNil(t, alert)
	assert.Equal(t, models.AlertStatusPending, alert.Status)
	assert.Equal(t, tx.ID, alert.TransactionID)
	assert.Equal(t, tx.UserID, alert.UserID)
	assert.NotNil(t, store.created)

	assert.True(t, broadcaster.called)
	assert.Equal(t, TopicAlertNew, broadcaster.topic)
	payload, ok := broadcaster.payload.(*models.AlertPayload)
	require.True(t, ok)
	assert.Equal(t, alert.ID, payload.ID)
	assert.Equal(t, tx.Amount, payload.Amount)
	assert.Equal(t, tx.Merchant, payload.Merchant)

	assert.True(t, notifier.called)
	assert.Equal(t, "analyst@example.com", notifier.email)
}

func TestEmitStoreFailureStillDispatches(t *testing.T) {
	store := &stubAlertStore{err: errors.New("insert failed")}
	broadcaster := &stubBroadcaster{}
	notifier := &stubNotifier{}
	users := &stubUserSource{user: &models.User{Email: "analyst@example.com"}}
	emitter := NewAlertEmitter(store, broadcaster, notifier, users, 0.5)

	alert := emitter.Emit(context.Background(), txAt(14), highRiskAnalysis(0.9))

	require.NotNil(t, alert)
	assert.True(t, broadcaster.called)
	assert.True(t, notifier.called)
}

func TestEmitNotifierFailureDoesNotAffectBroadcast(t *testing.T) {
	store := &stubAlertStore{}
	broadcaster := &stubBroadcaster{}
	notifier := &stubNotifier{err: errors.New("provider down")}
	users := &stubUserSource{user: &models.User{Email: "analyst@example.com"}}
	emitter := NewAlertEmitter(store, broadcaster, notifier, users, 0.5)

	alert := emitter.Emit(context.Background(), txAt(14), highRiskAnalysis(0.9))

	require.NotNil(t, alert)
	assert.True(t, broadcaster.called)
	assert.True(t, notifier.called)
}

func TestEmitUserLookupFailureSkipsEmailOnly(t *testing.T) {
	store := &stubAlertStore{}
	broadcaster := &stubBroadcaster{}
	notifier := &stubNotifier{}
	users := &stubUserSource{err: errors.New("user not found")}
	emitter := NewAlertEmitter(store, broadcaster, notifier, users, 0.5)

	alert := emitter.Emit(context.Background(), txAt(14), highRiskAnalysis(0.9))

	require.NotNil(t, alert)
	assert.NotNil(t, store.created)
	assert.True(t, broadcaster.called)
	assert.False(t, notifier.called)
}
