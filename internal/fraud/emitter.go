package fraud

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/internal/models"
)

// AlertStore persists alerts
type AlertStore interface {
	Create(ctx context.Context, alert *models.Alert) error
}

// Broadcaster pushes alert payloads to connected dashboard clients
type Broadcaster interface {
	Publish(topic string, payload interface{})
}

// Notifier delivers alert notifications out of band
type Notifier interface {
	SendFraudAlert(ctx context.Context, email string, payload *models.AlertPayload) error
}

// UserSource resolves the user a notification goes to
type UserSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TopicAlertNew is the broadcast topic for freshly created alerts
const TopicAlertNew = "alert:new"

// AlertEmitter turns high-scoring analyses into alerts and fans them
// out to the dashboard and the notification channel. The sinks are
// independent: one failing never suppresses the other.
type AlertEmitter struct {
	store       AlertStore
	broadcaster Broadcaster
	notifier    Notifier
	users       UserSource
	threshold   float64
}

// NewAlertEmitter creates an alert emitter
func NewAlertEmitter(store AlertStore, broadcaster Broadcaster, notifier Notifier, users UserSource, threshold float64) *AlertEmitter {
	return &AlertEmitter{
		store:       store,
		broadcaster: broadcaster,
		notifier:    notifier,
		users:       users,
		threshold:   threshold,
	}
}

// Emit creates and dispatches an alert when the analysis crosses the
// threshold. Returns the alert, or nil when no alert was warranted.
// If the insert fails the alert is still dispatched to the sinks so
// an operator sees it; the error is logged, not returned.
func (e *AlertEmitter) Emit(ctx context.Context, tx *models.Transaction, analysis *models.Analysis) *models.Alert {
	if analysis.TotalScore < e.threshold {
		return nil
	}

	alert := &models.Alert{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		TotalScore:    analysis.TotalScore,
		RuleScore:     analysis.RuleScore,
		AIScore:       analysis.AIScore,
		RiskLevel:     analysis.RiskLevel,
		ViolatedRules: analysis.ViolatedRules,
		Status:        models.AlertStatusPending,
	}

	if err := e.store.Create(ctx, alert); err != nil {
		log.Error().
			Err(err).
			Str("transaction_id", tx.ID.String()).
			Msg("Failed to persist alert, dispatching anyway")
	}

	payload := buildPayload(alert, tx)

	if e.broadcaster != nil {
		e.broadcaster.Publish(TopicAlertNew, payload)
	}

	if e.notifier != nil {
		e.notify(ctx, tx, payload)
	}

	log.Info().
		Str("alert_id", alert.ID.String()).
		Str("transaction_id", tx.ID.String()).
		Str("risk_level", alert.RiskLevel).
		Float64("total_score", alert.TotalScore).
		Msg("Alert emitted")

	return alert
}

func (e *AlertEmitter) notify(ctx context.Context, tx *models.Transaction, payload *models.AlertPayload) {
	user, err := e.users.GetByID(ctx, tx.UserID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("user_id", tx.UserID.String()).
			Msg("User lookup failed, skipping email notification")
		return
	}

	if err := e.notifier.SendFraudAlert(ctx, user.Email, payload); err != nil {
		log.Warn().
			Err(err).
			Str("user_id", tx.UserID.String()).
			Msg("Email notification failed")
	}
}

func buildPayload(alert *models.Alert, tx *models.Transaction) *models.AlertPayload {
	return &models.AlertPayload{
		ID:            alert.ID,
		TransactionID: alert.TransactionID,
		UserID:        alert.UserID,
		TotalScore:    alert.TotalScore,
		RuleScore:     alert.RuleScore,
		AIScore:       alert.AIScore,
		RiskLevel:     alert.RiskLevel,
		ViolatedRules: alert.ViolatedRules,
		Status:        alert.Status,
		CreatedAt:     alert.CreatedAt,
		Amount:        tx.Amount,
		Merchant:      tx.Merchant,
		Location:      tx.Location,
	}
}
