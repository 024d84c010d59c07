package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
)

func alertPayload() *models.AlertPayload {
	return &models.AlertPayload{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		UserID:        uuid.New(),
		TotalScore:    0.832,
		RuleScore:     1.0,
		AIScore:       0.72,
		RiskLevel:     models.RiskLevelCritical,
		ViolatedRules: []string{"High Amount", "Velocity"},
		Status:        models.AlertStatusPending,
		Amount:        7320.10,
		Merchant:      "Electronics Store",
		Location:      "Lagos",
	}
}

func TestMockModeWithoutAPIKey(t *testing.T) {
	notifier := NewEmailNotifier(configs.NotifierConfig{})

	assert.True(t, notifier.MockMode())
	assert.NoError(t, notifier.SendFraudAlert(context.Background(), "user@example.com", alertPayload()))
}

func TestSendFraudAlert(t *testing.T) {
	var got sendGridRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier := NewEmailNotifier(configs.NotifierConfig{
		SendGridAPIKey: "sg-key",
		SenderEmail:    "alerts@frauddetect.io",
		SenderName:     "Fraud Alerts",
	})
	notifier.baseURL = server.URL

	err := notifier.SendFraudAlert(context.Background(), "user@example.com", alertPayload())
	require.NoError(t, err)

	require.Len(t, got.Personalizations, 1)
	require.Len(t, got.Personalizations[0].To, 1)
	assert.Equal(t, "user@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "alerts@frauddetect.io", got.From.Email)
	assert.Contains(t, got.Subject, models.RiskLevelCritical)
	require.Len(t, got.Content, 1)
	assert.Equal(t, "text/html", got.Content[0].Type)
	assert.Contains(t, got.Content[0].Value, "Electronics Store")
	assert.Contains(t, got.Content[0].Value, "High Amount, Velocity")
}

func TestSendFraudAlertProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := NewEmailNotifier(configs.NotifierConfig{SendGridAPIKey: "sg-key"})
	notifier.baseURL = server.URL

	err := notifier.SendFraudAlert(context.Background(), "user@example.com", alertPayload())
	assert.Error(t, err)
}

func TestSendFraudAlertUnreachableProvider(t *testing.T) {
	notifier := NewEmailNotifier(configs.NotifierConfig{SendGridAPIKey: "sg-key"})
	notifier.baseURL = "http://127.0.0.1:1"

	err := notifier.SendFraudAlert(context.Background(), "user@example.com", alertPayload())
	assert.Error(t, err)
}
