package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
)

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// EmailNotifier delivers fraud alert emails through SendGrid. Without
// an API key it runs in mock mode: sends are logged and reported as
// successful so the rest of the pipeline behaves identically in
// development.
type EmailNotifier struct {
	apiKey      string
	senderEmail string
	senderName  string
	client      *http.Client
	baseURL     string
}

// NewEmailNotifier creates an email notifier from config
func NewEmailNotifier(cfg configs.NotifierConfig) *EmailNotifier {
	n := &EmailNotifier{
		apiKey:      cfg.SendGridAPIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		client:      &http.Client{Timeout: 10 * time.Second},
		baseURL:     sendGridURL,
	}

	if n.apiKey == "" {
		log.Warn().Msg("No SendGrid API key configured, email notifier running in mock mode")
	}

	return n
}

// MockMode reports whether sends are simulated
func (n *EmailNotifier) MockMode() bool {
	return n.apiKey == ""
}

type sendGridRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []emailContent    `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type emailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SendFraudAlert sends (or mocks) a fraud alert email to the user
func (n *EmailNotifier) SendFraudAlert(ctx context.Context, email string, payload *models.AlertPayload) error {
	subject := fmt.Sprintf("Fraud Alert: %s risk transaction detected", payload.RiskLevel)
	html := buildAlertHTML(payload)

	if n.MockMode() {
		log.Info().
			Str("to", email).
			Str("subject", subject).
			Str("alert_id", payload.ID.String()).
			Msg("Mock email sent")
		return nil
	}

	body, err := json.Marshal(sendGridRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: email}}}},
		From:             emailAddress{Email: n.senderEmail, Name: n.senderName},
		Subject:          subject,
		Content:          []emailContent{{Type: "text/html", Value: html}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	// SendGrid acknowledges accepted mail with 202
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("email provider returned status %d", resp.StatusCode)
	}

	log.Info().
		Str("to", email).
		Str("alert_id", payload.ID.String()).
		Msg("Alert email sent")

	return nil
}

func buildAlertHTML(payload *models.AlertPayload) string {
	var b strings.Builder

	b.WriteString("<h2>Suspicious transaction detected</h2>")
	fmt.Fprintf(&b, "<p>A transaction on your account was flagged as <strong>%s</strong> risk.</p>", payload.RiskLevel)
	b.WriteString("<table>")
	fmt.Fprintf(&b, "<tr><td>Amount</td><td>%.2f</td></tr>", payload.Amount)
	fmt.Fprintf(&b, "<tr><td>Merchant</td><td>%s</td></tr>", payload.Merchant)
	fmt.Fprintf(&b, "<tr><td>Location</td><td>%s</td></tr>", payload.Location)
	fmt.Fprintf(&b, "<tr><td>Fraud score</td><td>%.2f</td></tr>", payload.TotalScore)
	if len(payload.ViolatedRules) > 0 {
		fmt.Fprintf(&b, "<tr><td>Triggered rules</td><td>%s</td></tr>", strings.Join(payload.ViolatedRules, ", "))
	}
	b.WriteString("</table>")
	b.WriteString("<p>If you do not recognize this transaction, contact support immediately.</p>")

	return b.String()
}
