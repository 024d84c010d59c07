package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
)

const classifierPrompt = `You are a fraud detection model. Given a transaction, respond with a single number between 0 and 1 representing the probability that it is fraudulent. Respond with the number only.`

// AIClassifier scores transactions against a chat-completion style
// model endpoint. Callers treat any error as a zero score; the engine
// must keep working when the model is unreachable.
type AIClassifier struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewAIClassifier creates a classifier from config
func NewAIClassifier(cfg configs.ClassifierConfig) *AIClassifier {
	return &AIClassifier{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Score asks the model for a fraud probability in [0,1]. Out-of-range
// replies are clamped; unparseable replies are errors.
func (c *AIClassifier) Score(ctx context.Context, tx *models.Transaction) (float64, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: c.describeTransaction(tx)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode classifier request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build classifier request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return 0, fmt.Errorf("classifier returned no choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	score, err := strconv.ParseFloat(content, 64)
	if err != nil {
		return 0, fmt.Errorf("classifier returned non-numeric score %q", content)
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return score, nil
}

func (c *AIClassifier) describeTransaction(tx *models.Transaction) string {
	return fmt.Sprintf(
		"Amount: %.2f\nMerchant: %s\nLocation: %s\nCard type: %s\nDevice: %s\nTimestamp: %s",
		tx.Amount, tx.Merchant, tx.Location, tx.CardType, tx.DeviceID,
		tx.Timestamp.Format(time.RFC3339),
	)
}
