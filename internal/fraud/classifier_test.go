package fraud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frauddetect/fraud-engine/configs"
)

func chatReply(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestClassifier(url string) *AIClassifier {
	return NewAIClassifier(configs.ClassifierConfig{
		Endpoint: url,
		APIKey:   "test-key",
		Model:    "gpt-4o-mini",
		Timeout:  2 * time.Second,
	})
}

func TestClassifierParsesScore(t *testing.T) {
	tx := txAt(14)
	tx.DeviceID = "device-abc"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		// The model sees the full transaction, device and exact
		// timestamp included
		prompt := req.Messages[1].Content
		assert.Contains(t, prompt, "Coffee Shop")
		assert.Contains(t, prompt, "device-abc")
		assert.Contains(t, prompt, tx.Timestamp.Format(time.RFC3339))

		w.Write([]byte(chatReply("0.72")))
	}))
	defer server.Close()

	score, err := newTestClassifier(server.URL).Score(context.Background(), tx)
	require.NoError(t, err)
	assert.InDelta(t, 0.72, score, 1e-9)
}

func TestClassifierClampsOutOfRangeScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("1.5")))
	}))
	defer server.Close()

	score, err := newTestClassifier(server.URL).Score(context.Background(), txAt(14))
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestClassifierTrimsWhitespace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("  0.3\n")))
	}))
	defer server.Close()

	score, err := newTestClassifier(server.URL).Score(context.Background(), txAt(14))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, score, 1e-9)
}

func TestClassifierNonNumericReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("this transaction looks fraudulent")))
	}))
	defer server.Close()

	_, err := newTestClassifier(server.URL).Score(context.Background(), txAt(14))
	assert.Error(t, err)
}

func TestClassifierHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClassifier(server.URL).Score(context.Background(), txAt(14))
	assert.Error(t, err)
}

func TestClassifierEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestClassifier(server.URL).Score(context.Background(), txAt(14))
	assert.Error(t, err)
}

func TestClassifierUnreachableEndpoint(t *testing.T) {
	_, err := newTestClassifier("http://127.0.0.1:1").Score(context.Background(), txAt(14))
	assert.Error(t, err)
}
