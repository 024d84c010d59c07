package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/ingestion"
	"github.com/frauddetect/fraud-engine/internal/queue"
	"github.com/frauddetect/fraud-engine/internal/repositories"
)

// FeedRecord is a transaction as delivered on the partner payment
// feed. Partners batch-publish to Kafka; each record flows through the
// same ingestion path as the HTTP API, so it lands in Postgres and on
// the analysis stream like any other transaction.
type FeedRecord struct {
	UserID     string  `json:"user_id"`
	Amount     float64 `json:"amount"`
	Merchant   string  `json:"merchant"`
	Location   string  `json:"location"`
	CardType   string  `json:"card_type"`
	DeviceID   string  `json:"device_id"`
	OccurredAt string  `json:"occurred_at"`
	Source     string  `json:"source"`
}

// FeedMetrics tracks live ingest counters
type FeedMetrics struct {
	mu            sync.RWMutex
	Ingested      int64
	Skipped       int64
	Failed        int64
	LastEventTime time.Time
	windowStart   time.Time
	windowCount   int64
	eventsPerSec  float64
}

func NewFeedMetrics() *FeedMetrics {
	return &FeedMetrics{windowStart: time.Now()}
}

func (m *FeedMetrics) Record(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastEventTime = time.Now()
	m.windowCount++

	elapsed := time.Since(m.windowStart).Seconds()
	if elapsed > 0 {
		m.eventsPerSec = float64(m.windowCount) / elapsed
	}

	// Reset window every minute
	if elapsed > 60 {
		m.windowStart = time.Now()
		m.windowCount = 0
	}

	switch outcome {
	case "ingested":
		m.Ingested++
	case "skipped":
		m.Skipped++
	case "failed":
		m.Failed++
	}
}

func (m *FeedMetrics) Snapshot() (ingested, skipped, failed int64, eventsPerSec float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Ingested, m.Skipped, m.Failed, m.eventsPerSec
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg := configs.Load()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Server.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Str("group_id", cfg.Kafka.ConsumerGroup).
		Msg("Starting payment feed consumer")

	// Connect to database
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Connect to Redis (feed records are queued for analysis like any
	// API-submitted transaction)
	streamClient, err := queue.NewRedisStreamClient(cfg.Redis, cfg.Worker.DeadLetterStream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	// Initialize repositories and the ingestion path
	userRepo := repositories.NewUserRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	ingestionService := ingestion.NewService(txRepo, userRepo, auditRepo, streamClient)

	// Create Kafka consumer
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V3_0_0_0

	// Retry connecting to Kafka
	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, config)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	handler := &FeedHandler{
		ingestion: ingestionService,
		metrics:   NewFeedMetrics(),
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping feed consumer...")
		cancel()
	}()

	// Start metrics reporter (logs every 30 seconds)
	go handler.startMetricsReporter(ctx)

	log.Info().Msg("Payment feed consumer started")

	for {
		if err := consumerGroup.Consume(ctx, []string{cfg.Kafka.Topic}, handler); err != nil {
			log.Error().Err(err).Msg("Error from consumer")
		}

		if ctx.Err() != nil {
			log.Info().Msg("Context cancelled, shutting down feed consumer")
			return
		}
	}
}

// FeedHandler routes feed records into the ingestion service
type FeedHandler struct {
	ingestion *ingestion.Service
	metrics   *FeedMetrics
}

func (h *FeedHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Feed consumer session started")
	return nil
}

func (h *FeedHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Feed consumer session ended")
	return nil
}

func (h *FeedHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.processMessage(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *FeedHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	var record FeedRecord
	if err := json.Unmarshal(message.Value, &record); err != nil {
		log.Error().Err(err).
			Int64("offset", message.Offset).
			Msg("Failed to parse feed record")
		h.metrics.Record("failed")
		return
	}

	if record.UserID == "" || record.Amount <= 0 || record.Merchant == "" {
		log.Warn().
			Str("user_id", record.UserID).
			Str("merchant", record.Merchant).
			Float64("amount", record.Amount).
			Msg("Skipping malformed feed record")
		h.metrics.Record("skipped")
		return
	}

	req := &ingestion.TransactionRequest{
		UserID:    record.UserID,
		Amount:    record.Amount,
		Merchant:  record.Merchant,
		Location:  record.Location,
		CardType:  record.CardType,
		DeviceID:  record.DeviceID,
		Timestamp: parseOccurredAt(record.OccurredAt),
	}

	requestID := "feed-" + record.Source
	resp, err := h.ingestion.IngestTransaction(ctx, req, requestID)
	if err != nil {
		// Unknown users are expected on partner feeds; anything else
		// is a real failure
		log.Warn().Err(err).
			Str("user_id", record.UserID).
			Str("source", record.Source).
			Msg("Feed record rejected")
		h.metrics.Record("skipped")
		return
	}

	log.Debug().
		Str("transaction_id", resp.TransactionID).
		Str("source", record.Source).
		Msg("Feed record ingested")
	h.metrics.Record("ingested")
}

// parseOccurredAt converts a feed record's occurred_at into the
// transaction timestamp. Replayed feeds must score against the time
// the transaction happened, not the time it was ingested; a missing
// or malformed value falls back to the server-assigned ingest time.
func parseOccurredAt(value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		log.Warn().Str("occurred_at", value).Msg("Unparseable feed timestamp, using ingest time")
		return time.Time{}
	}
	return ts.UTC()
}

func (h *FeedHandler) startMetricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ingested, skipped, failed, eventsPerSec := h.metrics.Snapshot()
			log.Info().
				Int64("ingested", ingested).
				Int64("skipped", skipped).
				Int64("failed", failed).
				Float64("events_per_sec", eventsPerSec).
				Msg("Payment feed metrics")

		case <-ctx.Done():
			return
		}
	}
}
