package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/internal/models"
	"github.com/frauddetect/fraud-engine/internal/queue"
	"github.com/frauddetect/fraud-engine/internal/repositories"
)

// TransactionRequest represents an incoming transaction. Timestamp is
// optional; batch sources (partner feeds) set it to the time the
// transaction actually occurred so replays score correctly, live
// sources leave it zero and get the ingest time.
type TransactionRequest struct {
	UserID    string    `json:"user_id" binding:"required"`
	Amount    float64   `json:"amount" binding:"required,gt=0"`
	Merchant  string    `json:"merchant" binding:"required"`
	Location  string    `json:"location"`
	CardType  string    `json:"card_type"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionResponse represents the response after ingesting a
// transaction. Analysis happens asynchronously; any resulting alert
// is retrieved through the alerts API.
type TransactionResponse struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Service persists incoming transactions and queues them for fraud
// analysis. The transaction is durable before the event is published:
// a stored transaction with no analysis is recoverable, the reverse
// is not.
type Service struct {
	txRepo       *repositories.TransactionRepository
	userRepo     *repositories.UserRepository
	auditRepo    *repositories.AuditRepository
	streamClient *queue.RedisStreamClient
}

// NewService creates an ingestion service
func NewService(
	txRepo *repositories.TransactionRepository,
	userRepo *repositories.UserRepository,
	auditRepo *repositories.AuditRepository,
	streamClient *queue.RedisStreamClient,
) *Service {
	return &Service{
		txRepo:       txRepo,
		userRepo:     userRepo,
		auditRepo:    auditRepo,
		streamClient: streamClient,
	}
}

// IngestTransaction stores a transaction and publishes it for analysis
func (s *Service) IngestTransaction(ctx context.Context, req *TransactionRequest, requestID string) (*TransactionResponse, error) {
	startTime := time.Now()

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id format: %w", err)
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	tx := &models.Transaction{
		UserID:    userID,
		Amount:    req.Amount,
		Merchant:  req.Merchant,
		Location:  req.Location,
		CardType:  req.CardType,
		DeviceID:  req.DeviceID,
		Timestamp: req.Timestamp,
	}

	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	event := &models.TransactionEvent{
		TransactionID: tx.ID.String(),
		UserID:        tx.UserID.String(),
		Amount:        tx.Amount,
		Merchant:      tx.Merchant,
		Location:      tx.Location,
		CardType:      tx.CardType,
		DeviceID:      tx.DeviceID,
		Timestamp:     tx.Timestamp,
		RetryCount:    0,
	}

	if _, err := s.streamClient.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("transaction_id", tx.ID.String()).
			Msg("Failed to publish event to stream")
		// Don't fail the request - transaction is saved, will be processed later
	}

	s.createAuditLog(ctx, tx, requestID, "create")

	log.Info().
		Str("transaction_id", tx.ID.String()).
		Str("user_id", tx.UserID.String()).
		Float64("amount", tx.Amount).
		Dur("processing_time", time.Since(startTime)).
		Msg("Transaction ingested")

	return &TransactionResponse{
		TransactionID: tx.ID.String(),
		Status:        "queued",
		Timestamp:     tx.Timestamp,
	}, nil
}

func (s *Service) createAuditLog(ctx context.Context, tx *models.Transaction, requestID, action string) {
	entry := &models.AuditLog{
		EventType:  models.AuditEventTransaction,
		EntityID:   tx.ID,
		EntityType: "transaction",
		Action:     action,
		RequestID:  requestID,
		Payload: map[string]interface{}{
			"amount":   tx.Amount,
			"merchant": tx.Merchant,
			"location": tx.Location,
			"user_id":  tx.UserID.String(),
		},
	}

	if err := s.auditRepo.Create(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("transaction_id", tx.ID.String()).
			Msg("Failed to create audit log")
	}
}

// GetTransaction retrieves a transaction by ID
func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	id, err := uuid.Parse(transactionID)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction_id format: %w", err)
	}

	return s.txRepo.GetByID(ctx, id)
}

// GetTransactionsByUser retrieves transactions for a user
func (s *Service) GetTransactionsByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.Transaction, int, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid user_id format: %w", err)
	}

	return s.txRepo.GetByUserID(ctx, id, page, pageSize)
}

// GetRecentTransactions retrieves the latest transactions across users
func (s *Service) GetRecentTransactions(ctx context.Context, limit int) ([]*models.Transaction, error) {
	return s.txRepo.GetRecent(ctx, limit)
}
