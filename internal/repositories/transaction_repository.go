package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/frauddetect/fraud-engine/internal/models"
)

var (
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// TransactionRepository handles transaction database operations
type TransactionRepository struct {
	db *Database
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *Database) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create creates a new transaction. The ID and timestamp are assigned
// here if the caller did not set them.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, amount, merchant, location, card_type, device_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	_, err := r.db.Pool.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Amount,
		tx.Merchant,
		tx.Location,
		tx.CardType,
		tx.DeviceID,
		tx.Timestamp,
	)

	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateTransaction
		}
		return err
	}

	return nil
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT id, user_id, amount, merchant, location, card_type, device_id, timestamp
		FROM transactions
		WHERE id = $1
	`

	tx := &models.Transaction{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Merchant,
		&tx.Location,
		&tx.CardType,
		&tx.DeviceID,
		&tx.Timestamp,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	return tx, nil
}

// GetByUserID retrieves transactions for a user with pagination,
// newest first
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.Transaction, int, error) {
	offset := (page - 1) * pageSize

	countQuery := `SELECT COUNT(*) FROM transactions WHERE user_id = $1`
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, user_id, amount, merchant, location, card_type, device_id, timestamp
		FROM transactions
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transactions, err := r.scanTransactions(rows)
	return transactions, total, err
}

// GetRecent retrieves the most recent transactions across all users
func (r *TransactionRepository) GetRecent(ctx context.Context, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, amount, merchant, location, card_type, device_id, timestamp
		FROM transactions
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTransactions(rows)
}

// CountRecent counts a user's transactions inside the velocity window,
// excluding the transaction under analysis. The window is closed at
// both ends so transactions ingested after the analyzed one (backlog
// replays, late partner feeds) never inflate its count.
func (r *TransactionRepository) CountRecent(ctx context.Context, userID uuid.UUID, since, until time.Time, excludeID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp <= $3 AND id != $4
	`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, userID, since, until, excludeID).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// DistinctLocations returns up to limit locations a user has
// previously transacted from, most recently seen first. Empty
// locations are excluded.
func (r *TransactionRepository) DistinctLocations(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID, limit int) ([]string, error) {
	query := `
		SELECT location FROM transactions
		WHERE user_id = $1 AND id != $2 AND location != ''
		GROUP BY location
		ORDER BY MAX(timestamp) DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, excludeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	return locations, rows.Err()
}

func (r *TransactionRepository) scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var transactions []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		if err := rows.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Amount,
			&tx.Merchant,
			&tx.Location,
			&tx.CardType,
			&tx.DeviceID,
			&tx.Timestamp,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}
