package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/frauddetect/fraud-engine/internal/models"
)

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *Database
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *Database) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, event_type, entity_id, entity_type, user_id, action,
			payload, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	entry.ID = uuid.New()
	entry.CreatedAt = time.Now().UTC()

	payloadBytes, _ := json.Marshal(entry.Payload)

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.EventType,
		entry.EntityID,
		entry.EntityType,
		entry.UserID,
		entry.Action,
		payloadBytes,
		entry.RequestID,
		entry.CreatedAt,
	)

	return err
}

// GetByEntityID retrieves audit logs for an entity
func (r *AuditRepository) GetByEntityID(ctx context.Context, entityType string, entityID uuid.UUID, page, pageSize int) ([]*models.AuditLog, int, error) {
	offset := (page - 1) * pageSize

	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE entity_type = $1 AND entity_id = $2`
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, entityType, entityID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, event_type, entity_id, entity_type, user_id, action,
			   payload, request_id, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool.Query(ctx, query, entityType, entityID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs, err := r.scanAuditLogs(rows)
	return logs, total, err
}

// GetRecent retrieves recent audit logs
func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, event_type, entity_id, entity_type, user_id, action,
			   payload, request_id, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanAuditLogs(rows)
}

func (r *AuditRepository) scanAuditLogs(rows pgx.Rows) ([]*models.AuditLog, error) {
	var logs []*models.AuditLog
	for rows.Next() {
		entry := &models.AuditLog{}
		var payloadBytes []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.EventType,
			&entry.EntityID,
			&entry.EntityType,
			&entry.UserID,
			&entry.Action,
			&payloadBytes,
			&entry.RequestID,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}

		if len(payloadBytes) > 0 {
			_ = json.Unmarshal(payloadBytes, &entry.Payload)
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}
