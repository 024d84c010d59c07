package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/frauddetect/fraud-engine/internal/models"
)

var (
	ErrAlertNotFound      = errors.New("alert not found")
	ErrInvalidAlertStatus = errors.New("invalid alert status")
)

// AlertRepository handles fraud alert database operations
type AlertRepository struct {
	db *Database
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *Database) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new alert in pending status
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (
			id, transaction_id, user_id, total_score, rule_score, ai_score,
			risk_level, violated_rules, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	alert.Status = models.AlertStatusPending
	alert.CreatedAt = time.Now().UTC()

	_, err := r.db.Pool.Exec(ctx, query,
		alert.ID,
		alert.TransactionID,
		alert.UserID,
		alert.TotalScore,
		alert.RuleScore,
		alert.AIScore,
		alert.RiskLevel,
		pq.Array(alert.ViolatedRules),
		alert.Status,
		alert.CreatedAt,
	)

	return err
}

// GetByID retrieves an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	query := `
		SELECT id, transaction_id, user_id, total_score, rule_score, ai_score,
			   risk_level, violated_rules, status, created_at, resolved_at, notes
		FROM alerts
		WHERE id = $1
	`

	alert := &models.Alert{}
	var violated []string

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&alert.ID,
		&alert.TransactionID,
		&alert.UserID,
		&alert.TotalScore,
		&alert.RuleScore,
		&alert.AIScore,
		&alert.RiskLevel,
		pq.Array(&violated),
		&alert.Status,
		&alert.CreatedAt,
		&alert.ResolvedAt,
		&alert.Notes,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	alert.ViolatedRules = violated
	return alert, nil
}

// List retrieves alerts with optional status and risk level filters,
// newest first
func (r *AlertRepository) List(ctx context.Context, status, riskLevel string, page, pageSize int) ([]*models.Alert, int, error) {
	offset := (page - 1) * pageSize

	countQuery := `
		SELECT COUNT(*) FROM alerts
		WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR risk_level = $2)
	`
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, status, riskLevel).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, transaction_id, user_id, total_score, rule_score, ai_score,
			   risk_level, violated_rules, status, created_at, resolved_at, notes
		FROM alerts
		WHERE ($1 = '' OR status = $1)
		AND ($2 = '' OR risk_level = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Pool.Query(ctx, query, status, riskLevel, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	alerts, err := r.scanAlerts(rows)
	return alerts, total, err
}

// GetByUserID retrieves alerts for a user, newest first
func (r *AlertRepository) GetByUserID(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*models.Alert, int, error) {
	offset := (page - 1) * pageSize

	countQuery := `SELECT COUNT(*) FROM alerts WHERE user_id = $1`
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, transaction_id, user_id, total_score, rule_score, ai_score,
			   risk_level, violated_rules, status, created_at, resolved_at, notes
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	alerts, err := r.scanAlerts(rows)
	return alerts, total, err
}

// UpdateStatus transitions an alert. resolved_at is set when the alert
// reaches a terminal status (resolved or false_positive) and cleared
// when it moves back to an open one.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, notes *string) (*models.Alert, error) {
	switch status {
	case models.AlertStatusPending, models.AlertStatusInvestigating,
		models.AlertStatusResolved, models.AlertStatusFalsePositive:
	default:
		return nil, ErrInvalidAlertStatus
	}

	var resolvedAt *time.Time
	if status == models.AlertStatusResolved || status == models.AlertStatusFalsePositive {
		now := time.Now().UTC()
		resolvedAt = &now
	}

	query := `
		UPDATE alerts
		SET status = $2, resolved_at = $3, notes = COALESCE($4, notes)
		WHERE id = $1
		RETURNING id, transaction_id, user_id, total_score, rule_score, ai_score,
				  risk_level, violated_rules, status, created_at, resolved_at, notes
	`

	alert := &models.Alert{}
	var violated []string

	err := r.db.Pool.QueryRow(ctx, query, id, status, resolvedAt, notes).Scan(
		&alert.ID,
		&alert.TransactionID,
		&alert.UserID,
		&alert.TotalScore,
		&alert.RuleScore,
		&alert.AIScore,
		&alert.RiskLevel,
		pq.Array(&violated),
		&alert.Status,
		&alert.CreatedAt,
		&alert.ResolvedAt,
		&alert.Notes,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	alert.ViolatedRules = violated
	return alert, nil
}

// CountByStatus returns alert counts grouped by status
func (r *AlertRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// CountByRiskLevel returns alert counts grouped by risk level
func (r *AlertRepository) CountByRiskLevel(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT risk_level, COUNT(*) FROM alerts GROUP BY risk_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		counts[level] = count
	}

	return counts, rows.Err()
}

// TopViolatedRules returns the most frequently violated rule names
func (r *AlertRepository) TopViolatedRules(ctx context.Context, limit int) ([]models.RuleCount, error) {
	query := `
		SELECT rule_name, COUNT(*) AS violations
		FROM alerts, unnest(violated_rules) AS rule_name
		GROUP BY rule_name
		ORDER BY violations DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RuleCount
	for rows.Next() {
		var rc models.RuleCount
		if err := rows.Scan(&rc.RuleName, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}

	return out, rows.Err()
}

func (r *AlertRepository) scanAlerts(rows pgx.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert := &models.Alert{}
		var violated []string

		if err := rows.Scan(
			&alert.ID,
			&alert.TransactionID,
			&alert.UserID,
			&alert.TotalScore,
			&alert.RuleScore,
			&alert.AIScore,
			&alert.RiskLevel,
			pq.Array(&violated),
			&alert.Status,
			&alert.CreatedAt,
			&alert.ResolvedAt,
			&alert.Notes,
		); err != nil {
			return nil, err
		}

		alert.ViolatedRules = violated
		alerts = append(alerts, alert)
	}

	return alerts, rows.Err()
}
