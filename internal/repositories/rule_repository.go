package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/frauddetect/fraud-engine/internal/models"
)

var ErrRuleNotFound = errors.New("rule not found")

// RuleRepository handles fraud rule database operations
type RuleRepository struct {
	db *Database
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *Database) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create creates a new rule
func (r *RuleRepository) Create(ctx context.Context, rule *models.Rule) error {
	query := `
		INSERT INTO rules (
			id, name, description, rule_type, condition, threshold, weight, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = time.Now().UTC()

	_, err := r.db.Pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.RuleType,
		rule.Condition,
		rule.Threshold,
		rule.Weight,
		rule.Active,
		rule.CreatedAt,
	)

	return err
}

// GetByID retrieves a rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	query := `
		SELECT id, name, description, rule_type, condition, threshold, weight, active, created_at
		FROM rules
		WHERE id = $1
	`

	rule := &models.Rule{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.RuleType,
		&rule.Condition,
		&rule.Threshold,
		&rule.Weight,
		&rule.Active,
		&rule.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}

	return rule, nil
}

// GetAll retrieves all rules, active or not
func (r *RuleRepository) GetAll(ctx context.Context) ([]*models.Rule, error) {
	query := `
		SELECT id, name, description, rule_type, condition, threshold, weight, active, created_at
		FROM rules
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRules(rows)
}

// GetActive retrieves the rules the analysis pipeline evaluates
func (r *RuleRepository) GetActive(ctx context.Context) ([]*models.Rule, error) {
	query := `
		SELECT id, name, description, rule_type, condition, threshold, weight, active, created_at
		FROM rules
		WHERE active = true
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanRules(rows)
}

// Update updates an existing rule's mutable fields
func (r *RuleRepository) Update(ctx context.Context, rule *models.Rule) error {
	query := `
		UPDATE rules
		SET name = $2, description = $3, rule_type = $4, condition = $5,
			threshold = $6, weight = $7, active = $8
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.RuleType,
		rule.Condition,
		rule.Threshold,
		rule.Weight,
		rule.Active,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// SetActive toggles a rule without touching its parameters
func (r *RuleRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.Pool.Exec(ctx, `UPDATE rules SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// Delete removes a rule
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrRuleNotFound
	}

	return nil
}

// CountByName counts rules with the given name, used by seeding to
// keep defaults idempotent
func (r *RuleRepository) CountByName(ctx context.Context, name string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM rules WHERE name = $1`, name).Scan(&count)
	return count, err
}

func (r *RuleRepository) scanRules(rows pgx.Rows) ([]*models.Rule, error) {
	var rules []*models.Rule
	for rows.Next() {
		rule := &models.Rule{}
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.Description,
			&rule.RuleType,
			&rule.Condition,
			&rule.Threshold,
			&rule.Weight,
			&rule.Active,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}
