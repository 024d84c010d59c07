package fraud

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
)

func testScoringConfig() configs.ScoringConfig {
	return configs.ScoringConfig{
		RuleWeight:       0.4,
		AIWeight:         0.6,
		AlertThreshold:   0.5,
		LocationDiscount: 0.7,
		TimeDiscount:     0.6,
		VelocityWindow:   time.Hour,
	}
}

func amountRule(threshold, weight float64) *models.Rule {
	return &models.Rule{
		ID:        uuid.New(),
		Name:      "High Amount",
		RuleType:  models.RuleTypeAmount,
		Condition: models.ConditionGreaterThan,
		Threshold: threshold,
		Weight:    weight,
		Active:    true,
	}
}

func velocityRule(threshold, weight float64) *models.Rule {
	return &models.Rule{
		ID:        uuid.New(),
		Name:      "Velocity",
		RuleType:  models.RuleTypeVelocity,
		Threshold: threshold,
		Weight:    weight,
		Active:    true,
	}
}

func txAt(hour int) *models.Transaction {
	return &models.Transaction{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Amount:    100,
		Merchant:  "Coffee Shop",
		Location:  "Berlin",
		Timestamp: time.Date(2025, 6, 15, hour, 30, 0, 0, time.UTC),
	}
}

func TestAmountRule(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())
	rctx := &models.RuleContext{}

	tests := []struct {
		name         string
		amount       float64
		wantScore    float64
		wantViolated int
	}{
		{"above threshold", 5000.01, 0.7, 1},
		{"at threshold", 5000, 0, 0},
		{"below threshold", 249.99, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := txAt(12)
			tx.Amount = tt.amount

			score, violated := engine.Evaluate([]*models.Rule{amountRule(5000, 0.7)}, tx, rctx)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
			assert.Len(t, violated, tt.wantViolated)
		})
	}
}

func TestAmountRuleWrongCondition(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())

	rule := amountRule(5000, 0.7)
	rule.Condition = "less_than"

	tx := txAt(12)
	tx.Amount = 9999

	score, violated := engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{})
	assert.Zero(t, score)
	assert.Empty(t, violated)
}

func TestVelocityRule(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())
	rule := velocityRule(5, 0.6)
	tx := txAt(12)

	score, violated := engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{RecentTransactionCount: 6})
	assert.InDelta(t, 0.6, score, 1e-9)
	assert.Equal(t, []string{"Velocity"}, violated)

	score, violated = engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{RecentTransactionCount: 5})
	assert.Zero(t, score)
	assert.Empty(t, violated)
}

func TestLocationRule(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())
	rule := &models.Rule{
		ID:       uuid.New(),
		Name:     "New Location",
		RuleType: models.RuleTypeLocation,
		Weight:   1.0,
		Active:   true,
	}

	t.Run("unknown location discounted", func(t *testing.T) {
		tx := txAt(12)
		tx.Location = "Lagos"

		score, violated := engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{UserLocations: []string{"Berlin", "Hamburg"}})
		assert.InDelta(t, 0.7, score, 1e-9)
		assert.Equal(t, []string{"New Location"}, violated)
	})

	t.Run("known location passes", func(t *testing.T) {
		tx := txAt(12)
		tx.Location = "Berlin"

		score, _ := engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{UserLocations: []string{"Berlin"}})
		assert.Zero(t, score)
	})

	t.Run("empty location passes", func(t *testing.T) {
		tx := txAt(12)
		tx.Location = ""

		score, _ := engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{UserLocations: []string{"Berlin"}})
		assert.Zero(t, score)
	})

	t.Run("first location for new user violates", func(t *testing.T) {
		tx := txAt(12)
		tx.Location = "Lagos"

		score, violated := engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{})
		assert.InDelta(t, 0.7, score, 1e-9)
		assert.Equal(t, []string{"New Location"}, violated)
	})
}

func TestMerchantRule(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())
	rule := &models.Rule{
		ID:       uuid.New(),
		Name:     "Denylisted Merchant",
		RuleType: models.RuleTypeMerchant,
		Weight:   0.9,
		Active:   true,
	}
	rctx := &models.RuleContext{SuspiciousMerchants: []string{"SUSPICIOUS_MERCHANT_X", "FRAUD_SHOP"}}

	tx := txAt(12)
	tx.Merchant = "FRAUD_SHOP"
	score, violated := engine.Evaluate([]*models.Rule{rule}, tx, rctx)
	assert.InDelta(t, 0.9, score, 1e-9)
	assert.Equal(t, []string{"Denylisted Merchant"}, violated)

	tx.Merchant = "Coffee Shop"
	score, _ = engine.Evaluate([]*models.Rule{rule}, tx, rctx)
	assert.Zero(t, score)
}

func TestTimeRule(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())
	rule := &models.Rule{
		ID:       uuid.New(),
		Name:     "Unusual Hours",
		RuleType: models.RuleTypeTime,
		Weight:   1.0,
		Active:   true,
	}

	tests := []struct {
		hour      int
		wantScore float64
	}{
		{0, 0.6},
		{3, 0.6},
		{4, 0.6},
		{5, 0},
		{12, 0},
		{23, 0},
	}

	for _, tt := range tests {
		score, _ := engine.Evaluate([]*models.Rule{rule}, txAt(tt.hour), &models.RuleContext{})
		assert.InDelta(t, tt.wantScore, score, 1e-9, "hour %d", tt.hour)
	}
}

func TestInactiveRuleIsInert(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())

	rule := amountRule(5000, 0.7)
	rule.Active = false

	tx := txAt(12)
	tx.Amount = 100000

	score, violated := engine.Evaluate([]*models.Rule{rule}, tx, &models.RuleContext{})
	assert.Zero(t, score)
	assert.Empty(t, violated)
}

func TestUnknownRuleTypeSkipped(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())
	rule := &models.Rule{
		ID:       uuid.New(),
		Name:     "Future Rule",
		RuleType: models.RuleType("geofence"),
		Weight:   1.0,
		Active:   true,
	}

	score, violated := engine.Evaluate([]*models.Rule{rule}, txAt(12), &models.RuleContext{})
	assert.Zero(t, score)
	assert.Empty(t, violated)
}

func TestRuleScoreCappedAtOne(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())

	tx := txAt(2)
	tx.Amount = 7320.10
	tx.Merchant = "FRAUD_SHOP"

	rules := []*models.Rule{
		amountRule(5000, 0.7),
		velocityRule(5, 0.6),
		{ID: uuid.New(), Name: "Denylisted Merchant", RuleType: models.RuleTypeMerchant, Weight: 0.9, Active: true},
	}
	rctx := &models.RuleContext{
		RecentTransactionCount: 6,
		SuspiciousMerchants:    []string{"FRAUD_SHOP"},
	}

	score, violated := engine.Evaluate(rules, tx, rctx)
	assert.Equal(t, 1.0, score)
	assert.Len(t, violated, 3)
}

func TestViolatedNamesInEvaluationOrder(t *testing.T) {
	engine := NewRuleEngine(testScoringConfig())

	tx := txAt(12)
	tx.Amount = 6000

	rules := []*models.Rule{
		velocityRule(5, 0.1),
		amountRule(5000, 0.1),
	}
	rctx := &models.RuleContext{RecentTransactionCount: 10}

	_, violated := engine.Evaluate(rules, tx, rctx)
	assert.Equal(t, []string{"Velocity", "High Amount"}, violated)
}
