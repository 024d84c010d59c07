package fraud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frauddetect/fraud-engine/internal/models"
)

type stubRuleSource struct {
	rules []*models.Rule
	err   error
}

func (s *stubRuleSource) GetActive(ctx context.Context) ([]*models.Rule, error) {
	return s.rules, s.err
}

type stubContextProvider struct {
	rctx *models.RuleContext
	err  error
}

func (s *stubContextProvider) Build(ctx context.Context, tx *models.Transaction) (*models.RuleContext, error) {
	return s.rctx, s.err
}

type stubClassifier struct {
	score float64
	err   error
}

func (s *stubClassifier) Score(ctx context.Context, tx *models.Transaction) (float64, error) {
	return s.score, s.err
}

func newTestEngine(rules []*models.Rule, rctx *models.RuleContext, classifier Classifier) *Engine {
	if rctx == nil {
		rctx = &models.RuleContext{}
	}
	return NewEngine(
		&stubRuleSource{rules: rules},
		&stubContextProvider{rctx: rctx},
		classifier,
		nil,
		testScoringConfig(),
	)
}

func TestAnalyzeTransactionBlendsScores(t *testing.T) {
	// 7320.10 trips High Amount (0.7) and Velocity (0.6); contributions
	// cap at 1.0. Combined with a model score of 0.72:
	// 0.4*1.0 + 0.6*0.72 = 0.832
	engine := newTestEngine(
		[]*models.Rule{amountRule(5000, 0.7), velocityRule(5, 0.6)},
		&models.RuleContext{RecentTransactionCount: 6},
		&stubClassifier{score: 0.72},
	)

	tx := txAt(14)
	tx.Amount = 7320.10

	analysis, err := engine.AnalyzeTransaction(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, analysis.RuleScore)
	assert.InDelta(t, 0.72, analysis.AIScore, 1e-9)
	assert.InDelta(t, 0.832, analysis.TotalScore, 1e-9)
	assert.Equal(t, models.RiskLevelCritical, analysis.RiskLevel)
	assert.Equal(t, []string{"High Amount", "Velocity"}, analysis.ViolatedRules)
}

func TestAnalyzeTransactionLowRisk(t *testing.T) {
	// 249.99 trips nothing; 0.4*0 + 0.6*0.1 = 0.06 → SAFE
	engine := newTestEngine(
		[]*models.Rule{amountRule(5000, 0.7), velocityRule(5, 0.6)},
		&models.RuleContext{RecentTransactionCount: 1},
		&stubClassifier{score: 0.1},
	)

	tx := txAt(14)
	tx.Amount = 249.99

	analysis, err := engine.AnalyzeTransaction(context.Background(), tx)
	require.NoError(t, err)

	assert.Zero(t, analysis.RuleScore)
	assert.InDelta(t, 0.06, analysis.TotalScore, 1e-9)
	assert.Equal(t, models.RiskLevelSafe, analysis.RiskLevel)
	assert.Empty(t, analysis.ViolatedRules)
}

func TestAnalyzeTransactionClassifierFailureIsNotFatal(t *testing.T) {
	engine := newTestEngine(
		[]*models.Rule{amountRule(5000, 0.7)},
		nil,
		&stubClassifier{err: errors.New("model unreachable")},
	)

	tx := txAt(14)
	tx.Amount = 6000

	analysis, err := engine.AnalyzeTransaction(context.Background(), tx)
	require.NoError(t, err)

	assert.Zero(t, analysis.AIScore)
	assert.InDelta(t, 0.7, analysis.RuleScore, 1e-9)
	assert.InDelta(t, 0.28, analysis.TotalScore, 1e-9)
	assert.Equal(t, models.RiskLevelLow, analysis.RiskLevel)
}

func TestAnalyzeTransactionRuleLoadFailure(t *testing.T) {
	engine := NewEngine(
		&stubRuleSource{err: errors.New("db down")},
		&stubContextProvider{rctx: &models.RuleContext{}},
		&stubClassifier{score: 0.5},
		nil,
		testScoringConfig(),
	)

	_, err := engine.AnalyzeTransaction(context.Background(), txAt(14))
	assert.Error(t, err)
}

func TestAnalyzeTransactionContextFailure(t *testing.T) {
	engine := NewEngine(
		&stubRuleSource{},
		&stubContextProvider{err: errors.New("db down")},
		&stubClassifier{score: 0.5},
		nil,
		testScoringConfig(),
	)

	_, err := engine.AnalyzeTransaction(context.Background(), txAt(14))
	assert.Error(t, err)
}

func TestClassifyRiskBands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{1.0, models.RiskLevelCritical},
		{0.8, models.RiskLevelCritical},
		{0.79999, models.RiskLevelHigh},
		{0.6, models.RiskLevelHigh},
		{0.59999, models.RiskLevelMedium},
		{0.4, models.RiskLevelMedium},
		{0.39999, models.RiskLevelLow},
		{0.2, models.RiskLevelLow},
		{0.19999, models.RiskLevelSafe},
		{0, models.RiskLevelSafe},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRisk(tt.score), "score %v", tt.score)
	}
}
