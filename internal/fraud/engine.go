package fraud

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
	"github.com/frauddetect/fraud-engine/internal/queue"
)

// RuleSource provides the active rule set for an analysis
type RuleSource interface {
	GetActive(ctx context.Context) ([]*models.Rule, error)
}

// ContextProvider derives per-analysis signals for a transaction
type ContextProvider interface {
	Build(ctx context.Context, tx *models.Transaction) (*models.RuleContext, error)
}

// Classifier produces a model fraud probability for a transaction
type Classifier interface {
	Score(ctx context.Context, tx *models.Transaction) (float64, error)
}

// Engine runs the hybrid analysis pipeline: rule evaluation and model
// scoring execute concurrently, then their scores are blended and
// classified into a risk level.
type Engine struct {
	rules      RuleSource
	ctxBuilder ContextProvider
	classifier Classifier
	ruleEngine *RuleEngine
	cache      *queue.CacheClient

	ruleWeight float64
	aiWeight   float64
}

// NewEngine creates an analysis engine
func NewEngine(
	rules RuleSource,
	ctxBuilder ContextProvider,
	classifier Classifier,
	cache *queue.CacheClient,
	cfg configs.ScoringConfig,
) *Engine {
	return &Engine{
		rules:      rules,
		ctxBuilder: ctxBuilder,
		classifier: classifier,
		ruleEngine: NewRuleEngine(cfg),
		cache:      cache,
		ruleWeight: cfg.RuleWeight,
		aiWeight:   cfg.AIWeight,
	}
}

// AnalyzeTransaction scores a transaction. Rule evaluation and the
// model call run in parallel; the model failing degrades its score to
// zero instead of failing the analysis.
func (e *Engine) AnalyzeTransaction(ctx context.Context, tx *models.Transaction) (*models.Analysis, error) {
	startTime := time.Now()

	rules, err := e.rules.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	rctx, err := e.ctxBuilder.Build(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule context: %w", err)
	}

	var (
		wg        sync.WaitGroup
		ruleScore float64
		violated  []string
		aiScore   float64
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		ruleScore, violated = e.ruleEngine.Evaluate(rules, tx, rctx)
	}()

	go func() {
		defer wg.Done()
		score, scoreErr := e.classifier.Score(ctx, tx)
		if scoreErr != nil {
			log.Warn().
				Err(scoreErr).
				Str("transaction_id", tx.ID.String()).
				Msg("Model scoring failed, continuing with rules only")
			return
		}
		aiScore = score
	}()

	wg.Wait()

	totalScore := e.ruleWeight*ruleScore + e.aiWeight*aiScore

	analysis := &models.Analysis{
		RuleScore:     ruleScore,
		AIScore:       aiScore,
		TotalScore:    totalScore,
		ViolatedRules: violated,
		RiskLevel:     ClassifyRisk(totalScore),
	}

	e.cacheAnalysis(ctx, tx.ID.String(), analysis)

	log.Info().
		Str("transaction_id", tx.ID.String()).
		Float64("rule_score", ruleScore).
		Float64("ai_score", aiScore).
		Float64("total_score", totalScore).
		Str("risk_level", analysis.RiskLevel).
		Strs("violated_rules", violated).
		Int64("processing_time_ms", time.Since(startTime).Milliseconds()).
		Msg("Transaction analyzed")

	return analysis, nil
}

// ClassifyRisk maps a combined score onto a risk level. Thresholds are
// inclusive at the lower bound of each band.
func ClassifyRisk(score float64) string {
	switch {
	case score >= 0.8:
		return models.RiskLevelCritical
	case score >= 0.6:
		return models.RiskLevelHigh
	case score >= 0.4:
		return models.RiskLevelMedium
	case score >= 0.2:
		return models.RiskLevelLow
	default:
		return models.RiskLevelSafe
	}
}

func (e *Engine) cacheAnalysis(ctx context.Context, txID string, analysis *models.Analysis) {
	if e.cache == nil {
		return
	}

	key := fmt.Sprintf("analysis:%s", txID)
	if err := e.cache.Set(ctx, key, analysis, 24*time.Hour); err != nil {
		log.Warn().Err(err).Str("transaction_id", txID).Msg("Failed to cache analysis")
	}
}

// GetCachedAnalysis retrieves a cached analysis result
func (e *Engine) GetCachedAnalysis(ctx context.Context, txID string) (*models.Analysis, error) {
	return CachedAnalysis(ctx, e.cache, txID)
}

// CachedAnalysis reads a previously cached analysis for a transaction
func CachedAnalysis(ctx context.Context, cache *queue.CacheClient, txID string) (*models.Analysis, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache not available")
	}

	key := fmt.Sprintf("analysis:%s", txID)
	var analysis models.Analysis
	if err := cache.Get(ctx, key, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}
