package fraud

import (
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
)

// RuleEngine evaluates declarative fraud rules against a transaction.
// Each rule contributes independently; a rule that cannot be evaluated
// contributes nothing rather than failing the analysis.
type RuleEngine struct {
	locationDiscount float64
	timeDiscount     float64
}

// NewRuleEngine creates a rule engine with the configured discounts
func NewRuleEngine(cfg configs.ScoringConfig) *RuleEngine {
	return &RuleEngine{
		locationDiscount: cfg.LocationDiscount,
		timeDiscount:     cfg.TimeDiscount,
	}
}

// Evaluate runs all rules against the transaction and returns the
// aggregate rule score in [0,1] plus the names of violated rules.
// Contributions sum and the total is capped at 1.0.
func (e *RuleEngine) Evaluate(rules []*models.Rule, tx *models.Transaction, rctx *models.RuleContext) (float64, []string) {
	var total float64
	var violated []string

	for _, rule := range rules {
		hit, contribution := e.evaluateRule(rule, tx, rctx)
		if hit {
			total += contribution
			violated = append(violated, rule.Name)
		}
	}

	if total > 1.0 {
		total = 1.0
	}

	return total, violated
}

func (e *RuleEngine) evaluateRule(rule *models.Rule, tx *models.Transaction, rctx *models.RuleContext) (bool, float64) {
	if !rule.Active {
		return false, 0
	}

	switch rule.RuleType {
	case models.RuleTypeAmount:
		if rule.Condition == models.ConditionGreaterThan && tx.Amount > rule.Threshold {
			return true, rule.Weight
		}

	case models.RuleTypeVelocity:
		if float64(rctx.RecentTransactionCount) > rule.Threshold {
			return true, rule.Weight
		}

	case models.RuleTypeLocation:
		// A user with no prior locations has never seen ANY location,
		// so a first transaction from somewhere still violates.
		if tx.Location != "" && !contains(rctx.UserLocations, tx.Location) {
			return true, rule.Weight * e.locationDiscount
		}

	case models.RuleTypeMerchant:
		if contains(rctx.SuspiciousMerchants, tx.Merchant) {
			return true, rule.Weight
		}

	case models.RuleTypeTime:
		hour := tx.Timestamp.Hour()
		if hour >= 0 && hour < 5 {
			return true, rule.Weight * e.timeDiscount
		}

	default:
		log.Warn().
			Str("rule_id", rule.ID.String()).
			Str("rule_type", string(rule.RuleType)).
			Msg("Unknown rule type, skipping")
	}

	return false, 0
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
