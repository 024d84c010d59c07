package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/configs"
	"github.com/frauddetect/fraud-engine/internal/models"
	"github.com/frauddetect/fraud-engine/internal/repositories"
)

// Default rule set applied to fresh deployments. Seeding is
// idempotent: a rule whose name already exists is left untouched, so
// operator edits survive reruns.
var defaultRules = []models.Rule{
	{
		Name:        "High Amount",
		Description: "Flags transactions above the high-value threshold",
		RuleType:    models.RuleTypeAmount,
		Condition:   models.ConditionGreaterThan,
		Threshold:   5000,
		Weight:      0.7,
		Active:      true,
	},
	{
		Name:        "Velocity",
		Description: "Flags bursts of transactions from the same user inside the velocity window",
		RuleType:    models.RuleTypeVelocity,
		Threshold:   5,
		Weight:      0.6,
		Active:      true,
	},
	{
		Name:        "Unusual Hours",
		Description: "Flags transactions made between midnight and 5 AM",
		RuleType:    models.RuleTypeTime,
		Weight:      0.4,
		Active:      true,
	},
}

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Server.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	ruleRepo := repositories.NewRuleRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seeded := 0
	for i := range defaultRules {
		rule := defaultRules[i]

		count, err := ruleRepo.CountByName(ctx, rule.Name)
		if err != nil {
			log.Fatal().Err(err).Str("rule", rule.Name).Msg("Failed to check existing rules")
		}
		if count > 0 {
			log.Info().Str("rule", rule.Name).Msg("Rule already exists, skipping")
			continue
		}

		if err := ruleRepo.Create(ctx, &rule); err != nil {
			log.Fatal().Err(err).Str("rule", rule.Name).Msg("Failed to create rule")
		}

		log.Info().
			Str("rule", rule.Name).
			Str("rule_type", string(rule.RuleType)).
			Float64("weight", rule.Weight).
			Msg("Rule seeded")
		seeded++
	}

	log.Info().Int("seeded", seeded).Int("total", len(defaultRules)).Msg("Rule seeding complete")
}
