package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/frauddetect/fraud-engine/internal/models"
	"github.com/frauddetect/fraud-engine/internal/queue"
	"github.com/frauddetect/fraud-engine/internal/repositories"
)

// Service provides alert analytics and operational reporting
type Service struct {
	alertRepo   *repositories.AlertRepository
	db          *repositories.Database
	cacheClient *queue.CacheClient
}

// NewService creates an analytics service
func NewService(
	alertRepo *repositories.AlertRepository,
	db *repositories.Database,
	cacheClient *queue.CacheClient,
) *Service {
	return &Service{
		alertRepo:   alertRepo,
		db:          db,
		cacheClient: cacheClient,
	}
}

// GetAlertSummary returns aggregated alert statistics. Summaries are
// cached briefly since the dashboard polls this endpoint.
func (s *Service) GetAlertSummary(ctx context.Context) (*models.AlertSummary, error) {
	cacheKey := "alert_summary"
	var cached models.AlertSummary
	if s.cacheClient != nil {
		if err := s.cacheClient.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	byStatus, err := s.alertRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by status: %w", err)
	}

	byRiskLevel, err := s.alertRepo.CountByRiskLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by risk level: %w", err)
	}

	topRules, err := s.alertRepo.TopViolatedRules(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to get top violated rules: %w", err)
	}

	var total int
	for _, count := range byStatus {
		total += count
	}

	summary := &models.AlertSummary{
		TotalAlerts:      total,
		PendingCount:     byStatus[models.AlertStatusPending],
		ResolvedCount:    byStatus[models.AlertStatusResolved],
		ByRiskLevel:      byRiskLevel,
		TopViolatedRules: topRules,
	}

	if total > 0 {
		summary.FalsePositiveRate = float64(byStatus[models.AlertStatusFalsePositive]) / float64(total)
	}

	if s.cacheClient != nil {
		if err := s.cacheClient.Set(ctx, cacheKey, summary, 1*time.Minute); err != nil {
			log.Warn().Err(err).Msg("Failed to cache alert summary")
		}
	}

	return summary, nil
}

// GetSystemMetrics returns current operational metrics
func (s *Service) GetSystemMetrics(ctx context.Context, streamClient *queue.RedisStreamClient) (map[string]interface{}, error) {
	metrics := map[string]interface{}{
		"timestamp": time.Now(),
	}

	dbStats := s.db.Stats()
	metrics["db_connections_active"] = int(dbStats.AcquiredConns())
	metrics["db_connections_idle"] = int(dbStats.IdleConns())

	if streamClient != nil {
		if info, err := streamClient.GetStreamInfo(ctx); err == nil {
			metrics["queue_depth"] = info.PendingCount
			metrics["stream_length"] = info.Length
		}
	}

	if tps, err := s.calculateTPS(ctx); err == nil {
		metrics["transactions_per_sec"] = tps
	}

	return metrics, nil
}

// calculateTPS calculates transactions per second over the last minute
func (s *Service) calculateTPS(ctx context.Context) (float64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE timestamp >= NOW() - INTERVAL '1 minute'
	`

	var count int
	if err := s.db.Pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}

	return float64(count) / 60.0, nil
}

// GetHourlyTransactionVolume returns transaction volume by hour for a day
func (s *Service) GetHourlyTransactionVolume(ctx context.Context, date time.Time) ([]HourlyVolume, error) {
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	query := `
		SELECT
			EXTRACT(HOUR FROM timestamp) as hour,
			COUNT(*) as count,
			COALESCE(SUM(amount), 0) as total_amount
		FROM transactions
		WHERE timestamp >= $1 AND timestamp < $2
		GROUP BY EXTRACT(HOUR FROM timestamp)
		ORDER BY hour
	`

	rows, err := s.db.Pool.Query(ctx, query, startOfDay, endOfDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var volumes []HourlyVolume
	for rows.Next() {
		var hv HourlyVolume
		if err := rows.Scan(&hv.Hour, &hv.Count, &hv.TotalAmount); err != nil {
			return nil, err
		}
		volumes = append(volumes, hv)
	}

	return volumes, rows.Err()
}

// HourlyVolume represents transaction volume for an hour
type HourlyVolume struct {
	Hour        int     `json:"hour"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}
