package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/analytics"
	"github.com/aarel/market-watch/internal/coordinator"
)

// AnalyticsRotationJob archives the active universe's equity/trades JSONL
// files to S3/R2 and prunes archives beyond the retention window.
type AnalyticsRotationJob struct {
	appState      *coordinator.AppState
	rotation      *analytics.RotationService
	retentionDays int
	minKeep       int
	log           zerolog.Logger
}

// NewAnalyticsRotationJob constructs an AnalyticsRotationJob against
// appState and rotation.
func NewAnalyticsRotationJob(appState *coordinator.AppState, rotation *analytics.RotationService, retentionDays, minKeep int, log zerolog.Logger) *AnalyticsRotationJob {
	return &AnalyticsRotationJob{
		appState:      appState,
		rotation:      rotation,
		retentionDays: retentionDays,
		minKeep:       minKeep,
		log:           log.With().Str("component", "AnalyticsRotationJob").Logger(),
	}
}

// Name implements Job.
func (j *AnalyticsRotationJob) Name() string { return "analytics_rotation" }

// Run implements Job.
func (j *AnalyticsRotationJob) Run() error {
	ctx := context.Background()
	store := j.appState.Store()

	if err := j.rotation.CreateAndUpload(ctx, store.EquityPath(), store.TradesPath()); err != nil {
		return err
	}
	if err := j.rotation.RotateOld(ctx, j.retentionDays, j.minKeep); err != nil {
		return err
	}
	j.log.Info().Msg("analytics archive rotated")
	return nil
}
