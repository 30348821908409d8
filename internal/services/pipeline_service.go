package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/sentinelops/sentinel-pipeline/internal/engine"
	"github.com/sentinelops/sentinel-pipeline/internal/models"
	"github.com/sentinelops/sentinel-pipeline/internal/utils"
)

// PipelineService fronts the orchestrator for the transport layer, adding
// submission latency tracking and periodic p95 reporting.
type PipelineService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	latencies *utils.LatencyTracker
}

// NewPipelineService constructs the service facade.
func NewPipelineService(logger *slog.Logger, pipeline *engine.Pipeline) *PipelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		logger:    logger,
		pipeline:  pipeline,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Submit ingests a raw report through the pipeline.
func (s *PipelineService) Submit(ctx context.Context, text string, useGrounding bool) (models.Incident, error) {
	start := time.Now()
	incident, err := s.pipeline.Submit(ctx, text, useGrounding)
	if err != nil {
		return models.Incident{}, err
	}

	duration := time.Since(start)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("submission latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
	return incident, nil
}

// Incidents returns the current ledger snapshot, most recent first.
func (s *PipelineService) Incidents() []models.Incident {
	return s.pipeline.Incidents()
}

// UpdateStatus forwards a status change to the pipeline.
func (s *PipelineService) UpdateStatus(ctx context.Context, id string, status models.Status) {
	s.pipeline.UpdateStatus(ctx, id, status)
}

// AttachAnalysis forwards a tactical-analysis attach to the pipeline.
func (s *PipelineService) AttachAnalysis(ctx context.Context, id, analysis string) {
	s.pipeline.AttachAnalysis(ctx, id, analysis)
}

// Stats returns fresh dashboard counters.
func (s *PipelineService) Stats() models.PipelineStats {
	return s.pipeline.Stats()
}

// Health returns the combined health snapshot.
func (s *PipelineService) Health() models.HealthSnapshot {
	return s.pipeline.Health()
}

// RunDiagnostics triggers a fresh self-check run.
func (s *PipelineService) RunDiagnostics(ctx context.Context) []models.DiagnosticRecord {
	return s.pipeline.RunDiagnostics(ctx)
}

// Preferences returns the persisted configuration record.
func (s *PipelineService) Preferences() models.Preferences {
	return s.pipeline.Preferences()
}

// SavePreferences replaces the configuration record.
func (s *PipelineService) SavePreferences(prefs models.Preferences) {
	s.pipeline.SavePreferences(prefs)
}

// LatencyP95 returns the current p95 submission latency.
func (s *PipelineService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}
