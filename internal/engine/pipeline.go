package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sentinelops/sentinel-pipeline/internal/cache"
	"github.com/sentinelops/sentinel-pipeline/internal/diagnostics"
	"github.com/sentinelops/sentinel-pipeline/internal/ledger"
	"github.com/sentinelops/sentinel-pipeline/internal/metrics"
	"github.com/sentinelops/sentinel-pipeline/internal/models"
	"github.com/sentinelops/sentinel-pipeline/internal/sink"
)

// Classifier defines the classification client behaviour used by the pipeline.
type Classifier interface {
	Classify(ctx context.Context, text string, useGrounding bool) models.Incident
	CheckHealth(ctx context.Context) bool
}

// ErrInvalidReport rejects submissions that are empty or too short to classify.
var ErrInvalidReport = errors.New("invalid incident report")

// minReportLength is the smallest trimmed report accepted for classification.
const minReportLength = 5

// Pipeline coordinates the incident processing flow: fingerprint, cache
// lookup, classification on miss, and reconciliation into the ordered ledger,
// while tracking request/cache counters and the latest diagnostics run.
type Pipeline struct {
	logger     *slog.Logger
	cache      *cache.ContentCache
	classifier Classifier
	notifier   sink.Sink
	incidents  *ledger.Ledger
	runner     *diagnostics.Runner
	inflight   singleflight.Group

	totalRequests atomic.Uint64
	cacheHits     atomic.Uint64

	diagMu         sync.RWMutex
	diagRecords    []models.DiagnosticRecord
	diagRan        bool
	connectivityOK bool
}

// NewPipeline constructs the orchestrator. A nil notifier falls back to the
// logging sink; the ledger and diagnostics battery are owned internally.
func NewPipeline(logger *slog.Logger, contentCache *cache.ContentCache, classifier Classifier, notifier sink.Sink) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = sink.NewLogSink(logger)
	}
	return &Pipeline{
		logger:     logger,
		cache:      contentCache,
		classifier: classifier,
		notifier:   notifier,
		incidents:  ledger.New(),
		runner:     diagnostics.NewRunner(logger),
	}
}

// Submit ingests one raw report. Rejections happen before any counter,
// backend call, or cache mutation; every accepted submission terminates with
// an incident merged into the ledger, degraded or not.
func (p *Pipeline) Submit(ctx context.Context, text string, useGrounding bool) (models.Incident, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minReportLength {
		metrics.ObserveSubmission(metrics.OutcomeRejected, 0)
		return models.Incident{}, fmt.Errorf("%w: need at least %d characters", ErrInvalidReport, minReportLength)
	}

	p.totalRequests.Add(1)
	digest := cache.Fingerprint(trimmed)

	if incident, ok := p.cache.Lookup(digest); ok {
		p.cacheHits.Add(1)
		p.incidents.Upsert(incident)
		metrics.ObserveSubmission(metrics.OutcomeCached, 0)
		p.logger.Debug("cache hit", slog.String("incident_id", incident.ID))
		return incident, nil
	}

	// Concurrent submissions of the same report share one classification.
	value, _, _ := p.inflight.Do(digest, func() (any, error) {
		start := time.Now()
		incident := p.classifier.Classify(ctx, trimmed, useGrounding)
		elapsed := time.Since(start)

		// Error-status results are cached too: replaying a degraded report
		// must not hammer an already degraded backend.
		p.cache.Store(digest, incident)
		p.incidents.Upsert(incident)

		outcome := metrics.OutcomeClassified
		if incident.Status == models.StatusError {
			outcome = metrics.OutcomeFallback
			p.notifier.NotifyError(ctx, errors.New("classification degraded to fallback incident"), "classify:"+incident.ID)
		}
		metrics.ObserveSubmission(outcome, elapsed)
		p.notifier.Notify(ctx, "incident_created", incident)

		p.logger.Info("incident merged",
			slog.String("incident_id", incident.ID),
			slog.String("status", string(incident.Status)),
			slog.Duration("elapsed", elapsed))
		return incident, nil
	})

	return value.(models.Incident), nil
}

// UpdateStatus replaces the status of the matching incident in place. Unknown
// ids are a silent no-op; the sink is only notified on an applied change.
func (p *Pipeline) UpdateStatus(ctx context.Context, id string, status models.Status) {
	if !p.incidents.SetStatus(id, status) {
		p.logger.Debug("status update for unknown incident", slog.String("incident_id", id))
		return
	}
	p.notifier.Notify(ctx, "incident_status_updated", map[string]string{
		"id":     id,
		"status": string(status),
	})
}

// AttachAnalysis attaches out-of-band tactical analysis to an incident.
// Unknown ids are a silent no-op.
func (p *Pipeline) AttachAnalysis(ctx context.Context, id, analysis string) {
	if !p.incidents.SetAnalysis(id, analysis) {
		return
	}
	p.notifier.Notify(ctx, "incident_analysis_attached", map[string]string{"id": id})
}

// Incidents returns the ledger snapshot, most recent first.
func (p *Pipeline) Incidents() []models.Incident {
	return p.incidents.Snapshot()
}

// Stats recomputes dashboard counters from current ledger state. Solved
// incidents drop out of every bucket except their own.
func (p *Pipeline) Stats() models.PipelineStats {
	var stats models.PipelineStats
	for _, incident := range p.incidents.Snapshot() {
		if incident.Status == models.StatusSolved {
			stats.Solved++
			continue
		}
		stats.Total++
		if incident.Severity == models.SeverityCritical {
			stats.Critical++
		}
		if incident.Status == models.StatusDispatched {
			stats.Dispatched++
		}
	}
	return stats
}

// Health combines connectivity, cache efficiency, and the latest diagnostics.
func (p *Pipeline) Health() models.HealthSnapshot {
	p.diagMu.RLock()
	records := append([]models.DiagnosticRecord(nil), p.diagRecords...)
	diagRan := p.diagRan
	connectivityOK := p.connectivityOK
	p.diagMu.RUnlock()

	snapshot := models.HealthSnapshot{
		APIStatus:   models.APIHealthy,
		Diagnostics: records,
	}

	switch {
	case diagRan && !connectivityOK:
		snapshot.APIStatus = models.APIDown
	case p.hasErrorIncident():
		snapshot.APIStatus = models.APIDegraded
	}

	if total := p.totalRequests.Load(); total > 0 {
		snapshot.CacheHitRate = int(math.Round(100 * float64(p.cacheHits.Load()) / float64(total)))
	}
	if len(records) > 0 {
		passing := 0
		for _, record := range records {
			if record.Status == models.DiagPass {
				passing++
			}
		}
		snapshot.ActiveTestsPassing = int(math.Round(100 * float64(passing) / float64(len(records))))
	}

	return snapshot
}

// RunDiagnostics executes the connectivity probe plus the self-check battery
// and atomically replaces the previous diagnostic state. Safe to invoke
// repeatedly and concurrently with ingestion.
func (p *Pipeline) RunDiagnostics(ctx context.Context) []models.DiagnosticRecord {
	start := time.Now()
	reachable := p.classifier.CheckHealth(ctx)
	connectivity := models.DiagnosticRecord{
		ID:         "diag-inference-connectivity",
		Name:       "Inference backend connectivity",
		Status:     models.DiagPass,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if !reachable {
		connectivity.Status = models.DiagFail
		connectivity.Message = "inference backend unreachable"
	}

	records := append([]models.DiagnosticRecord{connectivity}, p.runner.Run()...)

	passing := 0
	for _, record := range records {
		if record.Status == models.DiagPass {
			passing++
		}
	}
	metrics.ObserveDiagnostics(passing, len(records))

	p.diagMu.Lock()
	p.diagRecords = records
	p.diagRan = true
	p.connectivityOK = reachable
	p.diagMu.Unlock()

	p.logger.Info("diagnostics complete",
		slog.Int("passing", passing),
		slog.Int("total", len(records)),
		slog.Bool("backend_reachable", reachable))
	return records
}

// Preferences returns the persisted dashboard configuration record.
func (p *Pipeline) Preferences() models.Preferences {
	return p.cache.Preferences()
}

// SavePreferences replaces the dashboard configuration record.
func (p *Pipeline) SavePreferences(prefs models.Preferences) {
	p.cache.SavePreferences(prefs)
}

// TotalRequests reports the process-lifetime submission counter.
func (p *Pipeline) TotalRequests() uint64 { return p.totalRequests.Load() }

// CacheHits reports the process-lifetime cache hit counter.
func (p *Pipeline) CacheHits() uint64 { return p.cacheHits.Load() }

func (p *Pipeline) hasErrorIncident() bool {
	for _, incident := range p.incidents.Snapshot() {
		if incident.Status == models.StatusError {
			return true
		}
	}
	return false
}
