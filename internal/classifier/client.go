package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/sentinelops/sentinel-pipeline/internal/models"
)

// maxRetries bounds the retry loop: one initial call plus three retries.
const maxRetries = 3

// DefaultCoords is the city-center fallback used when classification cannot
// produce a location.
var DefaultCoords = models.Coordinates{Lat: 37.7749, Lng: -122.4194}

const fallbackSummary = "Classification unavailable; manual triage required"

// Client wraps a structured-inference backend with retry/backoff, schema
// validation, and deterministic fallback synthesis. Classify never fails:
// every exit path returns a well-formed incident.
type Client struct {
	logger  *slog.Logger
	backend Backend

	// sleep and jitter are swapped out by tests to keep backoff instant.
	sleep  func(ctx context.Context, d time.Duration) bool
	jitter func() time.Duration
}

// NewClient constructs a classification client over the given backend.
func NewClient(logger *slog.Logger, backend Backend) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger:  logger,
		backend: backend,
		sleep:   sleepContext,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(1000)) * time.Millisecond
		},
	}
}

// Classify sends the report text through the inference backend and returns a
// classified incident, retrying rate-limited and unclassified failures with
// exponential backoff. On exhaustion or a permanent failure it synthesizes a
// fallback incident instead of surfacing an error.
func (c *Client) Classify(ctx context.Context, text string, useGrounding bool) models.Incident {
	if c.backend == nil {
		c.logger.Error("classification requested with no backend configured")
		return c.fallbackIncident()
	}

	start := time.Now()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := c.backend.Generate(ctx, InferenceRequest{Text: text, Grounding: useGrounding})
		if err == nil {
			incident, parseErr := c.buildIncident(result, start)
			if parseErr == nil {
				return incident
			}
			// A strict-schema response that fails to parse carries no status
			// signal, so it falls in the unclassified bucket.
			err = &BackendError{Kind: FailureUnclassified, Err: parseErr}
		}

		var backendErr *BackendError
		if !errors.As(err, &backendErr) {
			backendErr = &BackendError{Kind: FailureUnclassified, Err: err}
		}

		if !backendErr.Retryable() || attempt == maxRetries {
			c.logger.Warn("classification failed",
				slog.Int("attempt", attempt),
				slog.String("kind", backendErr.Kind.String()),
				slog.Any("error", backendErr))
			break
		}

		delay := time.Duration(1<<attempt)*time.Second + c.jitter()
		c.logger.Debug("retrying classification",
			slog.Int("attempt", attempt),
			slog.String("kind", backendErr.Kind.String()),
			slog.Duration("delay", delay))
		if !c.sleep(ctx, delay) {
			c.logger.Warn("classification abandoned, caller context done", slog.Int("attempt", attempt))
			break
		}
	}

	return c.fallbackIncident()
}

// CheckHealth issues a minimal probe and reports backend reachability.
// Failures of any kind resolve to false.
func (c *Client) CheckHealth(ctx context.Context) bool {
	if c.backend == nil {
		return false
	}
	if err := c.backend.Probe(ctx); err != nil {
		c.logger.Debug("inference probe failed", slog.Any("error", err))
		return false
	}
	return true
}

// rawClassification mirrors the strict output schema. Pointer fields let the
// parser distinguish absent values from zero values.
type rawClassification struct {
	Summary       *string  `json:"summary"`
	Type          *string  `json:"type"`
	Severity      *string  `json:"severity"`
	PriorityScore *float64 `json:"priority_score"`
	Coords        *struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"coords"`
}

func (c *Client) buildIncident(result InferenceResult, start time.Time) (models.Incident, error) {
	var raw rawClassification
	if err := json.Unmarshal(result.Payload, &raw); err != nil {
		return models.Incident{}, fmt.Errorf("decode classification payload: %w", err)
	}

	now := time.Now().UTC()
	incident := models.Incident{
		ID:            models.NewIncidentID(),
		Timestamp:     now,
		Summary:       "Unclassified incident report",
		Type:          models.TypeOther,
		Severity:      models.SeverityMinor,
		PriorityScore: 5,
		Coords:        DefaultCoords,
		Status:        models.StatusActive,
		ProcessingMS:  time.Since(start).Milliseconds(),
	}

	if raw.Summary != nil && strings.TrimSpace(*raw.Summary) != "" {
		incident.Summary = strings.TrimSpace(*raw.Summary)
	}
	if raw.Type != nil {
		incident.Type = parseIncidentType(*raw.Type)
	}
	if raw.Severity != nil {
		incident.Severity = parseSeverity(*raw.Severity)
	}
	if raw.PriorityScore != nil {
		incident.PriorityScore = models.ClampPriority(int(*raw.PriorityScore))
	}
	if raw.Coords != nil {
		incident.Coords = models.Coordinates{Lat: raw.Coords.Lat, Lng: raw.Coords.Lng}
	}

	for _, citation := range result.Citations {
		title := strings.TrimSpace(citation.Title)
		if title == "" {
			title = "Grounding source"
		}
		incident.GroundingSources = append(incident.GroundingSources, models.GroundingSource{
			Title: title,
			URI:   citation.URI,
		})
	}

	return incident, nil
}

// fallbackIncident synthesizes the deterministic placeholder returned when
// classification cannot succeed, so the pipeline always has something to merge.
func (c *Client) fallbackIncident() models.Incident {
	now := time.Now().UTC()
	return models.Incident{
		ID:            models.NewErrorIncidentID(now),
		Timestamp:     now,
		Summary:       fallbackSummary,
		Type:          models.TypeOther,
		Severity:      models.SeverityMajor,
		PriorityScore: 5,
		Coords:        DefaultCoords,
		Status:        models.StatusError,
	}
}

func parseIncidentType(value string) models.IncidentType {
	switch models.IncidentType(strings.ToUpper(strings.TrimSpace(value))) {
	case models.TypeFire:
		return models.TypeFire
	case models.TypeMedical:
		return models.TypeMedical
	case models.TypePolice:
		return models.TypePolice
	case models.TypeTraffic:
		return models.TypeTraffic
	case models.TypeUtility:
		return models.TypeUtility
	default:
		return models.TypeOther
	}
}

func parseSeverity(value string) models.Severity {
	switch models.Severity(strings.ToUpper(strings.TrimSpace(value))) {
	case models.SeverityCritical:
		return models.SeverityCritical
	case models.SeverityMajor:
		return models.SeverityMajor
	default:
		return models.SeverityMinor
	}
}

// sleepContext waits for d, returning false if ctx expires first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
