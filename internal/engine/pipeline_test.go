package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sentinelops/sentinel-pipeline/internal/cache"
	"github.com/sentinelops/sentinel-pipeline/internal/models"
	"github.com/sentinelops/sentinel-pipeline/internal/store"
)

type fakeClassifier struct {
	mu       sync.Mutex
	calls    int
	healthy  bool
	fallback bool
	delay    time.Duration
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, useGrounding bool) models.Incident {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	severity := models.SeverityMajor
	if strings.Contains(text, "critical") {
		severity = models.SeverityCritical
	}
	now := time.Now().UTC()
	if f.fallback {
		return models.Incident{
			ID:            models.NewErrorIncidentID(now),
			Timestamp:     now,
			Summary:       "Classification unavailable",
			Type:          models.TypeOther,
			Severity:      models.SeverityMajor,
			PriorityScore: 5,
			Status:        models.StatusError,
		}
	}
	return models.Incident{
		ID:            fmt.Sprintf("INC-%06d", n),
		Timestamp:     now,
		Summary:       "classified: " + text,
		Type:          models.TypeFire,
		Severity:      severity,
		PriorityScore: 7,
		Status:        models.StatusActive,
		ProcessingMS:  12,
	}
}

func (f *fakeClassifier) CheckHealth(ctx context.Context) bool { return f.healthy }

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	events atomic.Int64
	errs   atomic.Int64
}

func (s *recordingSink) Notify(context.Context, string, any)        { s.events.Add(1) }
func (s *recordingSink) NotifyError(context.Context, error, string) { s.errs.Add(1) }

func newTestPipeline(classifier Classifier) (*Pipeline, *recordingSink) {
	notifier := &recordingSink{}
	contentCache := cache.NewContentCache(nil, store.NewMemoryProvider())
	return NewPipeline(nil, contentCache, classifier, notifier), notifier
}

func TestSubmitClassifiesAndMerges(t *testing.T) {
	classifier := &fakeClassifier{healthy: true}
	p, notifier := newTestPipeline(classifier)

	incident, err := p.Submit(context.Background(), "warehouse fire near the docks", false)
	if err != nil {
		t.Fatalf("submit returned error: %v", err)
	}
	if incident.Status != models.StatusActive {
		t.Fatalf("unexpected status %s", incident.Status)
	}
	if p.TotalRequests() != 1 {
		t.Fatalf("expected 1 request, got %d", p.TotalRequests())
	}
	if len(p.Incidents()) != 1 {
		t.Fatalf("expected incident merged into ledger")
	}
	if notifier.events.Load() == 0 {
		t.Fatalf("expected sink notification")
	}
}

func TestSubmitIdempotentResubmission(t *testing.T) {
	classifier := &fakeClassifier{}
	p, _ := newTestPipeline(classifier)

	first, err := p.Submit(context.Background(), "gas leak on elm street", false)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := p.Submit(context.Background(), "gas leak on elm street", false)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if second.ID != first.ID {
		t.Fatalf("resubmission produced a new incident: %s vs %s", first.ID, second.ID)
	}
	if classifier.callCount() != 1 {
		t.Fatalf("expected single backend call, got %d", classifier.callCount())
	}
	if p.CacheHits() != 1 {
		t.Fatalf("expected 1 cache hit, got %d", p.CacheHits())
	}
	if p.TotalRequests() != 2 {
		t.Fatalf("expected 2 requests, got %d", p.TotalRequests())
	}
	if got := len(p.Incidents()); got != 1 {
		t.Fatalf("ledger should stay unique by id, got %d entries", got)
	}
}

func TestSubmitCacheHitMovesToFront(t *testing.T) {
	p, _ := newTestPipeline(&fakeClassifier{})

	if _, err := p.Submit(context.Background(), "first incident report", false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := p.Submit(context.Background(), "second incident report", false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	first, err := p.Submit(context.Background(), "first incident report", false)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	snapshot := p.Incidents()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 unique incidents, got %d", len(snapshot))
	}
	if snapshot[0].ID != first.ID {
		t.Fatalf("expected cache hit at front of ledger")
	}
}

func TestSubmitRejectsShortInput(t *testing.T) {
	classifier := &fakeClassifier{}
	p, notifier := newTestPipeline(classifier)

	for _, input := range []string{"", "hi", "   ab   "} {
		if _, err := p.Submit(context.Background(), input, false); !errors.Is(err, ErrInvalidReport) {
			t.Fatalf("input %q: expected ErrInvalidReport, got %v", input, err)
		}
	}

	if classifier.callCount() != 0 {
		t.Fatalf("rejected input must not reach the backend")
	}
	if p.TotalRequests() != 0 {
		t.Fatalf("rejected input must not count as a request")
	}
	if len(p.Incidents()) != 0 {
		t.Fatalf("rejected input must not mutate state")
	}
	if notifier.events.Load() != 0 {
		t.Fatalf("rejected input must not notify the sink")
	}
}

func TestSubmitFallbackStillMerges(t *testing.T) {
	p, notifier := newTestPipeline(&fakeClassifier{fallback: true})

	incident, err := p.Submit(context.Background(), "backend is down for this one", false)
	if err != nil {
		t.Fatalf("submit must not fail on degraded classification: %v", err)
	}
	if incident.Status != models.StatusError {
		t.Fatalf("expected ERROR incident, got %s", incident.Status)
	}
	if len(p.Incidents()) != 1 {
		t.Fatalf("fallback incident must still merge")
	}
	if notifier.errs.Load() == 0 {
		t.Fatalf("expected error notification for fallback")
	}

	// The fallback is cached: replaying must not call the backend again.
	replay, err := p.Submit(context.Background(), "backend is down for this one", false)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.ID != incident.ID {
		t.Fatalf("expected cached fallback on replay")
	}
}

func TestConcurrentIdenticalSubmissionsCoalesce(t *testing.T) {
	classifier := &fakeClassifier{delay: 50 * time.Millisecond}
	p, _ := newTestPipeline(classifier)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			incident, err := p.Submit(context.Background(), "simultaneous duplicate report", false)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			ids[n] = incident.ID
		}(i)
	}
	wg.Wait()

	if classifier.callCount() != 1 {
		t.Fatalf("expected coalesced classification, got %d calls", classifier.callCount())
	}
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("callers received different incidents: %v", ids)
		}
	}
}

func TestUpdateStatus(t *testing.T) {
	p, notifier := newTestPipeline(&fakeClassifier{})
	incident, _ := p.Submit(context.Background(), "traffic pileup on the bridge", false)

	before := notifier.events.Load()
	p.UpdateStatus(context.Background(), incident.ID, models.StatusDispatched)

	snapshot := p.Incidents()
	if snapshot[0].Status != models.StatusDispatched {
		t.Fatalf("expected DISPATCHED, got %s", snapshot[0].Status)
	}
	if notifier.events.Load() != before+1 {
		t.Fatalf("expected sink notification for status change")
	}

	// Unknown id is a silent no-op.
	p.UpdateStatus(context.Background(), "INC-MISSING", models.StatusSolved)
	if notifier.events.Load() != before+1 {
		t.Fatalf("no-op update must not notify")
	}
}

func TestStatsCountsFreshFromState(t *testing.T) {
	p, _ := newTestPipeline(&fakeClassifier{})

	seed := []struct {
		text   string
		status models.Status
	}{
		{"plain active incident one", models.StatusActive},
		{"critical incident, active", models.StatusActive},
		{"dispatched incident here", models.StatusDispatched},
		{"critical incident, solved", models.StatusSolved},
	}
	for _, s := range seed {
		incident, err := p.Submit(context.Background(), s.text, false)
		if err != nil {
			t.Fatalf("seed submit: %v", err)
		}
		p.UpdateStatus(context.Background(), incident.ID, s.status)
	}

	stats := p.Stats()
	if stats.Total != 3 {
		t.Fatalf("expected total 3 (non-solved), got %d", stats.Total)
	}
	if stats.Critical != 1 {
		t.Fatalf("expected 1 non-solved critical, got %d", stats.Critical)
	}
	if stats.Dispatched != 1 {
		t.Fatalf("expected 1 dispatched, got %d", stats.Dispatched)
	}
	if stats.Solved != 1 {
		t.Fatalf("expected 1 solved, got %d", stats.Solved)
	}
}

func TestHealthMath(t *testing.T) {
	p, _ := newTestPipeline(&fakeClassifier{healthy: true})

	// No traffic, no diagnostics: rates are zero, status healthy.
	health := p.Health()
	if health.CacheHitRate != 0 || health.ActiveTestsPassing != 0 {
		t.Fatalf("expected zero rates before traffic, got %+v", health)
	}
	if health.APIStatus != models.APIHealthy {
		t.Fatalf("expected HEALTHY before diagnostics, got %s", health.APIStatus)
	}

	// 4 requests, 1 cache hit -> 25%.
	if _, err := p.Submit(context.Background(), "unique report alpha", false); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(context.Background(), "unique report bravo", false); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(context.Background(), "unique report charlie", false); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(context.Background(), "unique report alpha", false); err != nil {
		t.Fatal(err)
	}

	health = p.Health()
	if health.CacheHitRate != 25 {
		t.Fatalf("expected hit rate 25, got %d", health.CacheHitRate)
	}
}

func TestRunDiagnosticsReplacesState(t *testing.T) {
	classifier := &fakeClassifier{healthy: true}
	p, _ := newTestPipeline(classifier)

	records := p.RunDiagnostics(context.Background())
	if len(records) != 5 {
		t.Fatalf("expected connectivity + 4 battery checks, got %d", len(records))
	}
	if records[0].ID != "diag-inference-connectivity" || records[0].Status != models.DiagPass {
		t.Fatalf("unexpected connectivity record: %+v", records[0])
	}

	health := p.Health()
	if health.ActiveTestsPassing != 100 {
		t.Fatalf("expected 100%% passing, got %d", health.ActiveTestsPassing)
	}
	if health.APIStatus != models.APIHealthy {
		t.Fatalf("expected HEALTHY, got %s", health.APIStatus)
	}

	// Backend goes dark: a fresh run fully replaces the prior records.
	classifier.healthy = false
	records = p.RunDiagnostics(context.Background())
	if records[0].Status != models.DiagFail {
		t.Fatalf("expected failed connectivity, got %+v", records[0])
	}
	health = p.Health()
	if health.APIStatus != models.APIDown {
		t.Fatalf("expected DOWN after failed connectivity, got %s", health.APIStatus)
	}
	if health.ActiveTestsPassing != 80 {
		t.Fatalf("expected 80%% (4 of 5), got %d", health.ActiveTestsPassing)
	}
}

func TestHealthDegradedOnErrorIncident(t *testing.T) {
	p, _ := newTestPipeline(&fakeClassifier{fallback: true, healthy: true})
	if _, err := p.Submit(context.Background(), "this one will degrade", false); err != nil {
		t.Fatal(err)
	}

	if got := p.Health().APIStatus; got != models.APIDegraded {
		t.Fatalf("expected DEGRADED with ERROR incident present, got %s", got)
	}
}

func TestPreferencesRoundTripThroughPipeline(t *testing.T) {
	p, _ := newTestPipeline(&fakeClassifier{})

	prefs := p.Preferences()
	prefs.UseGrounding = true
	p.SavePreferences(prefs)

	if !p.Preferences().UseGrounding {
		t.Fatalf("expected saved preferences to round-trip")
	}
}
