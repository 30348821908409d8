package classifier

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sentinelops/sentinel-pipeline/internal/models"
)

type scriptedBackend struct {
	results  []InferenceResult
	errs     []error
	calls    int
	probeErr error
}

func (s *scriptedBackend) Generate(ctx context.Context, req InferenceRequest) (InferenceResult, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return InferenceResult{}, s.errs[idx]
	}
	if idx < len(s.results) {
		return s.results[idx], nil
	}
	return InferenceResult{}, &BackendError{Kind: FailurePermanent, Status: 500}
}

func (s *scriptedBackend) Probe(ctx context.Context) error { return s.probeErr }

func newTestClient(backend Backend) *Client {
	c := NewClient(nil, backend)
	c.sleep = func(ctx context.Context, d time.Duration) bool { return true }
	c.jitter = func() time.Duration { return 0 }
	return c
}

func payload(s string) InferenceResult {
	return InferenceResult{Payload: []byte(s)}
}

func TestClassifySuccess(t *testing.T) {
	backend := &scriptedBackend{results: []InferenceResult{payload(
		`{"summary":"Apartment fire on 5th","type":"FIRE","severity":"CRITICAL","priority_score":9,"coords":{"lat":37.79,"lng":-122.41}}`,
	)}}

	incident := newTestClient(backend).Classify(context.Background(), "apartment fire", false)

	if !strings.HasPrefix(incident.ID, "INC-") || len(incident.ID) != 10 {
		t.Fatalf("unexpected id %q", incident.ID)
	}
	if incident.Type != models.TypeFire || incident.Severity != models.SeverityCritical {
		t.Fatalf("unexpected classification: %+v", incident)
	}
	if incident.PriorityScore != 9 {
		t.Fatalf("expected priority 9, got %d", incident.PriorityScore)
	}
	if incident.Status != models.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", incident.Status)
	}
	if incident.ProcessingMS < 0 {
		t.Fatalf("expected non-negative latency, got %d", incident.ProcessingMS)
	}
	if incident.Coords.Lat != 37.79 {
		t.Fatalf("unexpected coords: %+v", incident.Coords)
	}
}

func TestClassifyClampsPriority(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`25`, 10},
		{`-3`, 1},
		{`7`, 7},
	}
	for _, tc := range cases {
		backend := &scriptedBackend{results: []InferenceResult{payload(
			`{"summary":"s","type":"OTHER","severity":"MINOR","priority_score":` + tc.raw + `,"coords":{"lat":1,"lng":2}}`,
		)}}
		incident := newTestClient(backend).Classify(context.Background(), "some report", false)
		if incident.PriorityScore != tc.want {
			t.Fatalf("raw %s: expected %d, got %d", tc.raw, tc.want, incident.PriorityScore)
		}
	}
}

func TestClassifyAppliesFieldDefaults(t *testing.T) {
	backend := &scriptedBackend{results: []InferenceResult{payload(`{"priority_score":4,"coords":{"lat":1,"lng":2}}`)}}

	incident := newTestClient(backend).Classify(context.Background(), "sparse payload", false)

	if incident.Summary == "" {
		t.Fatalf("expected placeholder summary")
	}
	if incident.Type != models.TypeOther {
		t.Fatalf("expected OTHER default, got %s", incident.Type)
	}
	if incident.Severity != models.SeverityMinor {
		t.Fatalf("expected MINOR default, got %s", incident.Severity)
	}
}

func TestClassifyFallbackAfterExhaustion(t *testing.T) {
	rateLimited := &BackendError{Kind: FailureRateLimited, Status: 429}
	backend := &scriptedBackend{errs: []error{rateLimited, rateLimited, rateLimited, rateLimited}}

	incident := newTestClient(backend).Classify(context.Background(), "always throttled", false)

	if backend.calls != 4 {
		t.Fatalf("expected 4 attempts (1 initial + 3 retries), got %d", backend.calls)
	}
	if !strings.HasPrefix(incident.ID, "ERR-") {
		t.Fatalf("expected ERR- id, got %q", incident.ID)
	}
	if incident.Status != models.StatusError {
		t.Fatalf("expected ERROR status, got %s", incident.Status)
	}
	if incident.Severity != models.SeverityMajor {
		t.Fatalf("expected MAJOR severity, got %s", incident.Severity)
	}
	if incident.PriorityScore != 5 {
		t.Fatalf("expected priority 5, got %d", incident.PriorityScore)
	}
	if incident.Coords != DefaultCoords {
		t.Fatalf("expected fallback coords, got %+v", incident.Coords)
	}
	if incident.ProcessingMS != 0 || len(incident.GroundingSources) != 0 {
		t.Fatalf("fallback must carry no latency or sources: %+v", incident)
	}
}

func TestClassifyContextExpiryDuringBackoff(t *testing.T) {
	backend := &scriptedBackend{errs: []error{&BackendError{Kind: FailureRateLimited, Status: 429}}}
	client := NewClient(nil, backend)
	client.jitter = func() time.Duration { return 0 }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	incident := client.Classify(ctx, "throttled with a dead caller", false)

	if backend.calls != 1 {
		t.Fatalf("expired context must abandon retries, got %d calls", backend.calls)
	}
	if !strings.HasPrefix(incident.ID, "ERR-") {
		t.Fatalf("expected ERR- fallback id, got %q", incident.ID)
	}
	if incident.Status != models.StatusError {
		t.Fatalf("expected ERROR status, got %s", incident.Status)
	}
}

func TestClassifyPermanentFailureSkipsRetry(t *testing.T) {
	backend := &scriptedBackend{errs: []error{&BackendError{Kind: FailurePermanent, Status: 400}}}

	incident := newTestClient(backend).Classify(context.Background(), "bad request", false)

	if backend.calls != 1 {
		t.Fatalf("permanent failure must not retry, got %d calls", backend.calls)
	}
	if incident.Status != models.StatusError {
		t.Fatalf("expected ERROR status, got %s", incident.Status)
	}
}

func TestClassifyRetriesUnclassifiedThenSucceeds(t *testing.T) {
	backend := &scriptedBackend{
		errs: []error{&BackendError{Kind: FailureUnclassified}, nil},
		results: []InferenceResult{
			{}, // consumed by the scripted error slot
			payload(`{"summary":"ok","type":"POLICE","severity":"MAJOR","priority_score":6,"coords":{"lat":1,"lng":2}}`),
		},
	}

	incident := newTestClient(backend).Classify(context.Background(), "flaky network", false)

	if backend.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", backend.calls)
	}
	if incident.Type != models.TypePolice {
		t.Fatalf("expected recovered classification, got %+v", incident)
	}
}

func TestClassifyMalformedPayloadRetries(t *testing.T) {
	backend := &scriptedBackend{results: []InferenceResult{
		payload(`not json at all`),
		payload(`{"summary":"ok","type":"TRAFFIC","severity":"MINOR","priority_score":2,"coords":{"lat":1,"lng":2}}`),
	}}

	incident := newTestClient(backend).Classify(context.Background(), "garbled first response", false)

	if backend.calls != 2 {
		t.Fatalf("expected parse failure to retry, got %d calls", backend.calls)
	}
	if incident.Type != models.TypeTraffic {
		t.Fatalf("unexpected result: %+v", incident)
	}
}

func TestClassifyGroundingCitations(t *testing.T) {
	backend := &scriptedBackend{results: []InferenceResult{{
		Payload: []byte(`{"summary":"s","type":"UTILITY","severity":"MINOR","priority_score":3,"coords":{"lat":1,"lng":2}}`),
		Citations: []Citation{
			{Title: "City outage map", URI: "https://example.com/outages"},
			{Title: "", URI: "https://example.com/untitled"},
		},
	}}}

	incident := newTestClient(backend).Classify(context.Background(), "power flickering downtown", true)

	if len(incident.GroundingSources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(incident.GroundingSources))
	}
	if incident.GroundingSources[0].Title != "City outage map" {
		t.Fatalf("unexpected title %q", incident.GroundingSources[0].Title)
	}
	if incident.GroundingSources[1].Title != "Grounding source" {
		t.Fatalf("expected generic title fallback, got %q", incident.GroundingSources[1].Title)
	}
}

func TestClassifyNilBackendFallsBack(t *testing.T) {
	incident := NewClient(nil, nil).Classify(context.Background(), "no backend wired", false)

	if !strings.HasPrefix(incident.ID, "ERR-") || incident.Status != models.StatusError {
		t.Fatalf("expected fallback incident, got %+v", incident)
	}
}

func TestCheckHealth(t *testing.T) {
	if !NewClient(nil, &scriptedBackend{}).CheckHealth(context.Background()) {
		t.Fatalf("expected healthy backend")
	}
	down := &scriptedBackend{probeErr: &BackendError{Kind: FailureUnclassified}}
	if NewClient(nil, down).CheckHealth(context.Background()) {
		t.Fatalf("expected unhealthy backend")
	}
}

func TestExtractSources(t *testing.T) {
	citations := extractSources([]byte(`{"summary":"s","sources":[{"title":"a","uri":"u"},{"title":"b","uri":""}]}`))
	if len(citations) != 1 || citations[0].URI != "u" {
		t.Fatalf("unexpected citations: %+v", citations)
	}
}
