package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// WebhookSink POSTs events to a remote collector. Every notification runs on
// its own goroutine with a context detached from the caller, so an in-flight
// submission is never blocked or cancelled by sink delivery.
type WebhookSink struct {
	logger     *slog.Logger
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWebhookSink constructs a sink targeting the given endpoint.
func NewWebhookSink(logger *slog.Logger, endpoint string, timeout time.Duration) *WebhookSink {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		logger:   logger,
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type webhookEnvelope struct {
	Event   string    `json:"event"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
	Context string    `json:"context,omitempty"`
}

// Notify dispatches the event without blocking the caller.
func (s *WebhookSink) Notify(ctx context.Context, event string, payload any) {
	s.dispatch(ctx, webhookEnvelope{Event: event, At: time.Now().UTC(), Payload: payload})
}

// NotifyError dispatches a captured failure without blocking the caller.
func (s *WebhookSink) NotifyError(ctx context.Context, err error, errContext string) {
	envelope := webhookEnvelope{Event: "pipeline_error", At: time.Now().UTC(), Context: errContext}
	if err != nil {
		envelope.Error = err.Error()
	}
	s.dispatch(ctx, envelope)
}

func (s *WebhookSink) dispatch(ctx context.Context, envelope webhookEnvelope) {
	if s.endpoint == "" {
		return
	}
	// Detach from the caller so delivery survives the request that spawned it.
	detached := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		if err := s.postJSON(sendCtx, envelope); err != nil {
			s.logger.Warn("sink delivery failed",
				slog.String("event", envelope.Event),
				slog.Any("error", err))
		}
	}()
}

func (s *WebhookSink) postJSON(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}
