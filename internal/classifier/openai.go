package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sentinelops/sentinel-pipeline/internal/config"
)

const systemInstruction = "You are an incident classification engine for an emergency operations dashboard. " +
	"Classify the user's free-text incident report. Respond with only the required structured fields; " +
	"do not add commentary, markdown, or fields outside the schema."

const groundingInstruction = " Use real-time knowledge of the service region where relevant and report the " +
	"sources you relied on in the sources array, each with a title and uri. Leave sources empty when none were used."

// classificationSchema is the strict output contract sent with every request.
const classificationSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "Single-sentence incident summary"},
    "type": {"type": "string", "enum": ["FIRE", "MEDICAL", "POLICE", "TRAFFIC", "UTILITY", "OTHER"]},
    "severity": {"type": "string", "enum": ["CRITICAL", "MAJOR", "MINOR"]},
    "priority_score": {"type": "number", "description": "Dispatch priority from 1 to 10"},
    "coords": {
      "type": "object",
      "properties": {
        "lat": {"type": "number"},
        "lng": {"type": "number"}
      },
      "required": ["lat", "lng"],
      "additionalProperties": false
    }
  },
  "required": ["summary", "type", "severity", "priority_score", "coords"],
  "additionalProperties": false
}`

// groundedClassificationSchema extends the contract with a citations array the
// adapter strips back out of the payload as grounding metadata.
const groundedClassificationSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "Single-sentence incident summary"},
    "type": {"type": "string", "enum": ["FIRE", "MEDICAL", "POLICE", "TRAFFIC", "UTILITY", "OTHER"]},
    "severity": {"type": "string", "enum": ["CRITICAL", "MAJOR", "MINOR"]},
    "priority_score": {"type": "number", "description": "Dispatch priority from 1 to 10"},
    "coords": {
      "type": "object",
      "properties": {
        "lat": {"type": "number"},
        "lng": {"type": "number"}
      },
      "required": ["lat", "lng"],
      "additionalProperties": false
    },
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "uri": {"type": "string"}
        },
        "required": ["title", "uri"],
        "additionalProperties": false
      }
    }
  },
  "required": ["summary", "type", "severity", "priority_score", "coords", "sources"],
  "additionalProperties": false
}`

// OpenAIBackend implements Backend against any OpenAI-compatible
// chat-completions endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend constructs the adapter from inference configuration.
func NewOpenAIBackend(cfg config.InferenceConfig) *OpenAIBackend {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

// Generate performs one structured-inference call. All failures come back as
// *BackendError so the client can apply its retry taxonomy.
func (b *OpenAIBackend) Generate(ctx context.Context, req InferenceRequest) (InferenceResult, error) {
	instruction := systemInstruction
	schema := classificationSchema
	if req.Grounding {
		instruction += groundingInstruction
		schema = groundedClassificationSchema
	}

	completion, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: req.Text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "incident_classification",
				Schema: json.RawMessage(schema),
				Strict: true,
			},
		},
	})
	if err != nil {
		return InferenceResult{}, mapBackendError(err)
	}
	if len(completion.Choices) == 0 {
		return InferenceResult{}, &BackendError{Kind: FailureUnclassified, Err: errors.New("completion contained no choices")}
	}

	payload := []byte(completion.Choices[0].Message.Content)
	result := InferenceResult{Payload: payload}
	if req.Grounding {
		result.Citations = extractSources(payload)
	}
	return result, nil
}

// Probe lists models as a minimal reachability check.
func (b *OpenAIBackend) Probe(ctx context.Context) error {
	if _, err := b.client.ListModels(ctx); err != nil {
		return mapBackendError(err)
	}
	return nil
}

func extractSources(payload []byte) []Citation {
	var wrapper struct {
		Sources []struct {
			Title string `json:"title"`
			URI   string `json:"uri"`
		} `json:"sources"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil
	}
	citations := make([]Citation, 0, len(wrapper.Sources))
	for _, s := range wrapper.Sources {
		if s.URI == "" {
			continue
		}
		citations = append(citations, Citation{Title: s.Title, URI: s.URI})
	}
	return citations
}

func mapBackendError(err error) *BackendError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}
	// Transport-level failures carry no status signal.
	return &BackendError{Kind: FailureUnclassified, Err: err}
}

func classifyStatus(status int, err error) *BackendError {
	switch {
	case status == http.StatusTooManyRequests:
		return &BackendError{Kind: FailureRateLimited, Status: status, Err: err}
	case status == 0:
		return &BackendError{Kind: FailureUnclassified, Err: err}
	default:
		return &BackendError{Kind: FailurePermanent, Status: status, Err: fmt.Errorf("non-retryable response: %w", err)}
	}
}
