// Package llm is a minimal client for the OpenAI responses endpoint.
// Every call carries a strict JSON schema for the output and shares a
// per-run request budget with the rest of the pipeline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the production responses endpoint.
const DefaultBaseURL = "https://api.openai.com/v1/responses"

// Errors classifying call failures.
var (
	// ErrBudgetExhausted means the run's LLM request budget is spent.
	ErrBudgetExhausted = errors.New("llm request budget exhausted")
	// ErrRateLimit wraps HTTP 429 responses.
	ErrRateLimit = errors.New("rate_limit")
)

// RetryableError marks failures worth retrying: timeouts, transient
// network errors, HTTP 5xx and 429.
type RetryableError struct{ Err error }

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Budget is the single counter consulted before each LLM call in a
// run, shared between scoring and summarization.
type Budget struct {
	mu   sync.Mutex
	left int
}

// NewBudget returns a budget allowing max requests.
func NewBudget(max int) *Budget {
	return &Budget{left: max}
}

// Take consumes one request from the budget if any remain.
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.left <= 0 {
		return false
	}
	b.left--
	return true
}

// Remaining returns the number of requests left.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.left
}

// Client calls the responses endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string

	httpClient *http.Client
}

// New returns a client for the given model and key.
func New(apiKey, model string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		APIKey:     apiKey,
		Model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Message is one input message.
type Message struct {
	Role string
	Text string
}

type requestBody struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Text  *textFormat    `json:"text,omitempty"`
}

type inputMessage struct {
	Role    string      `json:"role"`
	Content []inputPart `json:"content"`
}

type inputPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type textFormat struct {
	Format formatSpec `json:"format"`
}

type formatSpec struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type responseBody struct {
	Output []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	OutputText string `json:"output_text"`
}

// CallJSON sends the messages constrained to schema and unmarshals
// the model's JSON output into out. Non-JSON output is a fatal error.
func (c *Client) CallJSON(ctx context.Context, messages []Message, schemaName string, schema json.RawMessage, out any) error {
	body := requestBody{Model: c.Model}
	for _, m := range messages {
		body.Input = append(body.Input, inputMessage{
			Role:    m.Role,
			Content: []inputPart{{Type: "input_text", Text: m.Text}},
		})
	}
	body.Text = &textFormat{Format: formatSpec{
		Type:   "json_schema",
		Name:   schemaName,
		Schema: schema,
		Strict: true,
	}}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Err: fmt.Errorf("llm request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{Err: fmt.Errorf("llm: %w", ErrRateLimit)}
	case resp.StatusCode >= 500:
		return &RetryableError{Err: fmt.Errorf("llm HTTP %d", resp.StatusCode)}
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("llm HTTP %d: %s", resp.StatusCode, string(b))
	}

	var rb responseBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return fmt.Errorf("decoding llm response: %w", err)
	}
	text := extractJSONText(rb)
	if text == "" {
		return fmt.Errorf("llm response has no JSON output")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("llm output is not valid JSON: %w", err)
	}
	return nil
}

// extractJSONText scans output[*].content[*] for the first
// output_text part holding a JSON value, falling back to the
// top-level output_text field.
func extractJSONText(rb responseBody) string {
	for _, o := range rb.Output {
		for _, c := range o.Content {
			if c.Type != "output_text" {
				continue
			}
			if looksLikeJSON(c.Text) {
				return c.Text
			}
		}
	}
	if looksLikeJSON(rb.OutputText) {
		return rb.OutputText
	}
	return ""
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}
