package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New("test-key", "test-model")
	c.BaseURL = srv.URL
	return c
}

func respond(t *testing.T, w http.ResponseWriter, outputText string) {
	t.Helper()
	resp := map[string]any{
		"output": []map[string]any{
			{"content": []map[string]any{{"type": "output_text", "text": outputText}}},
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Fatalf("encoding response: %v", err)
	}
}

func TestCallJSONRoundTrip(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if body["model"] != "test-model" {
			t.Errorf("model = %v", body["model"])
		}
		if body["text"] == nil {
			t.Errorf("request carries no output schema")
		}
		respond(t, w, `{"answer": 42}`)
	})

	var out struct {
		Answer int `json:"answer"`
	}
	schema := json.RawMessage(`{"type":"object"}`)
	err := c.CallJSON(context.Background(), []Message{{Role: "user", Text: "hi"}}, "test", schema, &out)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out.Answer != 42 {
		t.Errorf("answer = %d", out.Answer)
	}
}

func TestCallJSONTopLevelOutputText(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output_text": `{"ok": true}`})
	})
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.CallJSON(context.Background(), nil, "t", json.RawMessage(`{}`), &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if !out.OK {
		t.Errorf("fallback output_text not used")
	}
}

func TestCallJSONRateLimitIsRetryable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	err := c.CallJSON(context.Background(), nil, "t", json.RawMessage(`{}`), &struct{}{})
	if !IsRetryable(err) {
		t.Errorf("429 should be retryable, got %v", err)
	}
	if !errors.Is(err, ErrRateLimit) {
		t.Errorf("429 should wrap ErrRateLimit, got %v", err)
	}
}

func TestCallJSONServerErrorIsRetryable(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	err := c.CallJSON(context.Background(), nil, "t", json.RawMessage(`{}`), &struct{}{})
	if !IsRetryable(err) {
		t.Errorf("5xx should be retryable, got %v", err)
	}
}

func TestCallJSONClientErrorIsFatal(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	err := c.CallJSON(context.Background(), nil, "t", json.RawMessage(`{}`), &struct{}{})
	if err == nil || IsRetryable(err) {
		t.Errorf("4xx should be a fatal error, got %v", err)
	}
}

func TestCallJSONNonJSONOutput(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, "sorry, plain prose")
	})
	err := c.CallJSON(context.Background(), nil, "t", json.RawMessage(`{}`), &struct{}{})
	if err == nil {
		t.Errorf("non-JSON output should fail")
	}
	if IsRetryable(err) {
		t.Errorf("non-JSON output is fatal, not retryable")
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(2)
	if !b.Take() || !b.Take() {
		t.Fatalf("first two takes should succeed")
	}
	if b.Take() {
		t.Errorf("third take should fail")
	}
	if b.Remaining() != 0 {
		t.Errorf("remaining = %d", b.Remaining())
	}
}
