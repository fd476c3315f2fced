package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *OpenAIEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
	})
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder() error = %v", err)
	}
	return e
}

func TestOpenAIEmbed(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Input) != 1 || req.Input[0] != "hello" {
			t.Errorf("Input = %v, want [hello]", req.Input)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0},
			},
		})
	})

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("Embed() length = %d, want 3", len(vec))
	}
}

func TestOpenAIEmbedBatchOrdering(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		// Respond out of order; the client must restore input order.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{2}, "index": 1},
				{"embedding": []float32{1}, "index": 0},
			},
		})
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("EmbedBatch() length = %d, want 2", len(vecs))
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("EmbedBatch() order = [%v, %v], want input order restored", vecs[0][0], vecs[1][0])
	}
}

func TestOpenAIEmbedAPIError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	})

	_, err := e.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("Embed() expected error")
	}
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Embed() error type = %T, want *ProviderError", err)
	}
	if provErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", provErr.StatusCode)
	}
}

func TestOpenAIEmbedEmptyResponse(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	})

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 0 {
		t.Errorf("Embed() = %v, want empty vector without error", vec)
	}
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIConfig{}); err == nil {
		t.Fatal("NewOpenAIEmbedder() expected error for missing API key")
	}
}
