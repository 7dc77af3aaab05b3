package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestTokenCounterCount(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token_counter" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req tokenCountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != `[{"role":"user","content":"hi"}]` || req.Model != "gpt-4-0125-preview" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(tokenCountResponse{Tokens: 42})
	}))
	defer ts.Close()

	c := NewTokenCounterClient(ts.URL, zap.NewNop())
	tokens, err := c.Count(context.Background(), `[{"role":"user","content":"hi"}]`, "gpt-4-0125-preview")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if tokens != 42 {
		t.Errorf("expected 42 tokens, got %d", tokens)
	}
}

func TestTokenCounterServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewTokenCounterClient(ts.URL, zap.NewNop())
	_, err := c.Count(context.Background(), "[]", "gpt-4-0125-preview")

	var tcErr *TokenCountError
	if !errors.As(err, &tcErr) {
		t.Fatalf("expected TokenCountError, got %v", err)
	}
}

func TestTokenCounterMalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer ts.Close()

	c := NewTokenCounterClient(ts.URL, zap.NewNop())
	_, err := c.Count(context.Background(), "[]", "gpt-4-0125-preview")

	var tcErr *TokenCountError
	if !errors.As(err, &tcErr) {
		t.Fatalf("expected TokenCountError, got %v", err)
	}
}

func TestTokenCounterUnreachable(t *testing.T) {
	c := NewTokenCounterClient("http://127.0.0.1:1", zap.NewNop())
	_, err := c.Count(context.Background(), "[]", "gpt-4-0125-preview")

	var tcErr *TokenCountError
	if !errors.As(err, &tcErr) {
		t.Fatalf("expected TokenCountError, got %v", err)
	}
}
