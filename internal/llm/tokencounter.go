package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// TokenCountError reports a failed token-count estimate. History assembly
// cannot proceed without one; there is no fallback estimator.
type TokenCountError struct {
	Err error
}

func (e *TokenCountError) Error() string { return fmt.Sprintf("token count: %v", e.Err) }
func (e *TokenCountError) Unwrap() error { return e.Err }

// TokenCounterClient estimates the model-token cost of a serialized prompt
// via the /token_counter endpoint of the LLM service.
type TokenCounterClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewTokenCounterClient(baseURL string, logger *zap.Logger) *TokenCounterClient {
	return &TokenCounterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

type tokenCountRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

type tokenCountResponse struct {
	Tokens int `json:"tokens"`
}

func (c *TokenCounterClient) Count(ctx context.Context, text, model string) (int, error) {
	payload, err := json.Marshal(tokenCountRequest{Text: text, Model: model})
	if err != nil {
		return 0, &TokenCountError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/token_counter", bytes.NewReader(payload))
	if err != nil {
		return 0, &TokenCountError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, &TokenCountError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &TokenCountError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &TokenCountError{Err: fmt.Errorf("read response: %w", err)}
	}

	var out tokenCountResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, &TokenCountError{Err: fmt.Errorf("parse response: %w", err)}
	}
	return out.Tokens, nil
}
