package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/format37/panthera/internal/models"
)

// CompletionError reports a failed chat-completion call: transport failure,
// non-success status, or a reply missing the expected field. Single attempt,
// no retries; the boundary decides how to present it to the user.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return fmt.Sprintf("completion: %v", e.Err) }
func (e *CompletionError) Unwrap() error { return e.Err }

// CompletionClient wraps the chat-completion endpoint of the LLM service.
type CompletionClient struct {
	client      *openai.Client
	temperature float64
	logger      *zap.Logger
}

// NewCompletionClient builds a client for the OpenAI API or any compatible
// endpoint when baseURL is non-empty.
func NewCompletionClient(apiKey, baseURL string, temperature float64, logger *zap.Logger) *CompletionClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &CompletionClient{
		client:      openai.NewClientWithConfig(cfg),
		temperature: temperature,
		logger:      logger,
	}
}

// Complete sends the assembled prompt and returns the model's single reply.
func (c *CompletionClient) Complete(ctx context.Context, model string, turns []models.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    t.Role,
			Content: t.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(c.temperature),
	})
	if err != nil {
		return "", &CompletionError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Err: errors.New("response has no choices")}
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	return stripAssistantPrefix(reply), nil
}

// The model is instructed to prefix its turns with its persona name; drop
// the echo before handing the reply back.
func stripAssistantPrefix(text string) string {
	for _, prefix := range []string{"assistant: ", "Assistant: "} {
		text = strings.TrimPrefix(text, prefix)
	}
	return text
}
