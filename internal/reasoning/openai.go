package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// chatCompleter is the slice of *openai.Client the engine needs; tests
// substitute a scripted fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// RetryConfig bounds the backoff loop for transient upstream failures.
type RetryConfig struct {
	Attempts     int
	InitialDelay time.Duration
}

// OpenAIEngine calls the OpenAI chat completion API with bounded
// exponential backoff on rate-limit and server-side failures.
type OpenAIEngine struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float64
	retry       RetryConfig
	logger      *zap.Logger
}

func NewOpenAIEngine(apiKey, model string, maxTokens int, temperature float64, retry RetryConfig, logger *zap.Logger) *OpenAIEngine {
	if retry.Attempts <= 0 {
		retry.Attempts = 5
	}
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = time.Second
	}
	return &OpenAIEngine{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		retry:       retry,
		logger:      logger,
	}
}

func (e *OpenAIEngine) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       e.model,
		Messages:    toChatMessages(req.Messages),
		MaxTokens:   e.maxTokens,
		Temperature: float32(e.temperature),
	}
	for _, tool := range req.Tools {
		params, err := json.Marshal(tool.Parameters)
		if err != nil {
			return CompletionResponse{}, fmt.Errorf("error encoding tool parameters: %v", err)
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}

	var lastErr error
	delay := e.retry.InitialDelay
	for attempt := 1; attempt <= e.retry.Attempts; attempt++ {
		resp, err := e.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			return fromChatResponse(resp), nil
		}
		lastErr = err

		if !isRetryable(err) {
			return CompletionResponse{}, fmt.Errorf("completion failed: %w", err)
		}
		if attempt == e.retry.Attempts {
			break
		}

		e.logger.Warn("Transient completion failure, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return CompletionResponse{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return CompletionResponse{}, fmt.Errorf("completion failed after %d attempts: %w", e.retry.Attempts, lastErr)
}

// isRetryable reports whether the failure is transient: rate limiting or
// server-side unavailability.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 503, 504:
			return true
		}
		return false
	}
	// Transport-level failures have no status; treat them as transient.
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func fromChatResponse(resp openai.ChatCompletionResponse) CompletionResponse {
	if len(resp.Choices) == 0 {
		// Malformed upstream payload; the router turns this into a
		// fallback reply, never an error.
		return CompletionResponse{}
	}

	choice := resp.Choices[0]
	out := CompletionResponse{
		Message: Message{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		},
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
