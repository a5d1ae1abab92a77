package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"dama-exam/internal/domain"
)

// Judge sends one evaluation instruction to an external model and
// returns the raw structured content plus token usage.
type Judge interface {
	Evaluate(ctx context.Context, req Request) (Response, error)
}

// Request carries per-call provider settings; the judge endpoint is
// admin-configured at runtime, so nothing is baked into the client.
type Request struct {
	Model       string
	Token       string
	BaseURL     string
	Temperature float64
	Instruction string
}

type Response struct {
	Content string
	Usage   domain.TokenUsage
}

// OpenAIJudge talks to any OpenAI-compatible chat completions endpoint.
type OpenAIJudge struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewOpenAIJudge(timeout time.Duration, logger *zap.Logger) *OpenAIJudge {
	if timeout <= 0 {
		timeout = 360 * time.Second
	}
	return &OpenAIJudge{timeout: timeout, logger: logger}
}

func (j *OpenAIJudge) Evaluate(ctx context.Context, req Request) (Response, error) {
	cfg := openai.DefaultConfig(req.Token)
	if req.BaseURL != "" {
		cfg.BaseURL = req.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: j.timeout}
	client := openai.NewClientWithConfig(cfg)

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Instruction},
		},
		Temperature: float32(req.Temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		if j.logger != nil {
			j.logger.Warn("judge call failed", zap.String("model", req.Model), zap.Error(err))
		}
		return Response{}, fmt.Errorf("judge completion: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Response{}, fmt.Errorf("judge empty response")
	}

	return Response{
		Content: resp.Choices[0].Message.Content,
		Usage: domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
