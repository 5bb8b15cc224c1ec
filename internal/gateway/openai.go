package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"murmur/internal/models"
)

const DefaultOpenAIURL = "https://openrouter.ai/api/v1"

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client openai.Client
	creds  Credentials
}

func NewOpenAI(baseURL string, timeout time.Duration, creds Credentials) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		option.WithHeader("X-Title", "murmur"),
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAI{client: openai.NewClient(opts...), creds: creds}
}

func (o *OpenAI) Generate(ctx context.Context, userTurn, systemContext string) (string, error) {
	cfg := o.creds.Get()
	model, err := credentials(cfg)
	if err != nil {
		return "", err
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemContext),
			openai.UserMessage(userTurn),
		},
		Temperature: openai.Float(Temperature),
		TopP:        openai.Float(TopP),
		MaxTokens:   openai.Int(MaxOutputTokens),
	}, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		slog.Error("chat completion has no choices", "model", model)
		return "", ErrMalformedResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// ListModels returns the gemini family models the endpoint offers.
func (o *OpenAI) ListModels(ctx context.Context) ([]models.AIModel, error) {
	cfg := o.creds.Get()
	if !cfg.HasCredential() {
		return nil, ErrConfigurationMissing
	}

	var out []models.AIModel
	iter := o.client.Models.ListAutoPaging(ctx, option.WithAPIKey(cfg.APIKey))
	for iter.Next() {
		m := iter.Current()
		if !strings.Contains(strings.ToLower(m.ID), "gemini") {
			continue
		}
		out = append(out, models.AIModel{ID: m.ID, Name: m.ID, Provider: m.OwnedBy})
	}
	if err := iter.Err(); err != nil {
		return nil, classify(err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		msg := strings.TrimSpace(apierr.Message)
		if msg == "" {
			msg = genericFailure
		}
		slog.Error("chat completion returned error", "status_code", apierr.StatusCode, "message", msg)
		return &HTTPError{Status: apierr.StatusCode, Message: msg}
	}
	slog.Error("chat completion request failed", "error", err)
	return &NetworkError{Err: err}
}
