package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"murmur/internal/models"
)

const DefaultGeminiURL = "https://generativelanguage.googleapis.com"

// Gemini calls the generativelanguage REST API. The key travels as the "key"
// query parameter.
type Gemini struct {
	client *resty.Client
	creds  Credentials
}

func NewGemini(baseURL string, timeout time.Duration, creds Credentials) *Gemini {
	if baseURL == "" {
		baseURL = DefaultGeminiURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Gemini{client: client, creds: creds}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Generate(ctx context.Context, userTurn, systemContext string) (string, error) {
	cfg := g.creds.Get()
	model, err := credentials(cfg)
	if err != nil {
		return "", err
	}

	body := generateRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: systemContext + "\n\nUser Question: " + userTurn}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     Temperature,
			TopK:            TopK,
			TopP:            TopP,
			MaxOutputTokens: MaxOutputTokens,
		},
	}

	slog.Debug("gemini generate", "model", model, "turn_chars", len(userTurn))
	res, err := g.client.R().
		SetContext(ctx).
		SetPathParam("model", model).
		SetQueryParam("key", cfg.APIKey).
		SetBody(body).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		slog.Error("gemini request failed", "model", model, "error", err)
		return "", &NetworkError{Err: err}
	}
	if !res.IsSuccess() {
		herr := newHTTPError(res.StatusCode(), res.Body())
		slog.Error("gemini returned error", "model", model, "status_code", herr.Status, "message", herr.Message)
		return "", herr
	}

	var parsed generateResponse
	if err := json.Unmarshal(res.Body(), &parsed); err != nil {
		slog.Error("error parsing gemini response", "error", err)
		return "", ErrMalformedResponse
	}
	if len(parsed.Candidates) == 0 ||
		len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].Text == nil {
		slog.Error("gemini response has no text", "body", truncate(res.String(), 500))
		return "", ErrMalformedResponse
	}
	return *parsed.Candidates[0].Content.Parts[0].Text, nil
}

type listModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		Description                string   `json:"description"`
		InputTokenLimit            int      `json:"inputTokenLimit"`
		OutputTokenLimit           int      `json:"outputTokenLimit"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

func (g *Gemini) ListModels(ctx context.Context) ([]models.AIModel, error) {
	cfg := g.creds.Get()
	if !cfg.HasCredential() {
		return nil, ErrConfigurationMissing
	}

	var out []models.AIModel
	pageToken := ""
	for {
		req := g.client.R().
			SetContext(ctx).
			SetQueryParam("key", cfg.APIKey).
			SetQueryParam("pageSize", "1000")
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}
		res, err := req.Get("/v1beta/models")
		if err != nil {
			return nil, &NetworkError{Err: err}
		}
		if !res.IsSuccess() {
			return nil, newHTTPError(res.StatusCode(), res.Body())
		}

		var page listModelsResponse
		if err := json.Unmarshal(res.Body(), &page); err != nil {
			return nil, ErrMalformedResponse
		}
		for _, m := range page.Models {
			if !strings.HasPrefix(m.Name, "models/gemini") ||
				!slices.Contains(m.SupportedGenerationMethods, "generateContent") {
				continue
			}
			id := strings.TrimPrefix(m.Name, "models/")
			name := m.DisplayName
			if name == "" {
				name = id
			}
			out = append(out, models.AIModel{
				ID:               id,
				Name:             name,
				Provider:         "Gemini",
				Description:      m.Description,
				InputTokenLimit:  m.InputTokenLimit,
				OutputTokenLimit: m.OutputTokenLimit,
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
