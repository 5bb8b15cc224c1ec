// Package gateway talks to the generative-language API.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"murmur/internal/models"
)

// Generation parameters sent with every request. They are not user settings.
const (
	Temperature     = 0.7
	TopK            = 40
	TopP            = 0.95
	MaxOutputTokens = 1024
)

// Credentials supplies the current key and model. The gateway reads it on
// every call so settings changes apply to the next request.
type Credentials interface {
	Get() models.Config
}

type Gateway interface {
	// Generate sends one user turn with the system context and returns the
	// reply text.
	Generate(ctx context.Context, userTurn, systemContext string) (string, error)
	// ListModels returns the models that support single-turn generation.
	ListModels(ctx context.Context) ([]models.AIModel, error)
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// New returns the gateway for provider. An empty baseURL selects the
// provider's public endpoint.
func New(provider, baseURL string, timeout time.Duration, creds Credentials) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderGemini:
		return NewGemini(baseURL, timeout, creds), nil
	case ProviderOpenAI:
		return NewOpenAI(baseURL, timeout, creds), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// credentials validates cfg before a call and resolves the model id.
func credentials(cfg models.Config) (string, error) {
	if !cfg.HasCredential() {
		return "", ErrConfigurationMissing
	}
	model := cfg.EffectiveModel()
	if model == "" {
		return "", fmt.Errorf("%w: custom model id is empty", ErrConfigurationMissing)
	}
	return model, nil
}
