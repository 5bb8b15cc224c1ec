package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/models"
)

type staticCreds models.Config

func (c staticCreds) Get() models.Config { return models.Config(c) }

func withKey(key string) staticCreds {
	cfg := models.DefaultConfig()
	cfg.APIKey = key
	return staticCreds(cfg)
}

func TestGeminiGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash-exp:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"¡Hola! ¿En qué puedo ayudarte?"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, time.Second, withKey("secret"))
	reply, err := g.Generate(context.Background(), "Hola", "CONTEXT")
	require.NoError(t, err)
	assert.Equal(t, "¡Hola! ¿En qué puedo ayudarte?", reply)

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	assert.Equal(t, "CONTEXT\n\nUser Question: Hola", parts[0].(map[string]any)["text"])
	assert.Equal(t, map[string]any{
		"temperature":     0.7,
		"topK":            float64(40),
		"topP":            0.95,
		"maxOutputTokens": float64(1024),
	}, got["generationConfig"])
}

func TestGeminiUsesCustomModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-exp-1206:generateContent", r.URL.Path)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	cfg := withKey("secret")
	cfg.Model = models.CustomModel
	cfg.CustomModelID = "gemini-exp-1206"
	_, err := NewGemini(srv.URL, time.Second, cfg).Generate(context.Background(), "q", "c")
	require.NoError(t, err)

	cfg.CustomModelID = ""
	_, err = NewGemini(srv.URL, time.Second, cfg).Generate(context.Background(), "q", "c")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestGeminiHTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"server message", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid."}}`, "API key not valid."},
		{"no message", http.StatusInternalServerError, `<html>oops</html>`, "API request failed"},
		{"empty message", http.StatusForbidden, `{"error":{"message":""}}`, "API request failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewGemini(srv.URL, time.Second, withKey("k")).Generate(context.Background(), "q", "c")
			var herr *HTTPError
			require.ErrorAs(t, err, &herr)
			assert.Equal(t, tc.status, herr.Status)
			assert.Equal(t, tc.message, herr.Message)
		})
	}
}

func TestGeminiMalformedResponse(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"candidates":[]}`,
		`{"candidates":[{"content":{"parts":[]}}]}`,
		`{"candidates":[{"content":{"parts":[{"inlineData":{}}]}}]}`,
		`not json`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := NewGemini(srv.URL, time.Second, withKey("k")).Generate(context.Background(), "q", "c")
		assert.ErrorIs(t, err, ErrMalformedResponse, body)
		srv.Close()
	}
}

func TestGeminiNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGemini(url, time.Second, withKey("k")).Generate(context.Background(), "q", "c")
	var nerr *NetworkError
	assert.ErrorAs(t, err, &nerr)
}

func TestGeminiMissingCredentialSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	g := NewGemini(srv.URL, time.Second, withKey("  "))
	_, err := g.Generate(context.Background(), "test", "c")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	_, err = g.ListModels(context.Background())
	assert.ErrorIs(t, err, ErrConfigurationMissing)
	assert.False(t, called)
}

func TestGeminiListModelsFilters(t *testing.T) {
	pages := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		pages++
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"models":[
				{"name":"models/gemini-2.0-flash","displayName":"Gemini 2.0 Flash","supportedGenerationMethods":["generateContent","countTokens"]},
				{"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]},
				{"name":"models/gemini-embedding-exp","supportedGenerationMethods":["embedContent"]}
			],"nextPageToken":"p2"}`))
			return
		}
		assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		_, _ = w.Write([]byte(`{"models":[
			{"name":"models/gemini-1.5-pro","supportedGenerationMethods":["generateContent"],"inputTokenLimit":2000000},
			{"name":"models/imagen-3.0","supportedGenerationMethods":["predict"]}
		]}`))
	}))
	defer srv.Close()

	list, err := NewGemini(srv.URL, time.Second, withKey("k")).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	require.Len(t, list, 2)
	assert.Equal(t, "gemini-1.5-pro", list[0].ID)
	assert.Equal(t, "gemini-1.5-pro", list[0].Name)
	assert.Equal(t, 2000000, list[0].InputTokenLimit)
	assert.Equal(t, "gemini-2.0-flash", list[1].ID)
	assert.Equal(t, "Gemini 2.0 Flash", list[1].Name)
}

func TestGeminiListModelsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"denied"}}`))
	}))
	defer srv.Close()

	_, err := NewGemini(srv.URL, time.Second, withKey("k")).ListModels(context.Background())
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "denied", herr.Message)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "google/gemini-2.0-flash-exp", req["model"])
		assert.Equal(t, 0.7, req["temperature"])
		assert.Equal(t, 0.95, req["top_p"])
		assert.Equal(t, float64(1024), req["max_tokens"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "user", msgs[1].(map[string]any)["role"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer srv.Close()

	cfg := withKey("secret")
	cfg.Model = "google/gemini-2.0-flash-exp"
	reply, err := NewOpenAI(srv.URL, time.Second, cfg).Generate(context.Background(), "hello", "ctx")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestOpenAIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(srv.URL, time.Second, withKey("k")).Generate(context.Background(), "q", "c")
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusUnauthorized, herr.Status)
	assert.NotEmpty(t, herr.Message)
}

func TestNewSelectsProvider(t *testing.T) {
	g, err := New("", "", 0, withKey("k"))
	require.NoError(t, err)
	assert.IsType(t, &Gemini{}, g)

	g, err = New("OpenAI", "", 0, withKey("k"))
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, g)

	_, err = New("bard", "", 0, withKey("k"))
	assert.Error(t, err)
}
