// Package config holds the user-adjustable settings and the process environment.
package config

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"murmur/internal/models"
)

// Keys under which settings are stored. Each value is JSON encoded.
const (
	keyAPIKey        = "gemini_api_key"
	keyModel         = "gemini_model"
	keyCustomModelID = "gemini_custom_model"
	keyUseThinking   = "gemini_thinking"
	keyUseTTS        = "gemini_tts"
	keyLanguage      = "gemini_lang"
	keyVoiceID       = "gemini_voice"
)

// Store keeps the configuration in memory and writes every change through to
// the settings table before returning.
type Store struct {
	db  *sql.DB
	cfg models.Config
}

// NewStore loads the settings from db. Missing or unreadable values fall back
// to their defaults.
func NewStore(db *sql.DB) *Store {
	s := &Store{db: db, cfg: models.DefaultConfig()}
	s.load()
	return s
}

func (s *Store) Get() models.Config {
	return s.cfg
}

// SeedAPIKey sets an in-memory credential when none is stored. It is not
// persisted.
func (s *Store) SeedAPIKey(key string) {
	key = strings.TrimSpace(key)
	if key != "" && !s.cfg.HasCredential() {
		s.cfg.APIKey = key
	}
}

func (s *Store) SetAPIKey(key string) error {
	key = strings.TrimSpace(key)
	return s.set(keyAPIKey, key, func(c *models.Config) { c.APIKey = key })
}

func (s *Store) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		model = models.DefaultModel
	}
	return s.set(keyModel, model, func(c *models.Config) { c.Model = model })
}

func (s *Store) SetCustomModelID(id string) error {
	id = strings.TrimSpace(id)
	return s.set(keyCustomModelID, id, func(c *models.Config) { c.CustomModelID = id })
}

func (s *Store) SetUseThinking(on bool) error {
	return s.set(keyUseThinking, on, func(c *models.Config) { c.UseThinking = on })
}

func (s *Store) SetUseTTS(on bool) error {
	return s.set(keyUseTTS, on, func(c *models.Config) { c.UseTTS = on })
}

func (s *Store) SetLanguage(lang models.Language) error {
	if _, ok := models.ParseLanguage(string(lang)); !ok {
		return fmt.Errorf("unsupported language %q", lang)
	}
	return s.set(keyLanguage, string(lang), func(c *models.Config) { c.Language = lang })
}

// SetVoiceID stores the preferred speech voice. An empty id means "pick one".
func (s *Store) SetVoiceID(id string) error {
	id = strings.TrimSpace(id)
	return s.set(keyVoiceID, id, func(c *models.Config) { c.VoiceID = id })
}

// set writes v under key and applies fn to the in-memory config only once the
// write has succeeded.
func (s *Store) set(key string, v any, fn func(*models.Config)) error {
	if err := s.put(key, v); err != nil {
		return err
	}
	fn(&s.cfg)
	return nil
}

func (s *Store) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT INTO settings(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) load() {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		slog.Warn("reading settings failed, using defaults", "error", err)
		return
	}
	defer rows.Close()

	raw := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			slog.Warn("skipping unreadable setting", "error", err)
			continue
		}
		raw[k] = v
	}

	decode(raw, keyAPIKey, &s.cfg.APIKey)
	decode(raw, keyModel, &s.cfg.Model)
	decode(raw, keyCustomModelID, &s.cfg.CustomModelID)
	decode(raw, keyUseThinking, &s.cfg.UseThinking)
	decode(raw, keyUseTTS, &s.cfg.UseTTS)
	decode(raw, keyVoiceID, &s.cfg.VoiceID)

	var lang string
	if decode(raw, keyLanguage, &lang) {
		if l, ok := models.ParseLanguage(lang); ok {
			s.cfg.Language = l
		} else {
			slog.Warn("ignoring unknown language setting", "value", lang)
		}
	}
	if s.cfg.Model == "" {
		s.cfg.Model = models.DefaultModel
	}
}

// decode unmarshals raw[key] into dst. dst keeps its default on any failure.
func decode[T any](raw map[string]string, key string, dst *T) bool {
	v, ok := raw[key]
	if !ok {
		return false
	}
	var out T
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			slog.Warn("setting is not valid JSON, using default", "key", key)
		} else {
			slog.Warn("setting has unexpected type, using default", "key", key, "error", err)
		}
		return false
	}
	*dst = out
	return true
}
