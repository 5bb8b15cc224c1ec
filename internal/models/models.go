package models

import (
	"strings"
	"time"
)

// Role identifies who authored a chat message
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system" // Shown in the transcript, never persisted
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBot, RoleSystem:
		return true
	default:
		return false
	}
}

// Persistable reports whether messages with this role are written to storage.
func (r Role) Persistable() bool {
	return r == RoleUser || r == RoleBot
}

type Language string

const (
	LangES Language = "es"
	LangEN Language = "en"
)

func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LangES:
		return LangES, true
	case LangEN:
		return LangEN, true
	default:
		return "", false
	}
}

const (
	DefaultTitle  = "New chat"
	TitleMaxRunes = 30

	DefaultModel = "gemini-2.0-flash-exp"
	CustomModel  = "custom" // Selects Config.CustomModelID
)

type ChatMessage struct {
	Seq       int64
	Role      Role
	Content   string
	Timestamp time.Time
}

type ChatSession struct {
	ID        string
	Title     string
	Messages  []ChatMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s ChatSession) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the user has not written anything in the session yet.
func (s ChatSession) IsEmpty() bool {
	return s.UserMessageCount() == 0
}

type ChatSummary struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UserMessages int
}

func (s ChatSummary) IsEmpty() bool {
	return s.UserMessages == 0
}

// Config holds the user-adjustable settings
type Config struct {
	APIKey        string
	Model         string
	CustomModelID string
	UseThinking   bool
	UseTTS        bool
	Language      Language
	VoiceID       string
}

func DefaultConfig() Config {
	return Config{
		Model:    DefaultModel,
		UseTTS:   true,
		Language: LangES,
	}
}

func (c Config) HasCredential() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// EffectiveModel resolves the "custom" selection to the custom model id.
func (c Config) EffectiveModel() string {
	if c.Model == CustomModel {
		return strings.TrimSpace(c.CustomModelID)
	}
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

type AIModel struct {
	ID               string
	Name             string
	Provider         string
	Description      string
	InputTokenLimit  int
	OutputTokenLimit int
}

// DeriveTitle builds a chat title from the first user message.
func DeriveTitle(firstUserMessage string) string {
	s := strings.Join(strings.Fields(firstUserMessage), " ")
	if s == "" {
		return DefaultTitle
	}
	r := []rune(s)
	if len(r) > TitleMaxRunes {
		return string(r[:TitleMaxRunes]) + "..."
	}
	return s
}
