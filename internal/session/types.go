// Package session coordinates chats, the model gateway and speech I/O.
//
// The Orchestrator is driven by the bubbletea loop: its methods mutate state
// synchronously and hand blocking work back as tea.Cmds whose results come
// back through Update.
package session

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"murmur/internal/models"
	"murmur/internal/speech"
)

var (
	ErrEmptyChatExists = errors.New("an empty chat is already active")
	ErrNoActiveChat    = errors.New("no active chat")
	ErrUnknownSetting  = errors.New("unknown setting")
	ErrUnknownVoice    = errors.New("voice not in catalogue")
)

// State is either NoActiveChat or ActiveChat(id).
type State struct {
	id string
}

func NoActiveChat() State { return State{} }

func ActiveChat(id string) State { return State{id: id} }

// Active returns the active chat id, if any.
func (s State) Active() (string, bool) {
	return s.id, s.id != ""
}

type EntryKind int

const (
	EntryMessage EntryKind = iota
	EntryLoading
	EntrySystem
)

// Entry is one row of the transcript. Loading entries are keyed by the id of
// the generation call they wait for.
type Entry struct {
	Key     string
	Kind    EntryKind
	Seq     int64
	Message models.ChatMessage
}

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarn
	NoticeError
)

type Notice struct {
	Text  string
	Level NoticeLevel
	// OpenSettings asks the view to point the user at the settings commands.
	OpenSettings bool
}

type Decision int

const (
	Cancelled Decision = iota
	Confirmed
)

type Prompt struct {
	Text string
}

// Confirmer asks the user to confirm a destructive action. Confirm blocks
// until the user decides or ctx is done.
type Confirmer interface {
	Confirm(ctx context.Context, p Prompt) (Decision, error)
}

// Speaker is the speech output the orchestrator drives.
type Speaker interface {
	Speak(text string) tea.Cmd
	Pause()
	Resume()
	Stop()
	State() speech.OutputState
	Voices() []speech.Voice
	LoadVoices() tea.Cmd
	Subscribe(fn func(speech.OutputEvent))
	Update(msg tea.Msg) tea.Cmd
}

// Listener is the speech input the orchestrator drives.
type Listener interface {
	Toggle(lang string) error
	Stop()
	Listening() bool
	Interim() string
	Update(msg tea.Msg) tea.Cmd
}

// GenerationResult settles the generation call CallID.
type GenerationResult struct {
	CallID string
	Reply  string
	Err    error
}

type pendingCall struct {
	chatID string
	seq    int64
}

type deleteRequest struct {
	id  string
	all bool
}

type deleteDecisionMsg struct {
	req      deleteRequest
	decision Decision
	err      error
}

type modelsLoadedMsg struct {
	models []models.AIModel
	err    error
}

// ChatItem is a chat list row.
type ChatItem struct {
	models.ChatSummary
	Active bool
}

// View is what the UI needs to render one frame.
type View struct {
	State       State
	Entries     []Entry
	Chats       []ChatItem
	Output      speech.OutputState
	Listening   bool
	Interim     string
	Notice      Notice
	Confirm     *Prompt
	ModelStatus string
	Config      models.Config
	InFlight    int
}
