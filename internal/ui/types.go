package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"murmur/internal/models"
	"murmur/internal/session"
)

const (
	MaxChatWidth = 100

	ChatListPageSize = 10
)

var ModalWidth = 60

type modal int

const (
	modalNone modal = iota
	modalChats
	modalModels
	modalShortcuts
	modalConfirm
)

// Orchestrator is the session API the UI drives.
type Orchestrator interface {
	Restore() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	Snapshot() session.View
	CreateChat(userInitiated bool) error
	SwitchChat(id string) error
	DeleteChat(id string) tea.Cmd
	DeleteAllChats() tea.Cmd
	SendMessage(text string) tea.Cmd
	Rename(title string) error
	ToggleListening()
	PauseSpeech()
	ResumeSpeech()
	StopSpeech()
	ApplySetting(name, value string) error
	RefreshModels() tea.Cmd
	Models() []models.AIModel
	ClearNotice()
}

type Model struct {
	Orch     Orchestrator
	Viewport viewport.Model
	Input    textarea.Model
	Spinner  spinner.Model
	Renderer *glamour.TermRenderer

	WindowWidth  int
	WindowHeight int

	Modal         modal
	ChatIdx       int
	ChatPage      int
	ModelIdx      int
	ModelViewport viewport.Model
	Confirm       *confirmRequestMsg
	ConfirmYes    bool
	ShowThinking  bool
	Status        string // UI-local error line

	view     session.View
	rendered map[string]string
}
