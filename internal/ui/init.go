package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/internal/i18n"
	"murmur/internal/styles"
)

func InitialModel(orch Orchestrator) Model {
	styles.InitTheme()

	ti := textarea.New()
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = 6
	ti.SetHeight(2)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB")).Bold(true)
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#B39DDB"))

	m := Model{
		Orch:          orch,
		Input:         ti,
		Viewport:      viewport.New(60, 15),
		ModelViewport: viewport.New(ModalWidth-4, 15),
		Spinner:       sp,
		rendered:      map[string]string{},
	}
	m.view = orch.Snapshot()
	m.Input.Placeholder = i18n.T(m.view.Config.Language, i18n.TypeMessage)
	return m
}

func (m *Model) Init() tea.Cmd {
	cmd := m.Orch.Restore()
	m.refresh()
	return tea.Batch(
		textarea.Blink,
		m.Spinner.Tick,
		cmd,
	)
}

func NewProgram(orch Orchestrator) *tea.Program {
	m := InitialModel(orch)
	return tea.NewProgram(&m, tea.WithAltScreen())
}
