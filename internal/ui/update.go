package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"murmur/internal/i18n"
	"murmur/internal/session"
	"murmur/internal/speech"
	"murmur/internal/styles"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		if m.view.InFlight > 0 {
			m.UpdateViewport()
		}
		return m, cmd

	case confirmRequestMsg:
		if m.Confirm != nil {
			msg.reply <- session.Cancelled
			return m, nil
		}
		m.Confirm = &msg
		m.ConfirmYes = false
		m.Modal = modalConfirm
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	cmd := m.Orch.Update(msg)
	var tiCmd tea.Cmd
	m.Input, tiCmd = m.Input.Update(msg)
	m.refresh()
	return m, tea.Batch(cmd, tiCmd)
}

// refresh pulls a fresh snapshot from the session and redraws.
func (m *Model) refresh() {
	m.view = m.Orch.Snapshot()
	m.Input.Placeholder = i18n.T(m.view.Config.Language, i18n.TypeMessage)
	if n := len(m.view.Chats); m.ChatIdx >= n {
		m.ChatIdx = max(n-1, 0)
		m.ChatPage = m.ChatIdx / ChatListPageSize
	}
	if n := len(m.Orch.Models()); m.ModelIdx >= n {
		m.ModelIdx = max(n-1, 0)
	}
	if m.Modal == modalModels {
		m.UpdateModelSelectorContent()
	}
	m.UpdateViewport()
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.answer(session.Cancelled)
		return m, tea.Quit
	}

	var cmd tea.Cmd
	switch m.Modal {
	case modalConfirm:
		m.confirmKey(msg)
		return m, nil
	case modalChats:
		cmd = m.chatListKey(msg)
		m.refresh()
		return m, cmd
	case modalModels:
		cmd = m.modelSelectorKey(msg)
		m.refresh()
		return m, cmd
	case modalShortcuts:
		switch msg.String() {
		case "esc", "enter", "ctrl+s", "q":
			m.Modal = modalNone
		}
		return m, nil
	}

	m.Status = ""
	switch msg.String() {
	case "ctrl+n":
		if err := m.Orch.CreateChat(true); err == nil {
			m.Input.Reset()
			m.updateInputLayout()
		}
	case "ctrl+h":
		m.openChatList()
	case "ctrl+b":
		cmd = m.openModelSelector()
	case "ctrl+s":
		m.Modal = modalShortcuts
	case "ctrl+d":
		if id, ok := m.view.State.Active(); ok {
			cmd = m.Orch.DeleteChat(id)
		}
	case "ctrl+r":
		m.Orch.ToggleListening()
	case "ctrl+p":
		if m.view.Output == speech.OutputPaused {
			m.Orch.ResumeSpeech()
		} else {
			m.Orch.PauseSpeech()
		}
	case "ctrl+t":
		m.ShowThinking = !m.ShowThinking
		m.rendered = map[string]string{}
	case "esc":
		m.Orch.StopSpeech()
		m.Orch.ClearNotice()
	case "enter":
		cmd = m.submit()
	case "alt+enter":
		m.Input.InsertString("\n")
		m.updateInputLayout()
	case "pgup", "pgdown":
		m.Viewport, cmd = m.Viewport.Update(msg)
	default:
		m.Input, cmd = m.Input.Update(msg)
		m.updateInputLayout()
	}
	m.refresh()
	return m, cmd
}

// submit sends the input as a message or runs it as a slash command. The
// input is cleared either way.
func (m *Model) submit() tea.Cmd {
	text := strings.TrimSpace(m.Input.Value())
	if text == "" {
		return nil
	}
	m.Input.Reset()
	m.updateInputLayout()

	if name, arg, ok := parseCommand(text); ok {
		return m.runCommand(name, arg)
	}
	cmd := m.Orch.SendMessage(text)
	m.refresh()
	m.Viewport.GotoBottom()
	return cmd
}

func (m *Model) confirmKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "left", "right", "tab", "h", "l":
		m.ConfirmYes = !m.ConfirmYes
	case "y", "Y":
		m.answer(session.Confirmed)
	case "n", "N", "esc":
		m.answer(session.Cancelled)
	case "enter":
		if m.ConfirmYes {
			m.answer(session.Confirmed)
		} else {
			m.answer(session.Cancelled)
		}
	}
}

func (m *Model) openChatList() {
	m.Modal = modalChats
	m.ChatIdx = 0
	for i, c := range m.view.Chats {
		if c.Active {
			m.ChatIdx = i
			break
		}
	}
	m.ChatPage = m.ChatIdx / ChatListPageSize
}

func (m *Model) chatListKey(msg tea.KeyMsg) tea.Cmd {
	chats := m.view.Chats
	switch msg.String() {
	case "esc", "ctrl+h":
		m.Modal = modalNone
	case "up", "k":
		if len(chats) == 0 {
			return nil
		}
		m.ChatIdx--
		if m.ChatIdx < 0 {
			m.ChatIdx = len(chats) - 1
		}
		m.ChatPage = m.ChatIdx / ChatListPageSize
	case "down", "j":
		if len(chats) == 0 {
			return nil
		}
		m.ChatIdx++
		if m.ChatIdx >= len(chats) {
			m.ChatIdx = 0
		}
		m.ChatPage = m.ChatIdx / ChatListPageSize
	case "left", "h":
		if m.ChatPage > 0 {
			m.ChatPage--
			m.ChatIdx = m.ChatPage * ChatListPageSize
		}
	case "right", "l":
		totalPages := (len(chats) + ChatListPageSize - 1) / ChatListPageSize
		if m.ChatPage < totalPages-1 {
			m.ChatPage++
			m.ChatIdx = m.ChatPage * ChatListPageSize
		}
	case "enter":
		if len(chats) == 0 {
			return nil
		}
		if err := m.Orch.SwitchChat(chats[m.ChatIdx].ID); err != nil {
			m.Status = err.Error()
		}
		m.Modal = modalNone
		m.Viewport.GotoBottom()
	case "d":
		if len(chats) == 0 {
			return nil
		}
		m.Modal = modalNone
		return m.Orch.DeleteChat(chats[m.ChatIdx].ID)
	case "D":
		m.Modal = modalNone
		return m.Orch.DeleteAllChats()
	}
	return nil
}

func (m *Model) openModelSelector() tea.Cmd {
	m.Modal = modalModels
	m.ModelIdx = 0
	for i, mdl := range m.Orch.Models() {
		if mdl.ID == m.view.Config.Model {
			m.ModelIdx = i
			break
		}
	}
	m.UpdateModelSelectorContent()
	m.SyncModelViewportScroll()
	if len(m.Orch.Models()) == 0 {
		return m.Orch.RefreshModels()
	}
	return nil
}

func (m *Model) modelSelectorKey(msg tea.KeyMsg) tea.Cmd {
	list := m.Orch.Models()
	switch msg.String() {
	case "esc", "ctrl+b":
		m.Modal = modalNone
	case "r":
		return m.Orch.RefreshModels()
	case "up", "k":
		if len(list) == 0 {
			return nil
		}
		m.ModelIdx--
		if m.ModelIdx < 0 {
			m.ModelIdx = len(list) - 1
		}
		m.UpdateModelSelectorContent()
		m.SyncModelViewportScroll()
	case "down", "j":
		if len(list) == 0 {
			return nil
		}
		m.ModelIdx++
		if m.ModelIdx >= len(list) {
			m.ModelIdx = 0
		}
		m.UpdateModelSelectorContent()
		m.SyncModelViewportScroll()
	case "enter":
		if len(list) == 0 {
			return nil
		}
		if err := m.Orch.ApplySetting(session.SettingModel, list[m.ModelIdx].ID); err != nil {
			m.Status = err.Error()
		}
		m.Modal = modalNone
	}
	return nil
}

func (m *Model) resize(msg tea.WindowSizeMsg) {
	m.WindowWidth = msg.Width
	m.WindowHeight = msg.Height

	ModalWidth = msg.Width - 10
	if ModalWidth > 70 {
		ModalWidth = 70
	}
	if ModalWidth < 30 {
		ModalWidth = 30
	}
	styles.ContentWidth = ModalWidth - 6

	m.ModelViewport.Width = styles.ContentWidth
	m.ModelViewport.Height = msg.Height - 15
	if m.ModelViewport.Height > 20 {
		m.ModelViewport.Height = 20
	}
	if m.ModelViewport.Height < 5 {
		m.ModelViewport.Height = 5
	}

	chatWidth := min(msg.Width-2, MaxChatWidth)
	m.Viewport.Width = chatWidth - 2

	m.updateInputLayout()
	glamourStyle := "dark"
	if !lipgloss.HasDarkBackground() {
		glamourStyle = "light"
	}
	m.Renderer, _ = glamour.NewTermRenderer(
		glamour.WithStylePath(glamourStyle),
		glamour.WithWordWrap(chatWidth-6),
	)
	m.rendered = map[string]string{}
	m.refresh()
	m.Viewport.GotoBottom()
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := m.WindowWidth - 6
	if inputWidth < 20 {
		inputWidth = 20
	}
	contentWidth := inputWidth - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	maxInputHeight := 6
	lineCount := WrappedLineCount(m.Input.Value(), contentWidth)
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > maxInputHeight {
		lineCount = maxInputHeight
	}

	m.Input.MaxHeight = maxInputHeight
	m.Input.SetWidth(inputWidth)
	m.Input.SetHeight(lineCount)

	// title, blank lines, input border, interim line and bottom bar
	reserved := m.Input.Height() + 2 + 7
	viewportHeight := m.WindowHeight - reserved
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.Viewport.Height = viewportHeight
}
