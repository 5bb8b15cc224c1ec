package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"murmur/internal/i18n"
	"murmur/internal/models"
	"murmur/internal/session"
	"murmur/internal/speech"
	"murmur/internal/styles"
)

func (m *Model) UpdateModelSelectorContent() {
	current := m.view.Config.Model
	var items []string
	var lastProvider string
	for i, mdl := range m.Orch.Models() {
		if mdl.Provider != lastProvider {
			if lastProvider != "" {
				items = append(items, "")
			}
			header := styles.ModalHeaderStyle.
				Foreground(styles.GetProviderColor(mdl.Provider)).
				Render(mdl.Provider)
			items = append(items, header)
			lastProvider = mdl.Provider
		}

		isCurrent := current == mdl.ID
		displayName := "  " + TruncateRunes(mdl.Name, styles.ContentWidth-4)
		if isCurrent {
			displayName = "● " + TruncateRunes(mdl.Name, styles.ContentWidth-4)
		}

		if i == m.ModelIdx {
			items = append(items, styles.ModalSelectedStyle.Width(styles.ContentWidth).Render(displayName))
			continue
		}
		style := styles.ModalItemStyle.Width(styles.ContentWidth)
		if isCurrent {
			style = style.Foreground(styles.CurrentTheme.Secondary)
		}
		items = append(items, style.Render(displayName))
	}

	if len(items) == 0 {
		items = append(items, styles.ModalItemStyle.Foreground(styles.HintColor).Render("No models loaded"))
	}
	m.ModelViewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, items...))
}

// SyncModelViewportScroll keeps the selected model row visible.
func (m *Model) SyncModelViewportScroll() {
	y := 0
	var lastProvider string
	for i, mdl := range m.Orch.Models() {
		top := y
		if mdl.Provider != lastProvider {
			if lastProvider != "" {
				y++
			}
			top = y
			y++
			lastProvider = mdl.Provider
		}
		if i == m.ModelIdx {
			if y+1 > m.ModelViewport.YOffset+m.ModelViewport.Height {
				m.ModelViewport.SetYOffset(y + 1 - m.ModelViewport.Height)
			}
			if top < m.ModelViewport.YOffset {
				m.ModelViewport.SetYOffset(top)
			}
			return
		}
		y++
	}
}

func (m *Model) RenderModelSelector() string {
	title := styles.ModalTitleStyle.Render("Select Gemini Model")
	content := lipgloss.JoinVertical(lipgloss.Left, title, m.ModelViewport.View())
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • Enter: select • r: refresh • Esc: close")
	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderChatList() string {
	chats := m.view.Chats
	totalPages := (len(chats) + ChatListPageSize - 1) / ChatListPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Chats (%d) - Page %d/%d", len(chats), m.ChatPage+1, totalPages))

	var body string
	if len(chats) == 0 {
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No chats yet"))
	} else {
		start := m.ChatPage * ChatListPageSize
		end := min(start+ChatListPageSize, len(chats))
		items := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			chat := chats[i]
			isSelected := i == m.ChatIdx
			cursor := "  "
			if isSelected {
				cursor = "> "
			}
			if chat.Active {
				cursor += "●"
			} else {
				cursor += " "
			}
			timeStr := RelativeTime(chat.UpdatedAt)
			name := PromptPreview(chat.Title)
			available := styles.ContentWidth - 2 - len(cursor) - 1 - len(timeStr)
			name = TruncateRunes(name, available)

			line := fmt.Sprintf("%s %s %s", cursor, name, lipgloss.NewStyle().Foreground(styles.HintColor).Render(timeStr))
			if isSelected {
				items = append(items, styles.ModalSelectedStyle.Render(line))
			} else {
				items = append(items, styles.ModalItemStyle.Render(line))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body)
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: open • d: delete • D: delete all • Esc: close")
	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Keyboard Shortcuts")

	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Ctrl+C", "Quit Application"},
		{"Ctrl+N", "New Chat"},
		{"Ctrl+H", "Chat List"},
		{"Ctrl+D", "Delete Current Chat"},
		{"Ctrl+B", "Select Gemini Model"},
		{"Ctrl+R", "Start/Stop Microphone"},
		{"Ctrl+P", "Pause/Resume Speech"},
		{"Esc", "Stop Speech"},
		{"Ctrl+T", "Show/Hide Thinking"},
		{"Ctrl+S", "View Shortcuts (this menu)"},
		{"/key", "Set API Key"},
		{"/model", "Set Model (/custom <id>)"},
		{"/lang", "Language es|en"},
		{"/voice", "Voice ID"},
		{"/tts", "Speak Replies on|off"},
		{"/thinking", "Thinking Mode on|off"},
		{"/rename", "Rename Current Chat"},
	}

	keyStyle := lipgloss.NewStyle().
		Foreground(styles.CurrentTheme.Accent).
		Bold(true).
		Width(12)
	descStyle := lipgloss.NewStyle().
		Foreground(styles.CurrentTheme.TextPrimary)

	var items []string
	for _, s := range shortcuts {
		line := fmt.Sprintf("%s %s", keyStyle.Render(s.key), descStyle.Render(s.desc))
		items = append(items, styles.ModalItemStyle.Render(line))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...))
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")
	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderConfirm() string {
	if m.Confirm == nil {
		return ""
	}
	text := lipgloss.NewStyle().Width(styles.ContentWidth).Render(m.Confirm.prompt.Text)

	yes, no := styles.ButtonStyle, styles.ButtonActiveStyle
	if m.ConfirmYes {
		yes, no = styles.ButtonActiveStyle, styles.ButtonStyle
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Center, yes.Render("Yes"), no.Render("No"))

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("←/→: choose • Enter: confirm • y/n • Esc: cancel")
	return lipgloss.JoinVertical(lipgloss.Left, text, "", buttons, hint)
}

func (m *Model) outputBadge() string {
	if !m.view.Config.UseTTS {
		return lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted).Render("TTS off")
	}
	switch m.view.Output {
	case speech.OutputPreparing, speech.OutputSpeaking:
		return lipgloss.NewStyle().Foreground(styles.CurrentTheme.Speaking).Render("♪ speaking")
	case speech.OutputPaused:
		return lipgloss.NewStyle().Foreground(styles.CurrentTheme.Paused).Render("‖ paused")
	case speech.OutputError:
		return lipgloss.NewStyle().Foreground(styles.CurrentTheme.Error).Render("✕ speech")
	default:
		return lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted).Render("TTS")
	}
}

func (m *Model) RenderBottomBar() string {
	v := m.view

	badge := "ES"
	if v.Config.Language != "" {
		badge = strings.ToUpper(string(v.Config.Language))
	}
	lang := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.CurrentTheme.Primary).
		Padding(0, 1).
		Render(badge)

	model := lipgloss.NewStyle().
		Foreground(styles.CurrentTheme.Primary).
		Render(TruncateRunes(v.ModelStatus, 40))

	leftParts := []string{lang, "  ", model}
	if v.InFlight > 0 {
		leftParts = append(leftParts, "  ", m.Spinner.View()+fmt.Sprintf("%d", v.InFlight))
	}
	switch {
	case v.Notice.Text != "":
		text := v.Notice.Text
		if v.Notice.OpenSettings {
			text += " (/key, /model)"
		}
		leftParts = append(leftParts, "  ", styles.NoticeStyle(int(v.Notice.Level)).Render(TruncateRunes(text, 60)))
	case m.Status != "":
		leftParts = append(leftParts, "  ", styles.NoticeStyle(int(session.NoticeWarn)).Render(TruncateRunes(m.Status, 60)))
	}

	mic := lipgloss.NewStyle().Foreground(styles.CurrentTheme.TextMuted).Render("mic ^R")
	if v.Listening {
		mic = lipgloss.NewStyle().Foreground(styles.CurrentTheme.Listening).Bold(true).Render("● " + i18n.T(v.Config.Language, i18n.Listening))
	}
	help := lipgloss.NewStyle().Foreground(styles.HintColor).Render("Help: ^S")

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, leftParts...)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, mic, "  ", m.outputBadge(), "  ", help)

	availableWidth := m.WindowWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide) - 2
	if availableWidth < 0 {
		availableWidth = 0
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, strings.Repeat(" ", availableWidth), rightSide)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.CurrentTheme.Border).
		Padding(0, 1).
		Render(bar)
}

func GetWelcomeScreen(width, height int, text string) string {
	art := `
 ╭──────────────────────────────────────────────╮
 │                                              │
 │   █▀▄▀█ █ █ █▀█ █▀▄▀█ █ █ █▀█                │
 │   █ ▀ █ █▄█ █▀▄ █ ▀ █ █▄█ █▀▄                │
 │                                              │
 ╰──────────────────────────────────────────────╯
`
	styledArt := styles.WelcomeArtStyle.Render(art)
	styledText := styles.WelcomeSubtitleStyle.Render(text)
	content := lipgloss.JoinVertical(lipgloss.Center, styledArt, "", styledText)
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderEntry(e session.Entry, first bool) string {
	lang := m.view.Config.Language
	switch e.Kind {
	case session.EntryLoading:
		return fmt.Sprintf("%s\n%s %s", styles.BotLabelStyle.Render("MURMUR"), m.Spinner.View(), i18n.T(lang, i18n.Thinking))
	case session.EntrySystem:
		return FormatSystemMessage(e.Message.Content, m.Viewport.Width)
	}

	id, _ := m.view.State.Active()
	cacheKey := id + "/" + e.Key
	if out, ok := m.rendered[cacheKey]; ok {
		return out
	}
	var out string
	switch e.Message.Role {
	case models.RoleUser:
		out = FormatUserMessage(e.Message.Content, m.Viewport.Width, first)
	default:
		out = FormatBotMessage(e.Message.Content, m.Renderer, m.ShowThinking, i18n.T(lang, i18n.Thinking))
	}
	m.rendered[cacheKey] = out
	return out
}

// UpdateViewport re-renders the transcript. Finished messages are cached by
// entry key; loading rows are redrawn every tick.
func (m *Model) UpdateViewport() {
	if _, ok := m.view.State.Active(); !ok {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height, i18n.T(m.view.Config.Language, i18n.NoActiveChat)))
		return
	}

	parts := make([]string, 0, len(m.view.Entries))
	for i, e := range m.view.Entries {
		parts = append(parts, m.renderEntry(e, i == 0))
	}
	atBottom := m.Viewport.AtBottom()
	m.Viewport.SetContent(strings.Join(parts, "\n\n"))
	if atBottom {
		m.Viewport.GotoBottom()
	}
}

func (m *Model) overlay(modal string) string {
	modal = styles.ModalStyle.Width(ModalWidth).Render(modal)
	return lipgloss.Place(m.WindowWidth, m.WindowHeight, lipgloss.Center, lipgloss.Center, modal)
}

func (m *Model) View() string {
	switch m.Modal {
	case modalConfirm:
		return m.overlay(m.RenderConfirm())
	case modalChats:
		return m.overlay(m.RenderChatList())
	case modalModels:
		return m.overlay(m.RenderModelSelector())
	case modalShortcuts:
		return m.overlay(m.RenderShortcutsModal())
	}

	inputBox := styles.InputBoxStyle.Width(m.WindowWidth - 4).Render(m.Input.View())

	var interim string
	if m.view.Listening && m.view.Interim != "" {
		interim = lipgloss.NewStyle().Foreground(styles.CurrentTheme.Listening).Italic(true).Render("… " + m.view.Interim)
	}

	title := "MURMUR"
	if id, ok := m.view.State.Active(); ok {
		for _, c := range m.view.Chats {
			if c.ID == id {
				title = "MURMUR · " + TruncateRunes(c.Title, 40)
				break
			}
		}
	}

	parts := []string{styles.TitleStyle.Render(title), "", m.Viewport.View(), ""}
	if interim != "" {
		parts = append(parts, interim)
	}
	parts = append(parts, inputBox)

	chatArea := lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, parts...))
	return lipgloss.JoinVertical(lipgloss.Left, chatArea, m.RenderBottomBar())
}
