package ui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"murmur/internal/session"
)

// settingCommands maps slash commands onto session settings.
var settingCommands = map[string]string{
	"key":      session.SettingKey,
	"model":    session.SettingModel,
	"custom":   session.SettingCustom,
	"thinking": session.SettingThinking,
	"tts":      session.SettingTTS,
	"lang":     session.SettingLanguage,
	"voice":    session.SettingVoice,
}

// parseCommand splits "/name args" into a lower-cased name and its argument.
func parseCommand(s string) (name, arg string, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return "", "", false
	}
	s = s[1:]
	name, arg, _ = strings.Cut(s, " ")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(arg), true
}

func (m *Model) runCommand(name, arg string) tea.Cmd {
	if setting, ok := settingCommands[name]; ok {
		if err := m.Orch.ApplySetting(setting, arg); err != nil {
			m.Status = err.Error()
		}
		m.rendered = map[string]string{}
		m.refresh()
		return nil
	}

	var cmd tea.Cmd
	var err error
	switch name {
	case "new", "clear":
		err = m.Orch.CreateChat(true)
	case "delete":
		if id, ok := m.view.State.Active(); ok {
			cmd = m.Orch.DeleteChat(id)
		} else {
			err = session.ErrNoActiveChat
		}
	case "deleteall":
		cmd = m.Orch.DeleteAllChats()
	case "rename":
		err = m.Orch.Rename(arg)
	case "chats":
		m.openChatList()
	case "models":
		cmd = m.openModelSelector()
		if cmd == nil {
			cmd = m.Orch.RefreshModels()
		}
	case "mic":
		m.Orch.ToggleListening()
	case "stop":
		m.Orch.StopSpeech()
	case "pause":
		m.Orch.PauseSpeech()
	case "resume":
		m.Orch.ResumeSpeech()
	case "help":
		m.Modal = modalShortcuts
	default:
		err = fmt.Errorf("unknown command /%s, see /help", name)
	}
	if err != nil && !errors.Is(err, session.ErrEmptyChatExists) {
		m.Status = err.Error()
	}
	m.refresh()
	return cmd
}
