package session

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"murmur/internal/i18n"
	"murmur/internal/models"
)

// Setting names accepted by ApplySetting.
const (
	SettingKey      = "key"
	SettingModel    = "model"
	SettingCustom   = "custom"
	SettingThinking = "thinking"
	SettingTTS      = "tts"
	SettingLanguage = "lang"
	SettingVoice    = "voice"
)

// ApplySetting changes one setting and persists it. Boolean settings accept
// on/off, true/false or 1/0; an empty value toggles them.
func (o *Orchestrator) ApplySetting(name, value string) error {
	err := o.applySetting(name, strings.TrimSpace(value))
	if err != nil {
		slog.Warn("setting rejected", "setting", name, "error", err)
		o.notify(NoticeError, i18n.T(o.lang(), i18n.SettingFailed, err.Error()))
		return err
	}
	slog.Info("setting changed", "setting", name)
	o.notify(NoticeInfo, i18n.T(o.lang(), i18n.SettingSaved, name))
	return nil
}

func (o *Orchestrator) applySetting(name, value string) error {
	cfg := o.settings.Get()
	switch name {
	case SettingKey:
		return o.settings.SetAPIKey(value)
	case SettingModel:
		return o.settings.SetModel(value)
	case SettingCustom:
		if err := o.settings.SetCustomModelID(value); err != nil {
			return err
		}
		return o.settings.SetModel(models.CustomModel)
	case SettingThinking:
		on, err := parseToggle(value, cfg.UseThinking)
		if err != nil {
			return err
		}
		return o.settings.SetUseThinking(on)
	case SettingTTS:
		on, err := parseToggle(value, cfg.UseTTS)
		if err != nil {
			return err
		}
		if !on {
			o.out.Stop()
		}
		return o.settings.SetUseTTS(on)
	case SettingLanguage:
		lang, ok := models.ParseLanguage(value)
		if !ok {
			return fmt.Errorf("unsupported language %q", value)
		}
		return o.settings.SetLanguage(lang)
	case SettingVoice:
		if value != "" && !o.hasVoice(value) {
			return fmt.Errorf("%w: %s", ErrUnknownVoice, value)
		}
		return o.settings.SetVoiceID(value)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}
}

func (o *Orchestrator) hasVoice(id string) bool {
	voices := o.out.Voices()
	if len(voices) == 0 {
		return true
	}
	for _, v := range voices {
		if v.ID == id {
			return true
		}
	}
	return false
}

func parseToggle(value string, current bool) (bool, error) {
	switch strings.ToLower(value) {
	case "":
		return !current, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	on, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", value)
	}
	return on, nil
}
