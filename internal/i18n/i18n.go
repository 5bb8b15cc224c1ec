// Package i18n holds the user-facing strings in Spanish and English.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"murmur/internal/models"
)

type Key string

const (
	Greeting          Key = "greeting"
	NoActiveChat      Key = "no_active_chat"
	EmptyChatExists   Key = "empty_chat_exists"
	MissingCredential Key = "missing_credential"
	ConfirmDelete     Key = "confirm_delete"
	ConfirmDeleteAll  Key = "confirm_delete_all"
	Thinking          Key = "thinking"
	Listening         Key = "listening"
	TypeMessage       Key = "type_message"
	ModelStatus       Key = "model_status"
	ModelStatusThink  Key = "model_status_thinking"
	ModelsRefreshed   Key = "models_refreshed"
	SettingSaved      Key = "setting_saved"
	SettingFailed     Key = "setting_failed"
	StorageFailed     Key = "storage_failed"

	ErrNetwork   Key = "err_network"
	ErrHTTP      Key = "err_http"
	ErrMalformed Key = "err_malformed"
	ErrGeneric   Key = "err_generic"

	SpeechOutputFailed Key = "speech_output_failed"

	SpeechNoSpeech           Key = "speech_no_speech"
	SpeechPermissionDenied   Key = "speech_permission_denied"
	SpeechNetworkUnavailable Key = "speech_network_unavailable"
	SpeechInsecureContext    Key = "speech_insecure_context"
	SpeechUnsupported        Key = "speech_unsupported"
	SpeechOther              Key = "speech_other"
)

var (
	spanish = language.MustParse("es-ES")
	english = language.MustParse("en-US")
)

var entries = map[Key][2]string{
	Greeting: {
		"¡Hola! Soy tu asistente de voz. ¿En qué puedo ayudarte?",
		"Hi! I'm your voice assistant. How can I help you?",
	},
	NoActiveChat: {
		"No hay ningún chat activo. Escribe un mensaje o pulsa Ctrl+N para empezar.",
		"No active chat. Type a message or press Ctrl+N to start.",
	},
	EmptyChatExists: {
		"Ya tienes un chat vacío abierto.",
		"You already have an empty chat open.",
	},
	MissingCredential: {
		"Falta la API key de Gemini. Configúrala con /key <clave>.",
		"The Gemini API key is missing. Set it with /key <key>.",
	},
	ConfirmDelete:    {"¿Eliminar el chat \"%s\"?", "Delete chat \"%s\"?"},
	ConfirmDeleteAll: {"¿Eliminar todo el historial de chats?", "Delete the whole chat history?"},
	Thinking:         {"Proceso de pensamiento", "Thinking process"},
	Listening:        {"Escuchando...", "Listening..."},
	TypeMessage:      {"Escribe un mensaje...", "Type a message..."},
	ModelStatus:      {"Modelo: %s", "Model: %s"},
	ModelStatusThink: {"Modelo: %s (Pensamiento)", "Model: %s (Thinking)"},
	ModelsRefreshed:  {"%d modelos disponibles", "%d models available"},
	SettingSaved:     {"Ajuste guardado: %s", "Setting saved: %s"},
	SettingFailed:    {"No se pudo guardar el ajuste: %s", "Could not save setting: %s"},
	StorageFailed:    {"No se pudo guardar el chat: %s", "Could not save the chat: %s"},

	ErrNetwork:   {"Error de red: %s", "Network error: %s"},
	ErrHTTP:      {"Error de la API (%d): %s", "API error (%d): %s"},
	ErrMalformed: {"La respuesta de la API no tiene el formato esperado.", "The API response had an unexpected shape."},
	ErrGeneric:   {"Error: %s", "Error: %s"},

	SpeechOutputFailed: {"No se pudo reproducir la voz: %s", "Speech playback failed: %s"},

	SpeechNoSpeech: {
		"No se detectó voz. Inténtalo de nuevo.",
		"No speech was detected. Try again.",
	},
	SpeechPermissionDenied: {
		"Permiso de micrófono denegado.",
		"Microphone permission denied.",
	},
	SpeechNetworkUnavailable: {
		"El reconocimiento de voz necesita conexión a internet.",
		"Speech recognition needs an internet connection.",
	},
	SpeechInsecureContext: {
		"El reconocimiento de voz requiere un contexto seguro.",
		"Speech recognition requires a secure context.",
	},
	SpeechUnsupported: {
		"El reconocimiento de voz no está disponible. Configura MURMUR_STT_COMMAND.",
		"Speech recognition is not available. Set MURMUR_STT_COMMAND.",
	},
	SpeechOther: {"Error de reconocimiento de voz: %s", "Speech recognition error: %s"},
}

var printers = newPrinters()

func newPrinters() map[models.Language]*message.Printer {
	b := catalog.NewBuilder(catalog.Fallback(english))
	for k, v := range entries {
		if err := b.SetString(spanish, string(k), v[0]); err != nil {
			panic(err)
		}
		if err := b.SetString(english, string(k), v[1]); err != nil {
			panic(err)
		}
	}
	return map[models.Language]*message.Printer{
		models.LangES: message.NewPrinter(spanish, message.Catalog(b)),
		models.LangEN: message.NewPrinter(english, message.Catalog(b)),
	}
}

// T formats the message for key in lang. Unknown languages use Spanish.
func T(lang models.Language, key Key, args ...any) string {
	p, ok := printers[lang]
	if !ok {
		p = printers[models.LangES]
	}
	return p.Sprintf(string(key), args...)
}

// SpeechTag is the BCP 47 tag used to pick speech voices for lang.
func SpeechTag(lang models.Language) language.Tag {
	if lang == models.LangEN {
		return english
	}
	return spanish
}
