// Package speech drives text-to-speech output and speech-to-text input.
//
// Both controllers are owned by the bubbletea event loop. Engines report
// asynchronously through a sink; the controller forwards those reports into
// the loop with its dispatch function (usually tea.Program.Send) and applies
// them in Update.
package speech

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

type Voice struct {
	ID   string
	Name string
	Lang string // BCP 47, e.g. "es-ES"
}

type Utterance struct {
	ID    string
	Text  string
	Voice string // empty selects the engine default for Lang
	Lang  string
}

type EngineEventKind int

const (
	EngineStarted EngineEventKind = iota
	EngineEnded
	EngineError
)

type EngineEvent struct {
	UtteranceID string
	Kind        EngineEventKind
	Err         error
}

// Synthesizer is a text-to-speech engine. Speak must return before sink is
// first called. Voices may be called from a goroutine other than the loop.
type Synthesizer interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(u Utterance, sink func(EngineEvent)) error
	Pause() error
	Resume() error
	Cancel() error
}

type RecognitionEventKind int

const (
	RecognitionInterim RecognitionEventKind = iota
	RecognitionFinal
	RecognitionError
	RecognitionEnd
)

type RecognitionEvent struct {
	Kind RecognitionEventKind
	Text string
	Code string // engine error code for RecognitionError
}

// Recognizer is a speech-to-text engine running one recognition session at a
// time. Start must return before sink is first called.
type Recognizer interface {
	Start(lang string, sink func(RecognitionEvent)) error
	Stop() error
}

// Capabilities describes what the environment allows for recognition.
type Capabilities struct {
	Recognition bool
	Online      bool
	Secure      bool
}

type Environment interface {
	Capabilities() Capabilities
}

func send(dispatch func(tea.Msg), msg tea.Msg) {
	if dispatch != nil {
		dispatch(msg)
	}
}
