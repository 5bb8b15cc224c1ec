package speech

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// FinalDebounce is the pause between a final transcript and sending it.
const FinalDebounce = 500 * time.Millisecond

type ErrorCode string

const (
	NoSpeech           ErrorCode = "no-speech"
	PermissionDenied   ErrorCode = "permission-denied"
	NetworkUnavailable ErrorCode = "network-unavailable"
	InsecureContext    ErrorCode = "insecure-context"
	Unsupported        ErrorCode = "unsupported"
	Other              ErrorCode = "other"
)

// InputError is a recognition failure the user should be told about.
type InputError struct {
	Code   ErrorCode
	Detail string // engine code for Other
}

func (e *InputError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("speech recognition: %s (%s)", e.Code, e.Detail)
	}
	return fmt.Sprintf("speech recognition: %s", e.Code)
}

// Informational reports whether the error needs no action from the user.
func (e *InputError) Informational() bool {
	return e.Code == NoSpeech
}

// inputErrorFromCode maps engine error codes onto the taxonomy.
func inputErrorFromCode(code string) *InputError {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "no-speech":
		return &InputError{Code: NoSpeech}
	case "not-allowed", "service-not-allowed", "permission-denied":
		return &InputError{Code: PermissionDenied}
	case "network", "network-unavailable":
		return &InputError{Code: NetworkUnavailable}
	case "insecure-context":
		return &InputError{Code: InsecureContext}
	case "unsupported":
		return &InputError{Code: Unsupported}
	default:
		return &InputError{Code: Other, Detail: code}
	}
}

// TranscriptReady carries a final transcript once the debounce has elapsed.
type TranscriptReady struct {
	Text string
}

// InputFailed reports a recognition error raised while listening.
type InputFailed struct {
	Err *InputError
}

type recognitionMsg struct {
	session int
	ev      RecognitionEvent
}

// Input runs at most one recognition session.
type Input struct {
	engine   Recognizer
	env      Environment
	dispatch func(tea.Msg)

	listening bool
	session   int
	interim   string
	final     bool
	debounce  time.Duration
}

func NewInput(engine Recognizer, env Environment) *Input {
	return &Input{engine: engine, env: env, debounce: FinalDebounce}
}

func (in *Input) SetDispatch(fn func(tea.Msg)) {
	in.dispatch = fn
}

func (in *Input) Listening() bool { return in.listening }

// Interim is the latest partial transcript of the current session.
func (in *Input) Interim() string { return in.interim }

// Start begins listening in lang. It is a no-op while already listening.
func (in *Input) Start(lang string) error {
	if in.listening {
		return nil
	}

	caps := Capabilities{}
	if in.env != nil {
		caps = in.env.Capabilities()
	}
	switch {
	case !caps.Recognition || in.engine == nil:
		return &InputError{Code: Unsupported}
	case !caps.Secure:
		return &InputError{Code: InsecureContext}
	case !caps.Online:
		return &InputError{Code: NetworkUnavailable}
	}

	in.session++
	session := in.session
	in.interim = ""
	in.final = false
	if err := in.engine.Start(lang, func(ev RecognitionEvent) {
		send(in.dispatch, recognitionMsg{session: session, ev: ev})
	}); err != nil {
		var ierr *InputError
		if errors.As(err, &ierr) {
			return ierr
		}
		slog.Error("speech recognition failed to start", "error", err)
		return &InputError{Code: Other, Detail: err.Error()}
	}
	in.listening = true
	return nil
}

// Stop ends the current session. Events still in flight for it are dropped.
func (in *Input) Stop() {
	if !in.listening {
		return
	}
	in.finish()
}

// Toggle stops when listening and starts otherwise.
func (in *Input) Toggle(lang string) error {
	if in.listening {
		in.Stop()
		return nil
	}
	return in.Start(lang)
}

// finish ends the session and releases the engine, which may still be
// running after it has delivered its result.
func (in *Input) finish() {
	in.end()
	if err := in.engine.Stop(); err != nil {
		slog.Warn("stopping speech recognition failed", "error", err)
	}
}

func (in *Input) end() {
	in.listening = false
	in.interim = ""
	in.session++
}

func (in *Input) Update(msg tea.Msg) tea.Cmd {
	m, ok := msg.(recognitionMsg)
	if !ok || m.session != in.session || !in.listening {
		return nil
	}

	switch m.ev.Kind {
	case RecognitionInterim:
		in.interim = m.ev.Text
	case RecognitionFinal:
		if in.final {
			return nil
		}
		in.final = true
		in.finish()
		text := strings.TrimSpace(m.ev.Text)
		if text == "" {
			return nil
		}
		return tea.Tick(in.debounce, func(time.Time) tea.Msg {
			return TranscriptReady{Text: text}
		})
	case RecognitionError:
		in.finish()
		ierr := inputErrorFromCode(m.ev.Code)
		return func() tea.Msg { return InputFailed{Err: ierr} }
	case RecognitionEnd:
		in.end()
	}
	return nil
}
