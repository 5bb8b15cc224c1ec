package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"murmur/internal/i18n"
	"murmur/internal/models"
)

type OutputState int

const (
	OutputIdle OutputState = iota
	OutputPreparing
	OutputSpeaking
	OutputPaused
	OutputError
)

func (s OutputState) String() string {
	switch s {
	case OutputPreparing:
		return "preparing"
	case OutputSpeaking:
		return "speaking"
	case OutputPaused:
		return "paused"
	case OutputError:
		return "error"
	default:
		return "idle"
	}
}

type OutputEventKind int

const (
	Started OutputEventKind = iota
	Paused
	Resumed
	Ended
	Errored
)

func (k OutputEventKind) String() string {
	return [...]string{"started", "paused", "resumed", "ended", "errored"}[k]
}

type OutputEvent struct {
	Kind        OutputEventKind
	UtteranceID string
	Err         error
}

// VoiceSettings is the part of the configuration the output controller reads
// and repairs.
type VoiceSettings interface {
	Get() models.Config
	SetVoiceID(id string) error
}

var errNoVoices = errors.New("voice catalogue is empty")

type engineEventMsg EngineEvent

type voicesLoadedMsg struct {
	utteranceID string
	voices      []Voice
	err         error
}

// Output speaks one utterance at a time. A new Speak preempts the current one.
type Output struct {
	engine    Synthesizer
	settings  VoiceSettings
	dispatch  func(tea.Msg)
	listeners []func(OutputEvent)

	state   OutputState
	current string
	pending *Utterance
	voices  []Voice
	lastErr error

	newBackOff func() backoff.BackOff
	maxTries   uint
	newID      func() string
}

func NewOutput(engine Synthesizer, settings VoiceSettings) *Output {
	return &Output{
		engine:   engine,
		settings: settings,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = time.Second
			return b
		},
		maxTries: 6,
		newID:    uuid.NewString,
	}
}

// SetDispatch sets the function used to deliver engine callbacks to the loop.
func (o *Output) SetDispatch(fn func(tea.Msg)) {
	o.dispatch = fn
}

func (o *Output) Subscribe(fn func(OutputEvent)) {
	o.listeners = append(o.listeners, fn)
}

func (o *Output) State() OutputState { return o.state }

// Current returns the id of the utterance in flight, if any.
func (o *Output) Current() string { return o.current }

func (o *Output) Err() error { return o.lastErr }

func (o *Output) Voices() []Voice { return o.voices }

func (o *Output) emit(kind OutputEventKind, id string, err error) {
	ev := OutputEvent{Kind: kind, UtteranceID: id, Err: err}
	slog.Debug("speech output event", "event", kind.String(), "utterance", id)
	for _, fn := range o.listeners {
		fn(ev)
	}
}

// LoadVoices populates the voice catalogue in the background.
func (o *Output) LoadVoices() tea.Cmd {
	if o.engine == nil {
		return nil
	}
	return o.fetchVoices("")
}

// Speak cancels whatever is being spoken and starts text. When the voice
// catalogue is still empty the utterance waits in Preparing while the
// catalogue is fetched again.
func (o *Output) Speak(text string) tea.Cmd {
	o.Stop()
	text = strings.TrimSpace(text)
	if text == "" || o.engine == nil {
		return nil
	}

	lang := i18n.SpeechTag(o.settings.Get().Language)
	u := Utterance{ID: o.newID(), Text: text, Lang: lang.String()}
	o.current = u.ID
	o.lastErr = nil

	if len(o.voices) == 0 {
		o.state = OutputPreparing
		o.pending = &u
		return o.fetchVoices(u.ID)
	}
	o.start(u)
	return nil
}

func (o *Output) start(u Utterance) {
	tag, _ := language.Parse(u.Lang)
	u.Voice = o.pickVoice(tag)
	o.pending = nil
	o.state = OutputPreparing

	id := u.ID
	if err := o.engine.Speak(u, func(ev EngineEvent) {
		ev.UtteranceID = id
		send(o.dispatch, engineEventMsg(ev))
	}); err != nil {
		slog.Error("speech synthesis failed to start", "error", err)
		o.fail(err)
	}
}

func (o *Output) fail(err error) {
	id := o.current
	o.current = ""
	o.pending = nil
	o.state = OutputError
	o.lastErr = err
	o.emit(Errored, id, err)
}

func (o *Output) Pause() {
	if o.state != OutputSpeaking {
		return
	}
	if err := o.engine.Pause(); err != nil {
		slog.Warn("pausing speech failed", "error", err)
		return
	}
	o.state = OutputPaused
	o.emit(Paused, o.current, nil)
}

func (o *Output) Resume() {
	if o.state != OutputPaused {
		return
	}
	if err := o.engine.Resume(); err != nil {
		slog.Warn("resuming speech failed", "error", err)
		return
	}
	o.state = OutputSpeaking
	o.emit(Resumed, o.current, nil)
}

// Stop cancels the current utterance, if any, and leaves the controller Idle.
// The cancelled utterance gets exactly one Ended event.
func (o *Output) Stop() {
	if id := o.current; id != "" {
		o.current = ""
		o.pending = nil
		if o.engine != nil {
			if err := o.engine.Cancel(); err != nil {
				slog.Warn("cancelling speech failed", "error", err)
			}
		}
		o.emit(Ended, id, nil)
	}
	o.state = OutputIdle
}

// Update applies engine callbacks and catalogue results. Callbacks for an
// utterance that is no longer current are dropped.
func (o *Output) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case engineEventMsg:
		if msg.UtteranceID == "" || msg.UtteranceID != o.current {
			return nil
		}
		switch msg.Kind {
		case EngineStarted:
			if o.state == OutputPreparing {
				o.state = OutputSpeaking
				o.emit(Started, msg.UtteranceID, nil)
			}
		case EngineEnded:
			o.current = ""
			o.state = OutputIdle
			o.emit(Ended, msg.UtteranceID, nil)
		case EngineError:
			o.fail(msg.Err)
		}

	case voicesLoadedMsg:
		if msg.err != nil {
			slog.Warn("voice catalogue unavailable, using engine default", "error", msg.err)
		} else {
			o.voices = msg.voices
			o.revalidateVoice()
		}
		if o.pending != nil && o.pending.ID == msg.utteranceID && o.current == msg.utteranceID {
			o.start(*o.pending)
		}
	}
	return nil
}

func (o *Output) fetchVoices(utteranceID string) tea.Cmd {
	engine := o.engine
	b := o.newBackOff()
	tries := o.maxTries
	return func() tea.Msg {
		ctx := context.Background()
		voices, err := backoff.Retry(ctx, func() ([]Voice, error) {
			v, err := engine.Voices(ctx)
			if err != nil {
				return nil, err
			}
			if len(v) == 0 {
				return nil, errNoVoices
			}
			return v, nil
		}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
		return voicesLoadedMsg{utteranceID: utteranceID, voices: voices, err: err}
	}
}

// revalidateVoice clears a configured voice that the catalogue no longer has.
func (o *Output) revalidateVoice() {
	id := o.settings.Get().VoiceID
	if id == "" || len(o.voices) == 0 || o.hasVoice(id) {
		return
	}
	slog.Info("configured voice no longer available, clearing", "voice", id)
	if err := o.settings.SetVoiceID(""); err != nil {
		slog.Warn("clearing voice setting failed", "error", err)
	}
}

func (o *Output) hasVoice(id string) bool {
	for _, v := range o.voices {
		if v.ID == id {
			return true
		}
	}
	return false
}

// pickVoice prefers the configured voice, then a Google voice for the
// language, then any voice for the language. Empty means engine default.
func (o *Output) pickVoice(tag language.Tag) string {
	o.revalidateVoice()
	if id := o.settings.Get().VoiceID; id != "" && o.hasVoice(id) {
		return id
	}

	base, _ := tag.Base()
	var fallback string
	for _, v := range o.voices {
		if !sameLanguage(v.Lang, base) {
			continue
		}
		if strings.Contains(v.Name, "Google") {
			return v.ID
		}
		if fallback == "" {
			fallback = v.ID
		}
	}
	return fallback
}

func sameLanguage(voiceLang string, want language.Base) bool {
	t, err := language.Parse(voiceLang)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(voiceLang), want.String())
	}
	b, _ := t.Base()
	return b == want
}
