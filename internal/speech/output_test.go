package speech

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/backoff/v5"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/models"
)

type fakeSynth struct {
	catalogue  [][]Voice // successive Voices results; the last one repeats
	voiceCalls int
	speakErr   error

	spoken  []Utterance
	sinks   map[string]func(EngineEvent)
	cancels int
	pauses  int
	resumes int
}

func (f *fakeSynth) Voices(context.Context) ([]Voice, error) {
	f.voiceCalls++
	if len(f.catalogue) == 0 {
		return nil, nil
	}
	i := f.voiceCalls - 1
	if i >= len(f.catalogue) {
		i = len(f.catalogue) - 1
	}
	return f.catalogue[i], nil
}

func (f *fakeSynth) Speak(u Utterance, sink func(EngineEvent)) error {
	if f.speakErr != nil {
		return f.speakErr
	}
	if f.sinks == nil {
		f.sinks = map[string]func(EngineEvent){}
	}
	f.spoken = append(f.spoken, u)
	f.sinks[u.ID] = sink
	return nil
}

func (f *fakeSynth) Pause() error  { f.pauses++; return nil }
func (f *fakeSynth) Resume() error { f.resumes++; return nil }
func (f *fakeSynth) Cancel() error { f.cancels++; return nil }

// fire simulates the engine reporting ev for utterance id.
func (f *fakeSynth) fire(id string, kind EngineEventKind) {
	f.sinks[id](EngineEvent{Kind: kind})
}

type fakeSettings struct {
	cfg models.Config
}

func (s *fakeSettings) Get() models.Config { return s.cfg }

func (s *fakeSettings) SetVoiceID(id string) error {
	s.cfg.VoiceID = id
	return nil
}

type outputHarness struct {
	out    *Output
	engine *fakeSynth
	cfg    *fakeSettings
	queue  []tea.Msg
	events []OutputEvent
}

func newOutputHarness(voices ...Voice) *outputHarness {
	h := &outputHarness{
		engine: &fakeSynth{},
		cfg:    &fakeSettings{cfg: models.DefaultConfig()},
	}
	if len(voices) > 0 {
		h.engine.catalogue = [][]Voice{voices}
	}
	h.out = NewOutput(h.engine, h.cfg)
	h.out.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	n := 0
	h.out.newID = func() string {
		n++
		return fmt.Sprintf("u%d", n)
	}
	h.out.SetDispatch(func(msg tea.Msg) { h.queue = append(h.queue, msg) })
	h.out.Subscribe(func(ev OutputEvent) { h.events = append(h.events, ev) })
	return h
}

// load fills the catalogue the way startup does.
func (h *outputHarness) load(t *testing.T) {
	t.Helper()
	cmd := h.out.LoadVoices()
	require.NotNil(t, cmd)
	h.out.Update(cmd())
}

// pump delivers queued engine callbacks to the controller.
func (h *outputHarness) pump() {
	for len(h.queue) > 0 {
		msg := h.queue[0]
		h.queue = h.queue[1:]
		h.out.Update(msg)
	}
}

func (h *outputHarness) count(kind OutputEventKind, id string) int {
	n := 0
	for _, ev := range h.events {
		if ev.Kind == kind && ev.UtteranceID == id {
			n++
		}
	}
	return n
}

var spanishVoices = []Voice{
	{ID: "en-us", Name: "English (America)", Lang: "en-US"},
	{ID: "es", Name: "Spanish", Lang: "es"},
	{ID: "google-es", Name: "Google español", Lang: "es-ES"},
}

func TestSpeakPreemptsPreviousUtterance(t *testing.T) {
	h := newOutputHarness(spanishVoices...)
	h.load(t)

	assert.Nil(t, h.out.Speak("A"))
	a := h.out.Current()
	h.engine.fire(a, EngineStarted)
	h.pump()
	assert.Equal(t, OutputSpeaking, h.out.State())

	assert.Nil(t, h.out.Speak("B"))
	b := h.out.Current()
	assert.NotEqual(t, a, b)

	// The engine reports the cancelled utterance late.
	h.engine.fire(a, EngineEnded)
	h.engine.fire(a, EngineError)
	h.pump()

	h.engine.fire(b, EngineStarted)
	h.pump()
	h.engine.fire(b, EngineEnded)
	h.pump()

	assert.Equal(t, 1, h.count(Ended, a))
	assert.Equal(t, 0, h.count(Errored, a))
	assert.Equal(t, 1, h.count(Started, b))
	assert.Equal(t, 1, h.count(Ended, b))
	assert.Equal(t, 1, h.engine.cancels)
	assert.Equal(t, OutputIdle, h.out.State())
	require.Len(t, h.engine.spoken, 2)
	assert.Equal(t, "B", h.engine.spoken[1].Text)
}

func TestStopIsIdempotentFromEveryState(t *testing.T) {
	states := map[string]func(h *outputHarness){
		"idle": func(h *outputHarness) {},
		"preparing": func(h *outputHarness) {
			h.engine.catalogue = nil
			h.out.voices = nil
			h.out.Speak("text")
		},
		"speaking": func(h *outputHarness) {
			h.out.Speak("text")
			h.engine.fire(h.out.Current(), EngineStarted)
			h.pump()
		},
		"paused": func(h *outputHarness) {
			h.out.Speak("text")
			h.engine.fire(h.out.Current(), EngineStarted)
			h.pump()
			h.out.Pause()
		},
		"error": func(h *outputHarness) {
			h.out.Speak("text")
			h.engine.fire(h.out.Current(), EngineError)
			h.pump()
		},
	}

	for name, setup := range states {
		t.Run(name, func(t *testing.T) {
			h := newOutputHarness(spanishVoices...)
			h.load(t)
			setup(h)

			h.out.Stop()
			assert.Equal(t, OutputIdle, h.out.State())
			after := len(h.events)
			cancels := h.engine.cancels

			h.out.Stop()
			assert.Equal(t, OutputIdle, h.out.State())
			assert.Len(t, h.events, after, "second stop emits nothing")
			assert.Equal(t, cancels, h.engine.cancels)
			assert.Empty(t, h.out.Current())
		})
	}
}

func TestSpeakRetriesEmptyCatalogue(t *testing.T) {
	h := newOutputHarness()
	h.engine.catalogue = [][]Voice{nil, nil, spanishVoices}

	cmd := h.out.Speak("hola")
	require.NotNil(t, cmd)
	assert.Equal(t, OutputPreparing, h.out.State())
	assert.Empty(t, h.engine.spoken)

	h.out.Update(cmd())
	assert.Equal(t, 3, h.engine.voiceCalls)
	require.Len(t, h.engine.spoken, 1)
	assert.Equal(t, "google-es", h.engine.spoken[0].Voice)
	assert.Equal(t, "es-ES", h.engine.spoken[0].Lang)
}

func TestSpeakFallsBackToEngineDefaultWhenCatalogueStaysEmpty(t *testing.T) {
	h := newOutputHarness()
	h.out.maxTries = 2

	cmd := h.out.Speak("hola")
	require.NotNil(t, cmd)
	h.out.Update(cmd())

	assert.Equal(t, 2, h.engine.voiceCalls)
	require.Len(t, h.engine.spoken, 1)
	assert.Empty(t, h.engine.spoken[0].Voice)
}

func TestCatalogueResultForCancelledUtteranceIsIgnored(t *testing.T) {
	h := newOutputHarness()
	h.engine.catalogue = [][]Voice{spanishVoices}

	cmd := h.out.Speak("first")
	require.NotNil(t, cmd)
	h.out.Stop()
	h.out.Update(cmd())

	assert.Empty(t, h.engine.spoken)
	assert.Len(t, h.out.Voices(), 3)
}

func TestVoiceSelection(t *testing.T) {
	t.Run("configured voice", func(t *testing.T) {
		h := newOutputHarness(spanishVoices...)
		h.cfg.cfg.VoiceID = "es"
		h.load(t)
		h.out.Speak("hola")
		assert.Equal(t, "es", h.engine.spoken[0].Voice)
	})

	t.Run("stale configured voice is cleared", func(t *testing.T) {
		h := newOutputHarness(spanishVoices...)
		h.cfg.cfg.VoiceID = "gone"
		h.load(t)
		assert.Empty(t, h.cfg.cfg.VoiceID)
		h.out.Speak("hola")
		assert.Equal(t, "google-es", h.engine.spoken[0].Voice)
	})

	t.Run("any voice for the language", func(t *testing.T) {
		h := newOutputHarness(spanishVoices...)
		h.cfg.cfg.Language = models.LangEN
		h.load(t)
		h.out.Speak("hello")
		assert.Equal(t, "en-us", h.engine.spoken[0].Voice)
		assert.Equal(t, "en-US", h.engine.spoken[0].Lang)
	})

	t.Run("no matching voice", func(t *testing.T) {
		h := newOutputHarness(Voice{ID: "fr", Name: "French", Lang: "fr-FR"})
		h.load(t)
		h.out.Speak("hola")
		assert.Empty(t, h.engine.spoken[0].Voice)
	})
}

func TestPauseResume(t *testing.T) {
	h := newOutputHarness(spanishVoices...)
	h.load(t)

	h.out.Pause()
	assert.Equal(t, 0, h.engine.pauses, "nothing to pause while idle")

	h.out.Speak("hola")
	id := h.out.Current()
	h.engine.fire(id, EngineStarted)
	h.pump()

	h.out.Pause()
	assert.Equal(t, OutputPaused, h.out.State())
	h.out.Resume()
	assert.Equal(t, OutputSpeaking, h.out.State())
	assert.Equal(t, 1, h.count(Paused, id))
	assert.Equal(t, 1, h.count(Resumed, id))
}

func TestEngineFailure(t *testing.T) {
	h := newOutputHarness(spanishVoices...)
	h.load(t)
	h.engine.speakErr = errors.New("audio device busy")

	h.out.Speak("hola")
	assert.Equal(t, OutputError, h.out.State())
	assert.EqualError(t, h.out.Err(), "audio device busy")
	require.NotEmpty(t, h.events)
	assert.Equal(t, Errored, h.events[len(h.events)-1].Kind)

	h.out.Stop()
	assert.Equal(t, OutputIdle, h.out.State())
}

func TestSpeakBlankTextOnlyStops(t *testing.T) {
	h := newOutputHarness(spanishVoices...)
	h.load(t)
	h.out.Speak("hola")
	id := h.out.Current()

	assert.Nil(t, h.out.Speak("   "))
	assert.Equal(t, OutputIdle, h.out.State())
	assert.Equal(t, 1, h.count(Ended, id))
	assert.Len(t, h.engine.spoken, 1)
}
