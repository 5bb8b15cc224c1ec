package speech

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	starts   int
	stops    int
	lang     string
	sink     func(RecognitionEvent)
	startErr error
}

func (f *fakeRecognizer) Start(lang string, sink func(RecognitionEvent)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.lang = lang
	f.sink = sink
	return nil
}

func (f *fakeRecognizer) Stop() error {
	f.stops++
	return nil
}

type fakeEnv Capabilities

func (e fakeEnv) Capabilities() Capabilities { return Capabilities(e) }

var fullCaps = fakeEnv{Recognition: true, Online: true, Secure: true}

type inputHarness struct {
	in     *Input
	engine *fakeRecognizer
	queue  []tea.Msg
}

func newInputHarness(env Environment) *inputHarness {
	h := &inputHarness{engine: &fakeRecognizer{}}
	h.in = NewInput(h.engine, env)
	h.in.debounce = 0
	h.in.SetDispatch(func(msg tea.Msg) { h.queue = append(h.queue, msg) })
	return h
}

// pump delivers queued recognition events and runs the resulting commands.
func (h *inputHarness) pump() []tea.Msg {
	var out []tea.Msg
	for len(h.queue) > 0 {
		msg := h.queue[0]
		h.queue = h.queue[1:]
		if cmd := h.in.Update(msg); cmd != nil {
			out = append(out, cmd())
		}
	}
	return out
}

func TestStartChecksCapabilities(t *testing.T) {
	tests := []struct {
		name string
		env  Environment
		want ErrorCode
	}{
		{"no recognition", fakeEnv{Online: true, Secure: true}, Unsupported},
		{"no environment", nil, Unsupported},
		{"insecure", fakeEnv{Recognition: true, Online: true}, InsecureContext},
		{"offline", fakeEnv{Recognition: true, Secure: true}, NetworkUnavailable},
		{"unsupported wins over offline", fakeEnv{Secure: true}, Unsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newInputHarness(tc.env)
			err := h.in.Start("es-ES")
			var ierr *InputError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tc.want, ierr.Code)
			assert.False(t, h.in.Listening())
			assert.Equal(t, 0, h.engine.starts)
		})
	}
}

func TestStartWithoutEngine(t *testing.T) {
	in := NewInput(nil, fullCaps)
	var ierr *InputError
	require.ErrorAs(t, in.Start("es-ES"), &ierr)
	assert.Equal(t, Unsupported, ierr.Code)
}

func TestStartEngineFailure(t *testing.T) {
	h := newInputHarness(fullCaps)
	h.engine.startErr = errors.New("no microphone")

	var ierr *InputError
	require.ErrorAs(t, h.in.Start("es-ES"), &ierr)
	assert.Equal(t, Other, ierr.Code)
	assert.Equal(t, "no microphone", ierr.Detail)
	assert.False(t, h.in.Listening())
}

func TestFinalTranscriptIsDeliveredOnce(t *testing.T) {
	h := newInputHarness(fullCaps)
	require.NoError(t, h.in.Start("es-ES"))
	assert.True(t, h.in.Listening())
	assert.Equal(t, "es-ES", h.engine.lang)

	h.engine.sink(RecognitionEvent{Kind: RecognitionInterim, Text: "ho"})
	h.pump()
	assert.Equal(t, "ho", h.in.Interim())
	h.engine.sink(RecognitionEvent{Kind: RecognitionInterim, Text: "hola qué"})
	h.pump()
	assert.Equal(t, "hola qué", h.in.Interim(), "interim text is replaced, not appended")

	h.engine.sink(RecognitionEvent{Kind: RecognitionFinal, Text: " hola qué tal "})
	h.engine.sink(RecognitionEvent{Kind: RecognitionFinal, Text: "again"})
	h.engine.sink(RecognitionEvent{Kind: RecognitionEnd})
	out := h.pump()

	require.Len(t, out, 1)
	assert.Equal(t, TranscriptReady{Text: "hola qué tal"}, out[0])
	assert.False(t, h.in.Listening())
	assert.Empty(t, h.in.Interim())
}

func TestSessionEndReleasesEngine(t *testing.T) {
	for name, ev := range map[string]RecognitionEvent{
		"final": {Kind: RecognitionFinal, Text: "hola"},
		"error": {Kind: RecognitionError, Code: "not-allowed"},
	} {
		t.Run(name, func(t *testing.T) {
			h := newInputHarness(fullCaps)
			require.NoError(t, h.in.Start("es-ES"))
			h.engine.sink(ev)
			h.engine.sink(RecognitionEvent{Kind: RecognitionEnd})
			h.pump()

			assert.False(t, h.in.Listening())
			assert.Equal(t, 1, h.engine.stops)

			h.in.Stop()
			assert.Equal(t, 1, h.engine.stops)
		})
	}
}

func TestEmptyFinalIsNotSent(t *testing.T) {
	h := newInputHarness(fullCaps)
	require.NoError(t, h.in.Start("en-US"))
	h.engine.sink(RecognitionEvent{Kind: RecognitionFinal, Text: "   "})
	assert.Empty(t, h.pump())
	assert.False(t, h.in.Listening())
}

func TestToggleStopsAndDropsInFlightEvents(t *testing.T) {
	h := newInputHarness(fullCaps)
	require.NoError(t, h.in.Toggle("es-ES"))
	require.NoError(t, h.in.Toggle("es-ES"))
	assert.False(t, h.in.Listening())
	assert.Equal(t, 1, h.engine.stops)

	h.engine.sink(RecognitionEvent{Kind: RecognitionFinal, Text: "late"})
	assert.Empty(t, h.pump())

	// Stop while idle does not touch the engine.
	h.in.Stop()
	assert.Equal(t, 1, h.engine.stops)
}

func TestStaleSessionEventsAreIgnored(t *testing.T) {
	h := newInputHarness(fullCaps)
	require.NoError(t, h.in.Start("es-ES"))
	old := h.engine.sink
	h.in.Stop()
	require.NoError(t, h.in.Start("es-ES"))

	old(RecognitionEvent{Kind: RecognitionFinal, Text: "from before"})
	assert.Empty(t, h.pump())
	assert.True(t, h.in.Listening())

	h.engine.sink(RecognitionEvent{Kind: RecognitionFinal, Text: "now"})
	out := h.pump()
	require.Len(t, out, 1)
	assert.Equal(t, TranscriptReady{Text: "now"}, out[0])
}

func TestStartWhileListeningIsNoop(t *testing.T) {
	h := newInputHarness(fullCaps)
	require.NoError(t, h.in.Start("es-ES"))
	require.NoError(t, h.in.Start("es-ES"))
	assert.Equal(t, 1, h.engine.starts)
}

func TestRecognitionErrors(t *testing.T) {
	tests := []struct {
		code          string
		want          ErrorCode
		informational bool
	}{
		{"no-speech", NoSpeech, true},
		{"not-allowed", PermissionDenied, false},
		{"service-not-allowed", PermissionDenied, false},
		{"network", NetworkUnavailable, false},
		{"audio-capture", Other, false},
		{"aborted", Other, false},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			h := newInputHarness(fullCaps)
			require.NoError(t, h.in.Start("es-ES"))
			h.engine.sink(RecognitionEvent{Kind: RecognitionError, Code: tc.code})
			out := h.pump()

			require.Len(t, out, 1)
			failed, ok := out[0].(InputFailed)
			require.True(t, ok)
			assert.Equal(t, tc.want, failed.Err.Code)
			assert.Equal(t, tc.informational, failed.Err.Informational())
			if tc.want == Other {
				assert.Equal(t, tc.code, failed.Err.Detail)
			}
			assert.False(t, h.in.Listening())
		})
	}
}
