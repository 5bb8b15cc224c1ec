package engines

import (
	"context"
	"errors"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/speech"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
}

func TestParseEspeakVoices(t *testing.T) {
	out := []byte(`Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  en-us           --/M      English_(America)  gmw/en-US            (en 10)
 5  es              --/M      Spanish_(Spain)    roa/es
 5  es-419          --/M      Spanish_(Latin_America) roa/es-419       (es-mx 6)
 5  es              --/M      es-mbrola-1        mb/mb-es1
`)
	voices := parseEspeakVoices(out)
	require.Len(t, voices, 4)
	assert.Equal(t, speech.Voice{ID: "gmw/en-US", Name: "English (America)", Lang: "en-us"}, voices[0])
	assert.Equal(t, "Spanish (Spain)", voices[1].Name)
	assert.Equal(t, "roa/es-419", voices[2].ID)

	// Two voices for the same language stay distinguishable.
	assert.Equal(t, voices[1].Lang, voices[3].Lang)
	assert.NotEqual(t, voices[1].ID, voices[3].ID)
}

func TestParseSayVoices(t *testing.T) {
	out := []byte(`Alex                en_US    # Most people recognize me by my voice.
Bad News            en_US    # The light you see at the end of the tunnel is the headlamp of a fast approaching train.
Monica              es_ES    # Hola, me llamo Mónica y soy una voz española.
`)
	voices := parseSayVoices(out)
	require.Len(t, voices, 3)
	assert.Equal(t, speech.Voice{ID: "Bad News", Name: "Bad News", Lang: "en-US"}, voices[1])
	assert.Equal(t, "es-ES", voices[2].Lang)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want speech.RecognitionEvent
		ok   bool
	}{
		{"", speech.RecognitionEvent{}, false},
		{"   ", speech.RecognitionEvent{}, false},
		{"~hola", speech.RecognitionEvent{Kind: speech.RecognitionInterim, Text: "hola"}, true},
		{"!not-allowed", speech.RecognitionEvent{Kind: speech.RecognitionError, Code: "not-allowed"}, true},
		{" hola mundo ", speech.RecognitionEvent{Kind: speech.RecognitionFinal, Text: "hola mundo"}, true},
	}
	for _, tc := range tests {
		got, ok := parseLine(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}
}

func collect(t *testing.T, events <-chan speech.RecognitionEvent) []speech.RecognitionEvent {
	t.Helper()
	var got []speech.RecognitionEvent
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if ev.Kind == speech.RecognitionEnd {
				return got
			}
		case <-time.After(5 * time.Second):
			t.Fatal("recognizer did not end")
			return got
		}
	}
}

func recognize(t *testing.T, command, lang string) []speech.RecognitionEvent {
	t.Helper()
	events := make(chan speech.RecognitionEvent, 16)
	r := NewCommandRecognizer(command)
	require.NoError(t, r.Start(lang, func(ev speech.RecognitionEvent) { events <- ev }))
	return collect(t, events)
}

func TestRecognizerStreamsTranscripts(t *testing.T) {
	requireShell(t)
	got := recognize(t, `printf '~ho\n~hola\nhola mundo\n'`, "es-ES")
	assert.Equal(t, []speech.RecognitionEvent{
		{Kind: speech.RecognitionInterim, Text: "ho"},
		{Kind: speech.RecognitionInterim, Text: "hola"},
		{Kind: speech.RecognitionFinal, Text: "hola mundo"},
		{Kind: speech.RecognitionEnd},
	}, got)
}

func TestRecognizerPassesLanguage(t *testing.T) {
	requireShell(t)
	got := recognize(t, `echo "$MURMUR_LANG"`, "en-US")
	require.NotEmpty(t, got)
	assert.Equal(t, speech.RecognitionEvent{Kind: speech.RecognitionFinal, Text: "en-US"}, got[0])
}

func TestRecognizerReportsNoSpeech(t *testing.T) {
	requireShell(t)
	got := recognize(t, "true", "es-ES")
	assert.Equal(t, []speech.RecognitionEvent{
		{Kind: speech.RecognitionError, Code: "no-speech"},
		{Kind: speech.RecognitionEnd},
	}, got)
}

func TestRecognizerReportsCommandFailure(t *testing.T) {
	requireShell(t)
	got := recognize(t, "exit 2", "es-ES")
	require.Len(t, got, 2)
	assert.Equal(t, "command-failed", got[0].Code)
}

func TestRecognizerWithoutCommand(t *testing.T) {
	r := NewCommandRecognizer(" ")
	assert.False(t, r.Available())

	var ierr *speech.InputError
	require.ErrorAs(t, r.Start("es-ES", func(speech.RecognitionEvent) {}), &ierr)
	assert.Equal(t, speech.Unsupported, ierr.Code)
	assert.NoError(t, r.Stop())
}

func TestRecognizerStop(t *testing.T) {
	requireShell(t)
	events := make(chan speech.RecognitionEvent, 16)
	r := NewCommandRecognizer("exec sleep 5")
	require.NoError(t, r.Start("es-ES", func(ev speech.RecognitionEvent) { events <- ev }))
	require.NoError(t, r.Stop())

	got := collect(t, events)
	assert.Equal(t, []speech.RecognitionEvent{{Kind: speech.RecognitionEnd}}, got)
}

func TestRecognizerStopAfterFinalEndsChildren(t *testing.T) {
	requireShell(t)
	events := make(chan speech.RecognitionEvent, 16)
	r := NewCommandRecognizer("echo hola; sleep 30")
	require.NoError(t, r.Start("es-ES", func(ev speech.RecognitionEvent) { events <- ev }))

	select {
	case ev := <-events:
		require.Equal(t, speech.RecognitionEvent{Kind: speech.RecognitionFinal, Text: "hola"}, ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no transcript")
	}
	require.NoError(t, r.Stop())

	// The shell's child held stdout open; the session only ends once the
	// whole group is gone.
	got := collect(t, events)
	assert.Equal(t, []speech.RecognitionEvent{{Kind: speech.RecognitionEnd}}, got)
}

func synthEvents(t *testing.T, events <-chan speech.EngineEvent) []speech.EngineEventKind {
	t.Helper()
	var kinds []speech.EngineEventKind
	for {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
			if ev.Kind != speech.EngineStarted {
				return kinds
			}
		case <-time.After(5 * time.Second):
			t.Fatal("synthesizer did not finish")
			return kinds
		}
	}
}

func TestSynthesizerCustomCommand(t *testing.T) {
	requireShell(t)
	s, err := NewCommandSynthesizer("cat > /dev/null")
	require.NoError(t, err)

	voices, err := s.Voices(context.Background())
	require.NoError(t, err)
	assert.Len(t, voices, 1)

	events := make(chan speech.EngineEvent, 4)
	require.NoError(t, s.Speak(speech.Utterance{ID: "u1", Text: "hola", Lang: "es-ES"}, func(ev speech.EngineEvent) { events <- ev }))
	assert.Equal(t, []speech.EngineEventKind{speech.EngineStarted, speech.EngineEnded}, synthEvents(t, events))
}

func TestSynthesizerFailure(t *testing.T) {
	requireShell(t)
	s, err := NewCommandSynthesizer("exit 3")
	require.NoError(t, err)

	events := make(chan speech.EngineEvent, 4)
	require.NoError(t, s.Speak(speech.Utterance{ID: "u1", Text: "hola"}, func(ev speech.EngineEvent) { events <- ev }))
	assert.Equal(t, []speech.EngineEventKind{speech.EngineStarted, speech.EngineError}, synthEvents(t, events))
}

func TestSynthesizerCancelEndsQuietly(t *testing.T) {
	requireShell(t)
	s, err := NewCommandSynthesizer("exec sleep 5")
	require.NoError(t, err)

	events := make(chan speech.EngineEvent, 4)
	require.NoError(t, s.Speak(speech.Utterance{ID: "u1", Text: "hola"}, func(ev speech.EngineEvent) { events <- ev }))
	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())
	require.NoError(t, s.Cancel())
	require.NoError(t, s.Cancel())

	assert.Equal(t, []speech.EngineEventKind{speech.EngineStarted, speech.EngineEnded}, synthEvents(t, events))
}

func TestEnvironmentCapabilities(t *testing.T) {
	up := func() ([]net.Interface, error) {
		return []net.Interface{
			{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			{Name: "eth0", Flags: net.FlagUp},
		}, nil
	}
	loopbackOnly := func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
	}
	broken := func() ([]net.Interface, error) { return nil, errors.New("netlink") }

	env := NewTerminalEnvironment(NewCommandRecognizer("whisper-stream"))
	env.interfaces = up
	assert.Equal(t, speech.Capabilities{Recognition: true, Online: true, Secure: true}, env.Capabilities())

	env.interfaces = loopbackOnly
	assert.False(t, env.Capabilities().Online)
	env.interfaces = broken
	assert.False(t, env.Capabilities().Online)

	env = NewTerminalEnvironment(NewCommandRecognizer(""))
	env.interfaces = up
	assert.False(t, env.Capabilities().Recognition)
}
