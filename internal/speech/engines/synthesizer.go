// Package engines provides speech engines backed by local commands.
package engines

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"murmur/internal/speech"
)

var ErrNoSynthesizer = errors.New("no speech synthesizer found (install espeak-ng or set MURMUR_TTS_COMMAND)")

type synthKind int

const (
	kindEspeak synthKind = iota
	kindSay
	kindCustom
)

// CommandSynthesizer speaks by running espeak-ng, espeak, macOS say, or a
// user command that reads the text on stdin.
type CommandSynthesizer struct {
	kind    synthKind
	program string

	mu     sync.Mutex
	cmd    *exec.Cmd
	paused bool
}

// NewCommandSynthesizer runs custom through sh when set, otherwise the first
// synthesizer found on PATH.
func NewCommandSynthesizer(custom string) (*CommandSynthesizer, error) {
	if custom = strings.TrimSpace(custom); custom != "" {
		return &CommandSynthesizer{kind: kindCustom, program: custom}, nil
	}
	for _, c := range []struct {
		name string
		kind synthKind
	}{
		{"espeak-ng", kindEspeak},
		{"espeak", kindEspeak},
		{"say", kindSay},
	} {
		if path, err := exec.LookPath(c.name); err == nil {
			return &CommandSynthesizer{kind: c.kind, program: path}, nil
		}
	}
	return nil, ErrNoSynthesizer
}

func (s *CommandSynthesizer) Voices(ctx context.Context) ([]speech.Voice, error) {
	switch s.kind {
	case kindEspeak:
		out, err := exec.CommandContext(ctx, s.program, "--voices").Output()
		if err != nil {
			return nil, fmt.Errorf("listing espeak voices: %w", err)
		}
		return parseEspeakVoices(out), nil
	case kindSay:
		out, err := exec.CommandContext(ctx, s.program, "-v", "?").Output()
		if err != nil {
			return nil, fmt.Errorf("listing say voices: %w", err)
		}
		return parseSayVoices(out), nil
	default:
		return []speech.Voice{{ID: "default", Name: "Command default", Lang: "und"}}, nil
	}
}

// parseEspeakVoices reads the table printed by `espeak-ng --voices`. The
// voice file identifies a voice; several voices can share a language.
func parseEspeakVoices(out []byte) []speech.Voice {
	var voices []speech.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) < 5 || f[0] == "Pty" {
			continue
		}
		voices = append(voices, speech.Voice{
			ID:   f[4],
			Name: strings.ReplaceAll(f[3], "_", " "),
			Lang: f[1],
		})
	}
	return voices
}

// parseSayVoices reads `say -v ?` lines such as
// "Monica              es_ES    # Hola, me llamo Mónica.".
func parseSayVoices(out []byte) []speech.Voice {
	var voices []speech.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line, _, _ := strings.Cut(sc.Text(), "#")
		f := strings.Fields(line)
		if len(f) < 2 {
			continue
		}
		name := strings.Join(f[:len(f)-1], " ")
		voices = append(voices, speech.Voice{
			ID:   name,
			Name: name,
			Lang: strings.ReplaceAll(f[len(f)-1], "_", "-"),
		})
	}
	return voices
}

func (s *CommandSynthesizer) command(u speech.Utterance) *exec.Cmd {
	var cmd *exec.Cmd
	switch s.kind {
	case kindEspeak:
		voice := u.Voice
		if voice == "" {
			voice = baseLanguage(u.Lang)
		}
		cmd = exec.Command(s.program, "-v", voice)
	case kindSay:
		if u.Voice != "" {
			cmd = exec.Command(s.program, "-v", u.Voice)
		} else {
			cmd = exec.Command(s.program)
		}
	default:
		cmd = exec.Command("sh", "-c", s.program)
		cmd.Env = append(os.Environ(), "MURMUR_VOICE="+u.Voice, "MURMUR_LANG="+u.Lang)
	}
	cmd.Stdin = strings.NewReader(u.Text)
	ownGroup(cmd)
	return cmd
}

func baseLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return "en"
	}
	b, _ := t.Base()
	return b.String()
}

func (s *CommandSynthesizer) Speak(u speech.Utterance, sink func(speech.EngineEvent)) error {
	cmd := s.command(u)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting synthesizer: %w", err)
	}
	s.mu.Lock()
	s.cmd = cmd
	s.paused = false
	s.mu.Unlock()

	go func() {
		sink(speech.EngineEvent{Kind: speech.EngineStarted})
		err := cmd.Wait()

		s.mu.Lock()
		cancelled := s.cmd != cmd
		if !cancelled {
			s.cmd = nil
		}
		s.mu.Unlock()

		if err != nil && !cancelled {
			sink(speech.EngineEvent{Kind: speech.EngineError, Err: fmt.Errorf("synthesizer: %w", err)})
			return
		}
		sink(speech.EngineEvent{Kind: speech.EngineEnded})
	}()
	return nil
}

func (s *CommandSynthesizer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.paused {
		return nil
	}
	if err := pauseProcess(s.cmd.Process); err != nil {
		return err
	}
	s.paused = true
	return nil
}

func (s *CommandSynthesizer) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || !s.paused {
		return nil
	}
	if err := resumeProcess(s.cmd.Process); err != nil {
		return err
	}
	s.paused = false
	return nil
}

func (s *CommandSynthesizer) Cancel() error {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.paused = false
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := killProcess(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("killing synthesizer failed", "error", err)
		return err
	}
	return nil
}
