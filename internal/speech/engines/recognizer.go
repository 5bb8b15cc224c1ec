package engines

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"murmur/internal/speech"
)

// CommandRecognizer runs a transcription command for each recognition
// session. The command gets the BCP 47 language in MURMUR_LANG and prints one
// line per result: "~text" is an interim transcript, "!code" an error, any
// other non-empty line the final transcript.
type CommandRecognizer struct {
	command string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewCommandRecognizer(command string) *CommandRecognizer {
	return &CommandRecognizer{command: strings.TrimSpace(command)}
}

// Available reports whether a transcription command is configured.
func (r *CommandRecognizer) Available() bool {
	return r.command != ""
}

func (r *CommandRecognizer) Start(lang string, sink func(speech.RecognitionEvent)) error {
	if !r.Available() {
		return &speech.InputError{Code: speech.Unsupported}
	}

	cmd := exec.Command("sh", "-c", r.command)
	cmd.Env = append(os.Environ(), "MURMUR_LANG="+lang)
	cmd.Stderr = io.Discard
	ownGroup(cmd)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("recognizer stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting recognizer: %w", err)
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	go r.read(cmd, out, sink)
	return nil
}

func (r *CommandRecognizer) read(cmd *exec.Cmd, out io.Reader, sink func(speech.RecognitionEvent)) {
	settled := false
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		ev, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		if ev.Kind == speech.RecognitionFinal || ev.Kind == speech.RecognitionError {
			settled = true
		}
		sink(ev)
	}
	err := cmd.Wait()

	r.mu.Lock()
	stopped := r.cmd != cmd
	if !stopped {
		r.cmd = nil
	}
	r.mu.Unlock()

	switch {
	case settled || stopped:
	case err != nil:
		slog.Warn("recognizer exited", "error", err)
		sink(speech.RecognitionEvent{Kind: speech.RecognitionError, Code: "command-failed"})
	default:
		sink(speech.RecognitionEvent{Kind: speech.RecognitionError, Code: "no-speech"})
	}
	sink(speech.RecognitionEvent{Kind: speech.RecognitionEnd})
}

func parseLine(line string) (speech.RecognitionEvent, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return speech.RecognitionEvent{}, false
	case strings.HasPrefix(line, "~"):
		return speech.RecognitionEvent{Kind: speech.RecognitionInterim, Text: strings.TrimSpace(line[1:])}, true
	case strings.HasPrefix(line, "!"):
		return speech.RecognitionEvent{Kind: speech.RecognitionError, Code: strings.TrimSpace(line[1:])}, true
	default:
		return speech.RecognitionEvent{Kind: speech.RecognitionFinal, Text: line}, true
	}
}

func (r *CommandRecognizer) Stop() error {
	r.mu.Lock()
	cmd := r.cmd
	r.cmd = nil
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := killProcess(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("stopping recognizer: %w", err)
	}
	return nil
}
