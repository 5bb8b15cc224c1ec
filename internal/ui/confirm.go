package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"murmur/internal/session"
)

var errNotAttached = errors.New("confirmer is not attached to a program")

type confirmRequestMsg struct {
	prompt session.Prompt
	reply  chan<- session.Decision
}

// Confirmer shows a confirmation modal in the running program and waits for
// the user's answer.
type Confirmer struct {
	send func(tea.Msg)
}

func NewConfirmer() *Confirmer {
	return &Confirmer{}
}

// Attach sets the function used to reach the program, usually Program.Send.
func (c *Confirmer) Attach(send func(tea.Msg)) {
	c.send = send
}

func (c *Confirmer) Confirm(ctx context.Context, p session.Prompt) (session.Decision, error) {
	if c.send == nil {
		return session.Cancelled, errNotAttached
	}
	reply := make(chan session.Decision, 1)
	c.send(confirmRequestMsg{prompt: p, reply: reply})
	select {
	case d := <-reply:
		return d, nil
	case <-ctx.Done():
		return session.Cancelled, ctx.Err()
	}
}

// answer resolves the open confirmation and closes the modal.
func (m *Model) answer(d session.Decision) {
	if m.Confirm == nil {
		return
	}
	m.Confirm.reply <- d
	m.Confirm = nil
	m.Modal = modalNone
}
