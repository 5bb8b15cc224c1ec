package engines

import (
	"net"

	"murmur/internal/speech"
)

// TerminalEnvironment reports recognition capabilities of the local machine.
// A terminal session has no insecure-origin restriction, so Secure is always
// true.
type TerminalEnvironment struct {
	Recognizer *CommandRecognizer
	interfaces func() ([]net.Interface, error)
}

func NewTerminalEnvironment(r *CommandRecognizer) *TerminalEnvironment {
	return &TerminalEnvironment{Recognizer: r, interfaces: net.Interfaces}
}

func (e *TerminalEnvironment) Capabilities() speech.Capabilities {
	return speech.Capabilities{
		Recognition: e.Recognizer != nil && e.Recognizer.Available(),
		Online:      e.online(),
		Secure:      true,
	}
}

// online reports whether any non-loopback interface is up.
func (e *TerminalEnvironment) online() bool {
	ifaces, err := e.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}
