//go:build !unix

package engines

import (
	"errors"
	"os"
	"os/exec"
)

var errPauseUnsupported = errors.New("pausing speech is not supported on this platform")

func ownGroup(*exec.Cmd) {}

func pauseProcess(*os.Process) error  { return errPauseUnsupported }
func resumeProcess(*os.Process) error { return errPauseUnsupported }

func killProcess(p *os.Process) error {
	return p.Kill()
}
