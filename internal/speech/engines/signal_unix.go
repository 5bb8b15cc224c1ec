//go:build unix

package engines

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// ownGroup starts cmd in a process group of its own so that signals reach
// any children a shell command spawns.
func ownGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func pauseProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGSTOP)
}

func resumeProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGCONT)
}

func killProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}
