package launcher

import (
	"fmt"
	"os"
	"os/exec"
)

// Proc is a running game process.
type Proc interface {
	PID() int
	// Stop requests termination. The exit still arrives on Done.
	Stop() error
	// Done yields the process exit exactly once: nil for a clean exit, the
	// wait error otherwise.
	Done() <-chan error
}

// Starter spawns game processes. The production implementation wraps
// os/exec; tests inject a fake.
type Starter interface {
	Start(argv []string) (Proc, error)
}

// ExecStarter starts real processes with os/exec, resolving the binary via
// PATH and forwarding its output to ours.
type ExecStarter struct{}

// Start implements [Starter]. It does not block; the exit is reported
// asynchronously through the returned Proc.
func (ExecStarter) Start(argv []string) (Proc, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", argv[0], err)
	}

	p := &execProc{cmd: cmd, done: make(chan error, 1)}
	go func() {
		p.done <- cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

type execProc struct {
	cmd  *exec.Cmd
	done chan error
}

func (p *execProc) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProc) Stop() error {
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *execProc) Done() <-chan error {
	return p.done
}
