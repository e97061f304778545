package throttle

import (
	"github.com/shirou/gopsutil/v4/process"
)

// OSProcess adapts a live PID to ProcessControl with SIGSTOP/SIGCONT
// semantics. Signal errors surface to the caller, but the race against
// process exit is unavoidable, so the governor treats them as best-effort.
type OSProcess struct {
	p *process.Process
}

// NewOSProcess wraps pid. Fails when no such process exists.
func NewOSProcess(pid int) (*OSProcess, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	return &OSProcess{p: p}, nil
}

func (o *OSProcess) Suspend() error { return o.p.Suspend() }

func (o *OSProcess) Resume() error { return o.p.Resume() }

// Alive reports whether the process still runs; zombies count as dead.
func (o *OSProcess) Alive() bool {
	running, err := o.p.IsRunning()
	return err == nil && running
}
