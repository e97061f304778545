// Package throttle keeps the encoder's system-wide CPU footprint under a
// configured ceiling. A governor samples total CPU utilization while the
// encode process runs and suspends or resumes the process in a closed loop,
// smoothing samples with an EMA and holding each state for a minimum time so
// load spikes cannot thrash the process with signals.
package throttle

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

// ProcessControl is the capability the governor needs over the supervised
// process. The production implementation signals a real OS process; tests
// substitute a fake.
type ProcessControl interface {
	Suspend() error
	Resume() error
	Alive() bool
}

// Logger is the logging surface the governor needs. *logging.Logger
// satisfies it.
type Logger interface {
	Info(format string, args ...interface{})
}

// Loop tuning. The sample window dominates the control latency: one
// iteration is one blocking sample plus one idle tick.
const (
	SamplePeriod  = 500 * time.Millisecond
	idleTick      = 50 * time.Millisecond
	emaAlpha      = 0.3
	hysteresisPts = 10.0
	minRunning    = 600 * time.Millisecond
	minSuspended  = 400 * time.Millisecond
)

type govState int

const (
	stateRunning govState = iota
	stateSuspended
)

// Result summarizes one governed encode for the supervisor's debug logging.
type Result struct {
	Suspensions int
	PeakCPU     float64 // Highest smoothed utilization observed.
}

// Governor runs the throttle loop for a single encode. One governor serves
// one process and never outlives it.
type Governor struct {
	ceiling float64
	proc    ProcessControl
	log     Logger

	// Injection points for tests.
	sample func(ctx context.Context) (float64, error)
	now    func() time.Time
	tick   func(ctx context.Context, d time.Duration) bool
}

// NewGovernor returns a governor that keeps system CPU below ceiling (in
// percent) while proc runs.
func NewGovernor(ceiling float64, proc ProcessControl, log Logger) *Governor {
	return &Governor{
		ceiling: ceiling,
		proc:    proc,
		log:     log,
		sample:  systemCPUPercent,
		now:     time.Now,
		tick:    sleepTick,
	}
}

// Run drives the throttle loop until ctx is cancelled or the process exits.
// Whatever the exit path, a process left suspended is resumed: the governor
// must never strand a SIGSTOPped encoder.
func (g *Governor) Run(ctx context.Context) Result {
	var res Result
	st := stateRunning
	lastSwitch := g.now()
	var ema float64
	seeded := false

	for g.proc.Alive() && ctx.Err() == nil {
		pct, err := g.sample(ctx)
		if err == nil {
			if !seeded {
				ema = pct
				seeded = true
			} else {
				ema = emaAlpha*pct + (1-emaAlpha)*ema
			}
			if ema > res.PeakCPU {
				res.PeakCPU = ema
			}

			now := g.now()
			switch st {
			case stateRunning:
				if ema > g.ceiling && now.Sub(lastSwitch) >= minRunning && g.proc.Alive() {
					_ = g.proc.Suspend()
					st = stateSuspended
					lastSwitch = now
					res.Suspensions++
					g.log.Info("CPU %.0f%% over the %.0f%% ceiling; encoder paused", ema, g.ceiling)
				}
			case stateSuspended:
				if ema < g.ceiling-hysteresisPts && now.Sub(lastSwitch) >= minSuspended {
					_ = g.proc.Resume()
					st = stateRunning
					lastSwitch = now
					g.log.Info("CPU back to %.0f%%; encoder resumed", ema)
				}
			}
		}

		if !g.tick(ctx, idleTick) {
			break
		}
	}

	if st == stateSuspended && g.proc.Alive() {
		_ = g.proc.Resume()
		g.log.Info("encoder resumed on throttle shutdown")
	}
	return res
}

// systemCPUPercent blocks for SamplePeriod and returns system-wide CPU
// utilization in percent.
func systemCPUPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, SamplePeriod, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("empty cpu sample")
	}
	return pcts[0], nil
}

// sleepTick sleeps for d unless ctx ends first; reports whether to continue.
func sleepTick(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
