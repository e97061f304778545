package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/backmassage/davpress/internal/display"
	"github.com/backmassage/davpress/internal/throttle"
)

// DefaultStallWindow is how long the supervisor tolerates an encoder that
// emits no usable progress before killing it. Sixty seconds is far beyond
// any legitimate gap between -progress blocks.
const DefaultStallWindow = 60 * time.Second

// Logger is the logging surface the supervisor needs. *logging.Logger
// satisfies it.
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(verbose bool, format string, args ...interface{})
}

// Job is one supervised encoder invocation.
type Job struct {
	Args        []string // full command line; Args[0] is the binary
	DurationSec float64  // probed source duration; 0 disables percent math
}

// Result carries what the supervisor observed about a finished encode.
type Result struct {
	OutputBytes int64 // last total_size report; 0 if never seen
	Elapsed     time.Duration
	Suspensions int     // throttle pauses during the encode
	PeakCPU     float64 // highest smoothed system CPU seen
}

// Executor runs encoder commands under supervision: it follows the
// -progress stream for percent and ETA logging, kills a process that stops
// reporting, kills on context cancellation, and keeps system CPU under the
// ceiling through the throttle governor.
type Executor struct {
	Log      Logger
	Verbose  bool
	CPULimit float64       // system CPU ceiling in percent; <=0 disables throttling
	Stall    time.Duration // zero means DefaultStallWindow

	// Test seams; Run falls back to the real implementations when nil.
	start func(args []string) (encodeProc, error)
	now   func() time.Time
}

// NewExecutor returns a production executor writing through log.
func NewExecutor(log Logger, verbose bool, cpuLimit float64) *Executor {
	return &Executor{
		Log:      log,
		Verbose:  verbose,
		CPULimit: cpuLimit,
	}
}

// encodeProc abstracts a started encoder process so tests can script one.
type encodeProc interface {
	Progress() io.Reader // the -progress stream (stdout)
	Wait() (int, error)  // exit code; error only when waiting itself fails
	Kill()
	Pid() int
	Stderr() string // captured stderr, valid after Wait
}

// Run starts the job and supervises it to completion. The returned error is
// ErrStalled, ErrCancelled, an *EncodeError for a non-zero exit, or a
// wrapped start/wait failure. The Result is meaningful even on error.
func (e *Executor) Run(ctx context.Context, job Job) (Result, error) {
	starter := e.start
	if starter == nil {
		starter = startEncoder
	}
	now := e.now
	if now == nil {
		now = time.Now
	}
	window := e.Stall
	if window <= 0 {
		window = DefaultStallWindow
	}

	began := now()
	proc, err := starter(job.Args)
	if err != nil {
		return Result{}, fmt.Errorf("starting encoder: %w", err)
	}

	// The governor runs on its own context so it can deliver the final
	// resume even after the job context is cancelled.
	var throttleDone chan throttle.Result
	stopThrottle := func() {}
	if e.CPULimit > 0 {
		if pc, perr := throttle.NewOSProcess(proc.Pid()); perr == nil {
			tctx, cancel := context.WithCancel(context.Background())
			stopThrottle = cancel
			gov := throttle.NewGovernor(e.CPULimit, pc, e.Log)
			throttleDone = make(chan throttle.Result, 1)
			go func() { throttleDone <- gov.Run(tctx) }()
		} else {
			e.Log.Warn("CPU throttle unavailable: %v", perr)
		}
	}

	// Reader goroutine: ends at pipe EOF, which both normal exit and kill
	// produce. The loop below never abandons the channel, so the send
	// cannot leak.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(proc.Progress())
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	stall := time.NewTimer(window)
	defer stall.Stop()

	var res Result
	var killReason error
	nextLog := 10
	done := ctx.Done()

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			key, value, found := strings.Cut(strings.TrimSpace(line), "=")
			if !found {
				continue
			}
			switch key {
			case "out_time_ms":
				// Microseconds, despite the name.
				pct, ok := percentFromOutTime(value, job.DurationSec)
				if !ok {
					continue
				}
				if killReason == nil {
					stall.Reset(window)
				}
				if pct >= nextLog {
					if eta, ok := etaSeconds(now().Sub(began), pct); ok {
						e.Log.Info("  %d%% done, about %s left", pct, display.FormatClock(eta))
					} else {
						e.Log.Info("  %d%% done", pct)
					}
					nextLog = pct - pct%10 + 10
				}
			case "total_size":
				n, ok := sizeFromTotal(value)
				if !ok {
					continue
				}
				res.OutputBytes = n
				if killReason == nil {
					stall.Reset(window)
				}
			}

		case <-stall.C:
			if killReason == nil {
				killReason = ErrStalled
				e.Log.Error("no progress for %s, killing encoder", window)
				proc.Kill()
			}

		case <-done:
			if killReason == nil {
				killReason = ErrCancelled
				proc.Kill()
			}
			done = nil
		}
	}

	code, waitErr := proc.Wait()

	stopThrottle()
	if throttleDone != nil {
		tres := <-throttleDone
		res.Suspensions = tres.Suspensions
		res.PeakCPU = tres.PeakCPU
		if tres.Suspensions > 0 {
			e.Log.Debug(e.Verbose, "throttle: %d pauses, peak CPU %.0f%%", tres.Suspensions, tres.PeakCPU)
		}
	}

	res.Elapsed = now().Sub(began)

	switch {
	case killReason != nil:
		return res, killReason
	case waitErr != nil:
		return res, fmt.Errorf("waiting for encoder: %w", waitErr)
	case code != 0:
		return res, &EncodeError{ExitCode: code, Stderr: proc.Stderr()}
	}
	return res, nil
}

// osProc is the production encodeProc over os/exec. The command is started
// without CommandContext on purpose: the supervisor owns the kill, so a
// finished encode is never misreported as cancelled when the context ends
// in the same instant.
type osProc struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	errBuf bytes.Buffer
}

func startEncoder(args []string) (encodeProc, error) {
	p := &osProc{cmd: exec.Command(args[0], args[1:]...)}
	p.cmd.Stderr = &p.errBuf

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	p.stdout = stdout

	if err := p.cmd.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *osProc) Progress() io.Reader { return p.stdout }

func (p *osProc) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var xe *exec.ExitError
	if errors.As(err, &xe) {
		return xe.ExitCode(), nil
	}
	return -1, err
}

func (p *osProc) Kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *osProc) Pid() int {
	if p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

func (p *osProc) Stderr() string { return p.errBuf.String() }
