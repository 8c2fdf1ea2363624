package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snapetech/mediaworkerr/internal/errcode"
	"github.com/snapetech/mediaworkerr/internal/log"
)

// Runner launches and supervises extractor child processes. The child
// is argv-only (never a shell), its stdin is closed, and both pipes are
// drained concurrently so it can never block on a full pipe buffer.
type Runner struct {
	bin        string
	inactivity time.Duration // kill after this long without any output line
	overall    time.Duration // wall-clock cap per child
	log        zerolog.Logger
}

func NewRunner(bin string, inactivity, overall time.Duration) *Runner {
	return &Runner{
		bin:        bin,
		inactivity: inactivity,
		overall:    overall,
		log:        log.WithComponent("ytdlp"),
	}
}

// Bin returns the resolved extractor binary path.
func (r *Runner) Bin() string { return r.bin }

// Run executes the extractor with args, invoking onStdout/onStderr for
// every output line (either may be nil). It blocks until the child
// exits and returns nil on exit 0, an *errcode.Error otherwise:
// NETWORK_TIMEOUT when a timeout killed the child, or the stderr-derived
// classification for a nonzero exit.
func (r *Runner) Run(ctx context.Context, args []string, onStdout, onStderr func(line string)) error {
	ctx, cancel := context.WithTimeout(ctx, r.overall)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.bin, args...)
	// the extractor forks helpers (ffmpeg, fragment downloaders) that
	// inherit our pipe write ends; a kill must take the whole group or
	// the drains block on the survivors until they exit on their own
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd) }
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return errcode.Wrap(errcode.UnknownError, "start extractor", err)
	}
	childStarts.Inc()
	r.log.Debug().Int("pid", cmd.Process.Pid).Strs("args", args).Msg("child started")

	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())
	touch := func() { lastActivity.Store(time.Now().UnixNano()) }

	ring := newLineRing(50)
	ringCh := make(chan string, 64)

	var g errgroup.Group
	g.Go(func() error {
		return drain(stdout, func(line string) {
			touch()
			if onStdout != nil {
				onStdout(line)
			}
		})
	})
	g.Go(func() error {
		return drain(stderr, func(line string) {
			touch()
			ringCh <- line
			if onStderr != nil {
				onStderr(line)
			}
		})
	})

	// stall watchdog: a child that stops speaking is stuck on the network
	timedOut := make(chan struct{})
	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				idle := time.Since(time.Unix(0, lastActivity.Load()))
				if idle > r.inactivity {
					close(timedOut)
					_ = killGroup(cmd)
					return
				}
			}
		}
	}()

	ringDone := make(chan struct{})
	go func() {
		defer close(ringDone)
		for line := range ringCh {
			ring.Append(line)
		}
	}()

	drainErr := g.Wait()
	close(ringCh)
	<-ringDone
	waitErr := cmd.Wait()
	cancel()
	<-watchdogDone

	stalled := false
	select {
	case <-timedOut:
		stalled = true
	default:
	}

	switch {
	case stalled:
		childExits.WithLabelValues("timeout").Inc()
		return errcode.New(errcode.NetworkTimeout,
			fmt.Sprintf("extractor produced no output for %s and was killed", r.inactivity))
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		childExits.WithLabelValues("timeout").Inc()
		return errcode.New(errcode.NetworkTimeout,
			fmt.Sprintf("extractor exceeded the %s wall-clock limit and was killed", r.overall))
	case waitErr != nil:
		childExits.WithLabelValues("error").Inc()
		tail := ring.String()
		code := errcode.Classify(tail)
		r.log.Warn().Err(waitErr).Str("code", string(code)).Msg("child exited nonzero")
		return errcode.Wrap(code, lastErrorLine(ring), waitErr)
	case drainErr != nil:
		childExits.WithLabelValues("error").Inc()
		return errcode.Wrap(errcode.UnknownError, "read child output", drainErr)
	default:
		childExits.WithLabelValues("ok").Inc()
		return nil
	}
}

// killGroup signals the child's whole process group, falling back to
// the direct child when the group is already gone.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return cmd.Process.Kill()
}

func drain(r io.Reader, fn func(line string)) error {
	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	// the pipe closes mid-read when the child is killed; that is not a
	// drain failure
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// lastErrorLine picks the most useful technical message from the tail:
// the last ERROR line if any, else the last line.
func lastErrorLine(ring *lineRing) string {
	tail := ring.Tail()
	for i := len(tail) - 1; i >= 0; i-- {
		if len(tail[i]) >= 5 && tail[i][:5] == "ERROR" {
			return tail[i]
		}
	}
	if len(tail) > 0 {
		return tail[len(tail)-1]
	}
	return "extractor failed with no output"
}
