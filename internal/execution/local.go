package execution

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

const maxLineBytes = 1 << 20

// LocalRunner executes allow-listed commands on the host inside Dir.
type LocalRunner struct {
	Dir     string
	Allowed map[string]struct{}
	Env     []string
	Logger  *slog.Logger
}

// NewLocalRunner returns a runner restricted to the given command names.
func NewLocalRunner(dir string, allowed []string, logger *slog.Logger) *LocalRunner {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	return &LocalRunner{Dir: dir, Allowed: set, Logger: logger}
}

// Run starts cmd and yields start, stdout/stderr lines, then exit or error.
func (r *LocalRunner) Run(ctx context.Context, cmd Command) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if _, ok := r.Allowed[filepath.Base(cmd.Command)]; !ok || cmd.Command != filepath.Base(cmd.Command) {
			yield(Event{Type: EventError, Message: fmt.Sprintf("%s: %s", ErrNotAllowed, cmd.Command)}, nil)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		c := exec.CommandContext(ctx, cmd.Command, cmd.Args...)
		c.Dir = r.Dir
		if len(r.Env) > 0 {
			c.Env = append(c.Environ(), r.Env...)
		}
		stdout, err := c.StdoutPipe()
		if err != nil {
			yield(Event{Type: EventError, Message: err.Error()}, nil)
			return
		}
		stderr, err := c.StderrPipe()
		if err != nil {
			yield(Event{Type: EventError, Message: err.Error()}, nil)
			return
		}
		if err := c.Start(); err != nil {
			yield(Event{Type: EventError, Message: err.Error()}, nil)
			return
		}
		r.Logger.Info("Command started", "command", cmd.String(), "pid", c.Process.Pid)

		if !yield(Event{Type: EventStart, Text: cmd.String()}, nil) {
			cancel()
			_ = c.Wait()
			return
		}

		lines := make(chan Event)
		var g errgroup.Group
		g.Go(func() error { return ScanLines(ctx, stdout, EventStdout, lines) })
		g.Go(func() error { return ScanLines(ctx, stderr, EventStderr, lines) })

		readErr := make(chan error, 1)
		go func() {
			readErr <- g.Wait()
			close(lines)
		}()

		stopped := false
		for ev := range lines {
			if stopped {
				continue
			}
			if !yield(ev, nil) {
				stopped = true
				cancel()
			}
		}
		scanErr := <-readErr
		waitErr := c.Wait()
		if stopped {
			return
		}

		if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
			r.Logger.Warn("Command output read failed", "command", cmd.String(), "error", scanErr)
		}

		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
			yield(Exit(0), nil)
		case errors.As(waitErr, &exitErr):
			yield(Exit(exitErr.ExitCode()), nil)
		default:
			yield(Event{Type: EventError, Message: waitErr.Error()}, nil)
		}
	}
}

// ScanLines sends each line of r to out as an event of type typ until EOF
// or cancellation. A line longer than the scanner limit ends line delivery
// but r is still read to EOF so the writer never blocks on a full pipe.
func ScanLines(ctx context.Context, r io.Reader, typ EventType, out chan<- Event) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		select {
		case out <- Event{Type: typ, Text: sc.Text()}:
		case <-ctx.Done():
			_, _ = io.Copy(io.Discard, r)
			return ctx.Err()
		}
	}
	err := sc.Err()
	if err == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, r)
	if errors.Is(err, bufio.ErrTooLong) {
		select {
		case out <- Event{Type: typ, Text: fmt.Sprintf("[output line exceeds %d bytes, rest of stream discarded]", maxLineBytes)}:
		case <-ctx.Done():
		}
	}
	return err
}
