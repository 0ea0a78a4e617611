// Package execution runs install and build commands and streams their output.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
)

// EventType tags one record of a command's output stream.
type EventType string

const (
	EventStart  EventType = "start"
	EventStdout EventType = "stdout"
	EventStderr EventType = "stderr"
	EventExit   EventType = "exit"
	EventError  EventType = "error"
)

// Event is one NDJSON record of the command-execution stream.
type Event struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Message string    `json:"message,omitempty"`
	Code    *int      `json:"code,omitempty"`
}

// Exit builds an exit event carrying code.
func Exit(code int) Event {
	return Event{Type: EventExit, Code: &code}
}

// Command is a request to run name with args.
type Command struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

func (c Command) String() string {
	s := c.Command
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// Executor runs commands. The sequence ends after an exit or error event, or
// with a non-nil error when the stream itself broke.
type Executor interface {
	Run(ctx context.Context, cmd Command) iter.Seq2[Event, error]
}

var (
	// ErrCommandFailed reports a non-zero exit or an error event.
	ErrCommandFailed = errors.New("command failed")
	// ErrNotAllowed rejects commands outside the runner's allow-list.
	ErrNotAllowed = errors.New("command not allowed")
)

// Drain consumes the stream for cmd, copying stdout and stderr text into out.
// It returns the exit code and a wrapped ErrCommandFailed unless the command
// exited with zero.
func Drain(ctx context.Context, ex Executor, cmd Command, out io.Writer) (int, error) {
	if out == nil {
		out = io.Discard
	}
	for ev, err := range ex.Run(ctx, cmd) {
		if err != nil {
			return -1, fmt.Errorf("run %s: %w", cmd, err)
		}
		switch ev.Type {
		case EventStdout, EventStderr:
			_, _ = io.WriteString(out, ev.Text)
			if len(ev.Text) == 0 || ev.Text[len(ev.Text)-1] != '\n' {
				_, _ = io.WriteString(out, "\n")
			}
		case EventError:
			return -1, fmt.Errorf("%w: %s: %s", ErrCommandFailed, cmd, ev.Message)
		case EventExit:
			code := 0
			if ev.Code != nil {
				code = *ev.Code
			}
			if code != 0 {
				return code, fmt.Errorf("%w: %s exited with code %d", ErrCommandFailed, cmd, code)
			}
			return 0, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	return -1, fmt.Errorf("%w: %s: stream ended without exit", ErrCommandFailed, cmd)
}
