package execution

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"
)

func TestTailKeepsMostRecentBytes(t *testing.T) {
	tail := NewTail(8)
	_, _ = tail.Write([]byte("abcdef"))
	if tail.String() != "abcdef" || tail.Len() != 6 {
		t.Fatalf("before wrap: %q len=%d", tail.String(), tail.Len())
	}
	_, _ = tail.Write([]byte("ghijk"))
	if tail.String() != "defghijk" || tail.Len() != 8 {
		t.Fatalf("after wrap: %q len=%d", tail.String(), tail.Len())
	}
	tail.Reset()
	if tail.String() != "" || tail.Len() != 0 {
		t.Fatal("expected empty buffer after Reset")
	}
}

func TestTailDropsPartialLeadingRune(t *testing.T) {
	tail := NewTail(4)
	_, _ = tail.Write([]byte("a✓b")) // ✓ is three bytes
	_, _ = tail.Write([]byte("c"))
	// Buffer holds the last 4 bytes: two continuation bytes of ✓, "b", "c".
	if got := tail.String(); got != "bc" {
		t.Fatalf("String() = %q", got)
	}
}

type fakeExecutor struct {
	events []Event
	err    error
	calls  []Command
}

func (f *fakeExecutor) Run(_ context.Context, cmd Command) iter.Seq2[Event, error] {
	f.calls = append(f.calls, cmd)
	return func(yield func(Event, error) bool) {
		for _, ev := range f.events {
			if !yield(ev, nil) {
				return
			}
		}
		if f.err != nil {
			yield(Event{}, f.err)
		}
	}
}

func TestDrain(t *testing.T) {
	ok := &fakeExecutor{events: []Event{{Type: EventStart}, {Type: EventStdout, Text: "built"}, Exit(0)}}
	tail := NewTail(0)
	code, err := Drain(context.Background(), ok, Command{Command: "npm", Args: []string{"run", "build"}}, tail)
	if err != nil || code != 0 {
		t.Fatalf("Drain() = %d, %v", code, err)
	}
	if tail.String() != "built\n" {
		t.Fatalf("tail = %q", tail.String())
	}

	failing := &fakeExecutor{events: []Event{{Type: EventStderr, Text: "TS2307"}, Exit(2)}}
	code, err = Drain(context.Background(), failing, Command{Command: "npm"}, nil)
	if !errors.Is(err, ErrCommandFailed) || code != 2 {
		t.Fatalf("Drain(failing) = %d, %v", code, err)
	}

	errored := &fakeExecutor{events: []Event{{Type: EventError, Message: "spawn failed"}}}
	if _, err := Drain(context.Background(), errored, Command{Command: "npm"}, nil); !errors.Is(err, ErrCommandFailed) || !strings.Contains(err.Error(), "spawn failed") {
		t.Fatalf("Drain(errored) error = %v", err)
	}

	broken := &fakeExecutor{err: errors.New("connection reset")}
	if _, err := Drain(context.Background(), broken, Command{Command: "npm"}, nil); err == nil || errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Drain(broken) error = %v", err)
	}

	truncated := &fakeExecutor{events: []Event{{Type: EventStart}}}
	if _, err := Drain(context.Background(), truncated, Command{Command: "npm"}, nil); !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Drain(truncated) error = %v", err)
	}
}

func TestLocalRunnerStreamsOutputAndExitCode(t *testing.T) {
	r := NewLocalRunner(t.TempDir(), []string{"sh"}, nil)

	var types []EventType
	var stdout, stderr []string
	var exit *int
	for ev, err := range r.Run(context.Background(), Command{Command: "sh", Args: []string{"-c", "echo out; echo err 1>&2; exit 3"}}) {
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
		types = append(types, ev.Type)
		switch ev.Type {
		case EventStdout:
			stdout = append(stdout, ev.Text)
		case EventStderr:
			stderr = append(stderr, ev.Text)
		case EventExit:
			exit = ev.Code
		}
	}

	if len(types) == 0 || types[0] != EventStart || types[len(types)-1] != EventExit {
		t.Fatalf("unexpected event order %v", types)
	}
	if len(stdout) != 1 || stdout[0] != "out" || len(stderr) != 1 || stderr[0] != "err" {
		t.Fatalf("stdout=%v stderr=%v", stdout, stderr)
	}
	if exit == nil || *exit != 3 {
		t.Fatalf("exit code = %v", exit)
	}
}

func TestLocalRunnerRejectsUnlistedCommands(t *testing.T) {
	r := NewLocalRunner(t.TempDir(), []string{"npm"}, nil)
	for _, name := range []string{"rm", "/usr/bin/npm"} {
		var got []Event
		for ev, err := range r.Run(context.Background(), Command{Command: name}) {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, ev)
		}
		if len(got) != 1 || got[0].Type != EventError || !strings.Contains(got[0].Message, ErrNotAllowed.Error()) {
			t.Fatalf("%s: events = %+v", name, got)
		}
	}
}

func TestLocalRunnerStopsWhenConsumerBreaks(t *testing.T) {
	r := NewLocalRunner(t.TempDir(), []string{"sh"}, nil)
	seen := 0
	for ev := range r.Run(context.Background(), Command{Command: "sh", Args: []string{"-c", "while true; do echo tick; sleep 0.01; done"}}) {
		if ev.Type == EventStdout {
			seen++
			if seen == 3 {
				break
			}
		}
	}
	if seen != 3 {
		t.Fatalf("seen = %d", seen)
	}
}

func TestLocalRunnerFinishesAfterOversizedLine(t *testing.T) {
	r := NewLocalRunner(t.TempDir(), []string{"sh"}, nil)
	script := "echo first; head -c 2097152 /dev/zero | tr '\\0' a; echo; " +
		"head -c 1048576 /dev/zero | tr '\\0' b; echo; echo last 1>&2; exit 3"

	type result struct {
		code int
		err  error
	}
	done := make(chan result, 1)
	tail := NewTail(4096)
	go func() {
		code, err := Drain(context.Background(), r, Command{Command: "sh", Args: []string{"-c", script}}, tail)
		done <- result{code, err}
	}()

	select {
	case res := <-done:
		if res.code != 3 || !errors.Is(res.err, ErrCommandFailed) {
			t.Fatalf("Drain() = %d, %v", res.code, res.err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Drain did not return after an oversized output line")
	}
	out := tail.String()
	if !strings.Contains(out, "first") || !strings.Contains(out, "rest of stream discarded") || !strings.Contains(out, "last") {
		t.Fatalf("tail = %q", out)
	}
}
