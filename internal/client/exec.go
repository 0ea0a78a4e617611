package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/ashureev/agentdash/internal/execution"
)

var _ execution.Executor = (*Exec)(nil)

const maxLineBytes = 1 << 20

// Exec runs commands on a remote command-execution service and decodes its
// NDJSON event stream.
type Exec struct {
	base
}

// NewExec creates an exec client. The stream has no overall timeout, so a
// nil hc gets a client without one; bound calls through ctx instead.
func NewExec(baseURL string, hc *http.Client) *Exec {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Exec{base: newBase(baseURL, hc)}
}

// Run posts cmd and yields each decoded record. Blank and malformed lines are
// skipped. The sequence stops after an exit or error event.
func (c *Exec) Run(ctx context.Context, cmd execution.Command) iter.Seq2[execution.Event, error] {
	return func(yield func(execution.Event, error) bool) {
		resp, err := c.send(ctx, http.MethodPost, "/api/exec", cmd)
		if err != nil {
			yield(execution.Event{}, err)
			return
		}
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev execution.Event
			if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
				continue
			}
			if !yield(ev, nil) {
				return
			}
			if ev.Type == execution.EventExit || ev.Type == execution.EventError {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(execution.Event{}, fmt.Errorf("read exec stream: %w", err))
		}
	}
}
