// Package dashboard implements the agent generation orchestrator behind the
// web dashboard: staged progress narration, streamed delivery, the dependency
// gate and transcript persistence.
package dashboard

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/deps"
	"github.com/ashureev/agentdash/internal/execution"
	"github.com/ashureev/agentdash/internal/schedule"
	"github.com/ashureev/agentdash/internal/store"
)

var (
	// ErrEmptyPrompt rejects blank prompts.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNoPendingInstall is returned when no install confirmation is pending.
	ErrNoPendingInstall = deps.ErrNoPendingInstall
	// ErrNothingToFix is returned by RequestFix unless the last build failed.
	ErrNothingToFix = errors.New("no failed build to fix")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dashboard closed")
	// ErrInvalidMode rejects unknown modes.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrNoTranscripts is returned by LoadTranscript without a chat store.
	ErrNoTranscripts = errors.New("transcript store not configured")
)

// Timings are the narration delays and request timeouts.
type Timings struct {
	AnalyzeDelay  time.Duration
	GenerateDelay time.Duration
	ChatDelay     time.Duration
	ChatTimeout   time.Duration
	PlanTimeout   time.Duration
	CodeTimeout   time.Duration
}

// DefaultTimings returns the stock pacing.
func DefaultTimings() Timings {
	return Timings{
		AnalyzeDelay:  650 * time.Millisecond,
		GenerateDelay: 1450 * time.Millisecond,
		ChatDelay:     300 * time.Millisecond,
		ChatTimeout:   25 * time.Second,
		PlanTimeout:   30 * time.Second,
		CodeTimeout:   90 * time.Second,
	}
}

// Diff modes.
const (
	DiffGreedy  = "greedy"
	DiffMinimal = "minimal"
)

// Options wires a Service to its collaborators.
type Options struct {
	Generator agent.Generator
	Files     store.FileStore
	Executor  execution.Executor
	// Chats is optional; without it transcripts are not persisted.
	Chats store.ChatStore

	Scheduler schedule.Scheduler
	Timings   Timings

	Policy deps.Policy
	// Known is shared across services so packages installed by one
	// dashboard are known to all.
	Known *deps.Known

	InstallCommand []string
	BuildCommand   []string
	DiffMode       string

	UserID    string
	SessionID string

	Rand   *rand.Rand
	Logger *slog.Logger
	// Spawn runs background work. Defaults to a new goroutine.
	Spawn func(func())
}

func (o *Options) withDefaults() {
	if o.Scheduler == nil {
		o.Scheduler = schedule.NewReal()
	}
	if o.Timings == (Timings{}) {
		o.Timings = DefaultTimings()
	}
	if o.Policy.Builtins == nil && o.Policy.IgnorePrefixes == nil {
		o.Policy = deps.DefaultPolicy()
	}
	if o.Known == nil {
		o.Known = deps.NewKnown()
	}
	if len(o.InstallCommand) == 0 {
		o.InstallCommand = []string{"npm", "install"}
	}
	if len(o.BuildCommand) == 0 {
		o.BuildCommand = []string{"npm", "run", "build"}
	}
	if o.DiffMode == "" {
		o.DiffMode = DiffGreedy
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Spawn == nil {
		o.Spawn = func(fn func()) { go fn() }
	}
	if o.Generator == nil {
		o.Generator = agent.NewCanned()
	}
}

func command(argv []string, extra ...string) execution.Command {
	args := append(append([]string(nil), argv[1:]...), extra...)
	return execution.Command{Command: argv[0], Args: args}
}
