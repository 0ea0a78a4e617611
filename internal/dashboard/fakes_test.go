package dashboard

import (
	"context"
	"iter"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/deps"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/execution"
	"github.com/ashureev/agentdash/internal/schedule"
	"github.com/ashureev/agentdash/internal/store"
)

const cardCode = "export default function Card() {\n  return <div className=\"p-4\">Card</div>\n}\n"

type fakeGen struct {
	mu        sync.Mutex
	reqs      []agent.Request
	code      string
	required  []string
	chat      string
	blockChat bool

	// planRelease, when set, holds plan replies until it is closed.
	planRelease chan struct{}
}

func (g *fakeGen) Generate(ctx context.Context, req agent.Request) (*agent.Response, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	code, required, chat, block, release := g.code, g.required, g.chat, g.blockChat, g.planRelease
	g.mu.Unlock()

	if req.Task == agent.TaskChat {
		if req.System == agent.PlanSystem {
			if release == nil {
				return &agent.Response{Text: "Render a card with a title."}, nil
			}
			select {
			case <-release:
				return &agent.Response{Text: "Late plan."}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &agent.Response{Text: chat}, nil
	}
	return &agent.Response{Code: code, RequiredPackages: required}, nil
}

func (g *fakeGen) Close() {}

func (g *fakeGen) requests(task agent.Task, system string) []agent.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []agent.Request
	for _, r := range g.reqs {
		if r.Task == task && r.System == system {
			out = append(out, r)
		}
	}
	return out
}

type fakeFiles struct {
	mu    sync.Mutex
	files map[string]string
}

func newFakeFiles(seed map[string]string) *fakeFiles {
	f := &fakeFiles{files: map[string]string{}}
	for k, v := range seed {
		f.files[k] = v
	}
	return f
}

func (f *fakeFiles) ListFiles(context.Context) ([]domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.File, 0, len(f.files))
	for p, c := range f.files {
		out = append(out, domain.File{Path: p, Content: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *fakeFiles) GetFile(_ context.Context, p string) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.files[p]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &domain.File{Path: p, Content: c}, nil
}

func (f *fakeFiles) PutFile(_ context.Context, p, content string) (*domain.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = content
	return &domain.File{Path: p, Content: content}, nil
}

func (f *fakeFiles) get(p string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[p]
}

type fakeExec struct {
	mu     sync.Mutex
	cmds   []string
	result func(cmd execution.Command) (string, int)
}

func (f *fakeExec) Run(_ context.Context, cmd execution.Command) iter.Seq2[execution.Event, error] {
	f.mu.Lock()
	f.cmds = append(f.cmds, cmd.String())
	result := f.result
	f.mu.Unlock()

	out, code := "done", 0
	if result != nil {
		out, code = result(cmd)
	}
	return func(yield func(execution.Event, error) bool) {
		if !yield(execution.Event{Type: execution.EventStart}, nil) {
			return
		}
		if !yield(execution.Event{Type: execution.EventStderr, Text: out}, nil) {
			return
		}
		yield(execution.Exit(code), nil)
	}
}

func (f *fakeExec) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

type fakeChats struct {
	mu      sync.Mutex
	created []string
	updates []string
	loaded  *domain.Chat
	last    []domain.ChatMessage
}

func (f *fakeChats) CreateChat(_ context.Context, title string, msgs []domain.ChatMessage) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, title)
	f.last = msgs
	return &domain.Chat{ID: "chat-1", Title: title}, nil
}

func (f *fakeChats) UpdateChat(_ context.Context, id string, _ *string, msgs []domain.ChatMessage) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id)
	f.last = msgs
	return &domain.Chat{ID: id}, nil
}

func (f *fakeChats) GetChat(_ context.Context, id string) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded == nil || f.loaded.ID != id {
		return nil, store.ErrNotFound
	}
	c := *f.loaded
	return &c, nil
}

type fixture struct {
	svc   *Service
	clock *schedule.Manual
	gen   *fakeGen
	files *fakeFiles
	exec  *fakeExec
	known *deps.Known
}

func inline(fn func()) { fn() }

// background runs spawned work on goroutines tracked by wg.
func background(wg *sync.WaitGroup) func(func()) {
	return func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	fx := &fixture{
		clock: schedule.NewManual(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		gen:   &fakeGen{code: cardCode, chat: "Hi! Ask me to build a component."},
		files: newFakeFiles(nil),
		exec:  &fakeExec{},
		known: deps.NewKnown("react", "react-dom"),
	}
	opts := Options{
		Generator: fx.gen,
		Files:     fx.files,
		Executor:  fx.exec,
		Scheduler: fx.clock,
		Known:     fx.known,
		UserID:    "u1",
		SessionID: "s1",
		Spawn:     inline,
	}
	if mutate != nil {
		mutate(&opts)
	}
	fx.svc = New(opts)
	t.Cleanup(fx.svc.Close)
	return fx
}

func kinds(msgs []domain.ChatMessage) []domain.MessageKind {
	out := make([]domain.MessageKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}
