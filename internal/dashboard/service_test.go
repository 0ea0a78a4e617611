package dashboard

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/execution"
	"github.com/ashureev/agentdash/internal/target"
)

func TestGenerationSessionStages(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	id, err := fx.svc.Submit(ctx, "Create a pricing card component")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := fx.svc.Snapshot()
	if got := kinds(st.Messages); !slices.Equal(got, []domain.MessageKind{domain.KindText, domain.KindProgress}) {
		t.Fatalf("messages after submit = %v", got)
	}
	if st.Messages[1].ID != id {
		t.Fatalf("Submit returned %d, progress message is %d", id, st.Messages[1].ID)
	}
	p := st.Progress[id]
	if p.Stage != domain.StagePlanning || p.FileName != target.DefaultPath {
		t.Fatalf("progress = %+v", p)
	}
	if p.PlanText != "Render a card with a title." {
		t.Fatalf("plan text = %q", p.PlanText)
	}

	fx.clock.Advance(700 * time.Millisecond)
	p = fx.svc.Snapshot().Progress[id]
	if p.Stage != domain.StageAnalyzing || len(p.WorkspaceNotes) == 0 {
		t.Fatalf("at 700ms progress = %+v", p)
	}

	fx.clock.Advance(755 * time.Millisecond)
	st = fx.svc.Snapshot()
	if st.Progress[id].Stage != domain.StageGenerating {
		t.Fatalf("at 1455ms stage = %s", st.Progress[id].Stage)
	}
	if st.Session == nil || st.Session.Total != len(cardCode) {
		t.Fatalf("session view = %+v", st.Session)
	}
	reqs := fx.gen.requests(agent.TaskCode, agent.CodeSystem)
	if len(reqs) != 1 || !strings.Contains(reqs[0].TaskContext.LogTail, "Planning") {
		t.Fatalf("code requests = %+v", reqs)
	}

	fx.clock.Advance(10 * time.Second)
	st = fx.svc.Snapshot()
	want := []domain.MessageKind{domain.KindText, domain.KindText, domain.KindStatus, domain.KindFilePreview}
	if got := kinds(st.Messages); !slices.Equal(got, want) {
		t.Fatalf("final messages = %v", got)
	}
	if !strings.HasPrefix(st.Messages[1].Text, "Wrote `src/App/page.tsx`") {
		t.Fatalf("narration = %q", st.Messages[1].Text)
	}
	if st.Messages[2].Text != "✓ `src/App/page.tsx` created" {
		t.Fatalf("status = %q", st.Messages[2].Text)
	}
	if st.Messages[3].Text != cardCode {
		t.Fatal("file preview does not carry the generated code")
	}
	if len(st.Progress) != 0 || st.Session != nil {
		t.Fatalf("progress entry not cleared: %+v", st.Progress)
	}
	if fx.files.get(target.DefaultPath) != cardCode {
		t.Fatal("artifact not written to the file store")
	}
	if st.Execution != domain.ExecReady {
		t.Fatalf("execution = %s (%s)", st.Execution, st.ExecutionError)
	}
	if cmds := fx.exec.commands(); !slices.Equal(cmds, []string{"npm run build"}) {
		t.Fatalf("commands = %v", cmds)
	}
	if st.Busy {
		t.Fatal("dashboard still busy after the build")
	}
}

func TestSubmitSupersedesActiveSession(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	first, err := fx.svc.Submit(ctx, "build a landing page")
	if err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(500 * time.Millisecond)
	second, err := fx.svc.Submit(ctx, "make a react navbar")
	if err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(200 * time.Millisecond)

	st := fx.svc.Snapshot()
	if len(st.Progress) != 1 {
		t.Fatalf("expected exactly one progress entry, got %d", len(st.Progress))
	}
	if _, ok := st.Progress[first]; ok {
		t.Fatal("superseded progress entry survived")
	}
	if st.Progress[second].Stage != domain.StagePlanning {
		t.Fatalf("second session stage at 700ms = %s", st.Progress[second].Stage)
	}
	for _, m := range st.Messages {
		if m.ID == first {
			t.Fatal("superseded progress message survived")
		}
	}

	fx.clock.Advance(10 * time.Second)
	if reqs := fx.gen.requests(agent.TaskCode, agent.CodeSystem); len(reqs) != 1 || reqs[0].Prompt != "make a react navbar" {
		t.Fatalf("code requests = %+v", reqs)
	}
}

func TestEditingProducesDiffAndUpdatedStatus(t *testing.T) {
	fx := newFixture(t, nil)
	fx.files.files[target.DefaultPath] = "export default function Card() {\n  return <div>Old</div>\n}\n"

	if _, err := fx.svc.Submit(context.Background(), "make the header blue"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(1500 * time.Millisecond)
	st := fx.svc.Snapshot()
	if st.Session == nil || !st.Session.Editing || st.Session.Added == 0 || st.Session.Removed == 0 {
		t.Fatalf("session view = %+v", st.Session)
	}
	if reqs := fx.gen.requests(agent.TaskCode, agent.CodeSystem); len(reqs) != 1 || !strings.Contains(reqs[0].Current, "Old") {
		t.Fatal("code request did not carry the current file")
	}

	fx.clock.Advance(10 * time.Second)
	st = fx.svc.Snapshot()
	var status string
	for _, m := range st.Messages {
		if m.Kind == domain.KindStatus {
			status = m.Text
		}
	}
	if status != "✓ `src/App/page.tsx` updated" {
		t.Fatalf("status = %q", status)
	}
}

func TestDependencyGateDecline(t *testing.T) {
	fx := newFixture(t, nil)
	fx.gen.code = "import confetti from 'canvas-confetti';\n" + cardCode

	if _, err := fx.svc.Submit(context.Background(), "add a CTA"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(10 * time.Second)

	st := fx.svc.Snapshot()
	if st.Execution != domain.ExecPendingInstallConfirmation {
		t.Fatalf("execution = %s", st.Execution)
	}
	if st.InstallRequest == nil || !slices.Equal(st.InstallRequest.PendingPackages, []string{"canvas-confetti"}) {
		t.Fatalf("install request = %+v", st.InstallRequest)
	}
	fx.clock.Advance(time.Hour)
	if fx.svc.Snapshot().Execution != domain.ExecPendingInstallConfirmation {
		t.Fatal("pending confirmation must not time out")
	}
	if len(fx.exec.commands()) != 0 {
		t.Fatal("nothing may run before the user answers")
	}

	if err := fx.svc.ResolveDependencyInstall(context.Background(), false); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	st = fx.svc.Snapshot()
	if st.Execution != domain.ExecReady {
		t.Fatalf("execution after decline = %s", st.Execution)
	}
	if cmds := fx.exec.commands(); !slices.Equal(cmds, []string{"npm run build"}) {
		t.Fatalf("decline must skip the install step, ran %v", cmds)
	}
	if fx.known.Has("canvas-confetti") {
		t.Fatal("declined package marked as known")
	}
	if err := fx.svc.ResolveDependencyInstall(context.Background(), true); !errors.Is(err, ErrNoPendingInstall) {
		t.Fatalf("second answer err = %v", err)
	}
}

func TestDependencyGateConfirm(t *testing.T) {
	fx := newFixture(t, nil)
	fx.gen.code = cardCode
	fx.gen.required = []string{"@radix-ui/react-icons/dist"}

	if _, err := fx.svc.Submit(context.Background(), "add a CTA"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(10 * time.Second)
	if err := fx.svc.ResolveDependencyInstall(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	want := []string{"npm install @radix-ui/react-icons", "npm run build"}
	if cmds := fx.exec.commands(); !slices.Equal(cmds, want) {
		t.Fatalf("commands = %v, want %v", cmds, want)
	}
	if !fx.known.Has("@radix-ui/react-icons") {
		t.Fatal("installed package not added to the known set")
	}
	if st := fx.svc.Snapshot(); st.Execution != domain.ExecReady {
		t.Fatalf("execution = %s", st.Execution)
	}
}

func TestResolveWithoutPendingInstall(t *testing.T) {
	fx := newFixture(t, nil)
	if err := fx.svc.ResolveDependencyInstall(context.Background(), true); !errors.Is(err, ErrNoPendingInstall) {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildFailureAndFix(t *testing.T) {
	builds := 0
	fx := newFixture(t, nil)
	fx.exec.result = func(cmd execution.Command) (string, int) {
		builds++
		if builds == 1 {
			return "Module not found: Can't resolve './Badge'", 1
		}
		return "compiled", 0
	}

	if _, err := fx.svc.RequestFix(context.Background()); !errors.Is(err, ErrNothingToFix) {
		t.Fatalf("RequestFix before any build err = %v", err)
	}
	if _, err := fx.svc.Submit(context.Background(), "Create a pricing card component"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(10 * time.Second)

	st := fx.svc.Snapshot()
	if st.Execution != domain.ExecError || !strings.Contains(st.ExecutionError, "exited with code 1") {
		t.Fatalf("execution = %s (%q)", st.Execution, st.ExecutionError)
	}

	id, err := fx.svc.RequestFix(context.Background())
	if err != nil {
		t.Fatalf("RequestFix: %v", err)
	}
	st = fx.svc.Snapshot()
	if st.Execution != domain.ExecIdle || st.Progress[id].Stage != domain.StagePlanning {
		t.Fatalf("fix session did not start: exec=%s progress=%+v", st.Execution, st.Progress)
	}
	fx.clock.Advance(10 * time.Second)

	fixes := fx.gen.requests(agent.TaskFix, agent.FixSystem)
	if len(fixes) != 1 {
		t.Fatalf("fix requests = %d", len(fixes))
	}
	if !strings.Contains(fixes[0].BuildOutput, "Can't resolve './Badge'") || fixes[0].Current != cardCode {
		t.Fatalf("fix request = %+v", fixes[0])
	}
	if st := fx.svc.Snapshot(); st.Execution != domain.ExecReady {
		t.Fatalf("execution after fix = %s", st.Execution)
	}
}

func TestFixReadsStoredArtifact(t *testing.T) {
	fx := newFixture(t, nil)
	fx.exec.result = func(execution.Command) (string, int) { return "TS2304: Cannot find name 'Badge'", 2 }

	if _, err := fx.svc.Submit(context.Background(), "Create a pricing card component"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(10 * time.Second)
	if st := fx.svc.Snapshot(); st.Execution != domain.ExecError {
		t.Fatalf("execution = %s", st.Execution)
	}

	edited := cardCode + "// edited by hand\n"
	if _, err := fx.files.PutFile(context.Background(), target.DefaultPath, edited); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.RequestFix(context.Background()); err != nil {
		t.Fatalf("RequestFix: %v", err)
	}
	fx.clock.Advance(10 * time.Second)

	fixes := fx.gen.requests(agent.TaskFix, agent.FixSystem)
	if len(fixes) != 1 || fixes[0].Current != edited {
		t.Fatalf("fix requests = %+v", fixes)
	}
}

func TestLatePlanOnlyPatchesPlanText(t *testing.T) {
	var wg sync.WaitGroup
	fx := newFixture(t, func(o *Options) { o.Spawn = background(&wg) })
	fx.gen.planRelease = make(chan struct{})

	id, err := fx.svc.Submit(context.Background(), "Create a pricing card component")
	if err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(1455 * time.Millisecond)
	p := fx.svc.Snapshot().Progress[id]
	if p.Stage != domain.StageGenerating || p.PlanText != "" {
		t.Fatalf("before plan reply progress = %+v", p)
	}

	close(fx.gen.planRelease)
	wg.Wait()
	p = fx.svc.Snapshot().Progress[id]
	if p.PlanText != "Late plan." {
		t.Fatalf("plan text = %q", p.PlanText)
	}
	if p.Stage != domain.StageGenerating {
		t.Fatalf("plan reply moved stage to %s", p.Stage)
	}
}

func TestLatePlanIgnoredAfterSupersede(t *testing.T) {
	var wg sync.WaitGroup
	fx := newFixture(t, func(o *Options) { o.Spawn = background(&wg) })
	fx.gen.planRelease = make(chan struct{})
	ctx := context.Background()

	first, err := fx.svc.Submit(ctx, "build a landing page")
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.svc.Submit(ctx, "make a react navbar")
	if err != nil {
		t.Fatal(err)
	}
	close(fx.gen.planRelease)
	wg.Wait()

	st := fx.svc.Snapshot()
	if _, ok := st.Progress[first]; ok || len(st.Progress) != 1 {
		t.Fatalf("superseded progress recreated: %+v", st.Progress)
	}
	for _, m := range st.Messages {
		if m.ID == first {
			t.Fatal("superseded progress message recreated")
		}
	}
	if p := st.Progress[second]; p.PlanText != "Late plan." || p.Stage != domain.StagePlanning {
		t.Fatalf("active progress = %+v", p)
	}
}

func TestPlanTimeoutUsesFallback(t *testing.T) {
	var wg sync.WaitGroup
	fx := newFixture(t, func(o *Options) {
		o.Spawn = background(&wg)
		o.Timings = DefaultTimings()
		o.Timings.PlanTimeout = 20 * time.Millisecond
	})
	fx.gen.planRelease = make(chan struct{})
	defer close(fx.gen.planRelease)

	id, err := fx.svc.Submit(context.Background(), "Create a pricing card component")
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	p := fx.svc.Snapshot().Progress[id]
	if p.PlanText != agent.FallbackPlan(target.DefaultPath) {
		t.Fatalf("plan text = %q", p.PlanText)
	}
	if p.Stage != domain.StagePlanning {
		t.Fatalf("stage = %s", p.Stage)
	}
}

func TestChatReply(t *testing.T) {
	fx := newFixture(t, nil)
	id, err := fx.svc.Submit(context.Background(), "hello there")
	if err != nil {
		t.Fatal(err)
	}
	st := fx.svc.Snapshot()
	if len(st.Progress) != 0 || st.Messages[1].Text != ThinkingText || st.Messages[1].ID != id {
		t.Fatalf("placeholder = %+v", st.Messages)
	}

	fx.clock.Advance(10 * time.Second)
	st = fx.svc.Snapshot()
	if len(st.Messages) != 2 || st.Messages[1].Text != "Hi! Ask me to build a component." {
		t.Fatalf("messages = %+v", st.Messages)
	}
	if len(fx.files.files) != 0 || len(fx.exec.commands()) != 0 {
		t.Fatal("chat replies must not write files or run commands")
	}
}

func TestChatTimeoutDeliversFallback(t *testing.T) {
	var wg sync.WaitGroup
	fx := newFixture(t, func(o *Options) { o.Spawn = background(&wg) })
	fx.gen.blockChat = true

	if _, err := fx.svc.Submit(context.Background(), "what can you do?"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(300 * time.Millisecond)
	fx.clock.Advance(25 * time.Second)
	fx.clock.Advance(10 * time.Second)
	wg.Wait()

	st := fx.svc.Snapshot()
	if st.Messages[1].Text != agent.FallbackChatText {
		t.Fatalf("reply = %q", st.Messages[1].Text)
	}
	if st.Busy {
		t.Fatal("turn not finished")
	}
}

func TestChatModeNeverGenerates(t *testing.T) {
	fx := newFixture(t, nil)
	if err := fx.svc.SetMode(domain.ModeChat); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.Submit(context.Background(), "build a landing page"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(10 * time.Second)
	if len(fx.gen.requests(agent.TaskCode, agent.CodeSystem)) != 0 {
		t.Fatal("chat mode issued a code request")
	}
	if err := fx.svc.SetMode("pair"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("invalid mode err = %v", err)
	}
}

func TestModeSwitchCancelsSession(t *testing.T) {
	fx := newFixture(t, nil)
	if _, err := fx.svc.Submit(context.Background(), "build a landing page"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(700 * time.Millisecond)
	if err := fx.svc.SetMode(domain.ModeChat); err != nil {
		t.Fatal(err)
	}

	st := fx.svc.Snapshot()
	if len(st.Progress) != 0 || len(st.Messages) != 1 || st.Busy {
		t.Fatalf("state after switch = %+v", st)
	}
	if n := fx.clock.Pending(); n != 0 {
		t.Fatalf("%d timers still armed", n)
	}
	fx.clock.Advance(10 * time.Second)
	if len(fx.gen.requests(agent.TaskCode, agent.CodeSystem)) != 0 {
		t.Fatal("cancelled session still generated")
	}
}

func TestEmptyPrompt(t *testing.T) {
	fx := newFixture(t, nil)
	if _, err := fx.svc.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("err = %v", err)
	}
	if len(fx.svc.Snapshot().Messages) != 0 {
		t.Fatal("blank prompt appended a message")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fx := newFixture(t, nil)
	changes, _ := fx.svc.Subscribe()
	if _, err := fx.svc.Submit(context.Background(), "build a landing page"); err != nil {
		t.Fatal(err)
	}
	fx.svc.Close()
	fx.svc.Close()

	if n := fx.clock.Pending(); n != 0 {
		t.Fatalf("%d timers still armed after Close", n)
	}
	for range changes {
	}
	if _, err := fx.svc.Submit(context.Background(), "hello"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Submit after Close err = %v", err)
	}
}

func TestTranscriptPersistence(t *testing.T) {
	chats := &fakeChats{}
	fx := newFixture(t, func(o *Options) { o.Chats = chats })

	if _, err := fx.svc.Submit(context.Background(), "Create a pricing card component"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(10 * time.Second)
	fx.svc.WaitTranscript()

	if !slices.Equal(chats.created, []string{"Create a pricing card component"}) {
		t.Fatalf("created = %v", chats.created)
	}
	for _, m := range chats.last {
		if m.Kind == domain.KindProgress {
			t.Fatal("progress message persisted")
		}
	}
	if fx.svc.Snapshot().ChatID != "chat-1" {
		t.Fatal("chat id not exposed in the snapshot")
	}
}

func TestLoadTranscript(t *testing.T) {
	chats := &fakeChats{loaded: &domain.Chat{ID: "chat-7", Messages: []domain.ChatMessage{
		{ID: 10, Role: domain.RoleUser, Kind: domain.KindText, Text: "earlier"},
		{ID: 11, Role: domain.RoleAssistant, Kind: domain.KindProgress},
		{ID: 12, Role: domain.RoleAssistant, Kind: domain.KindText, Text: "reply"},
	}}}
	fx := newFixture(t, func(o *Options) { o.Chats = chats })

	if err := fx.svc.LoadTranscript(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown chat")
	}
	if err := fx.svc.LoadTranscript(context.Background(), "chat-7"); err != nil {
		t.Fatal(err)
	}
	st := fx.svc.Snapshot()
	if len(st.Messages) != 2 || st.ChatID != "chat-7" {
		t.Fatalf("loaded state = %+v", st)
	}

	if _, err := fx.svc.Submit(context.Background(), "hello there"); err != nil {
		t.Fatal(err)
	}
	fx.clock.Advance(10 * time.Second)
	fx.svc.WaitTranscript()
	if len(chats.created) != 0 || len(chats.updates) == 0 || chats.updates[0] != "chat-7" {
		t.Fatalf("created=%v updates=%v", chats.created, chats.updates)
	}
	if len(chats.last) != 4 {
		t.Fatalf("patched %d messages, want 4", len(chats.last))
	}
}

func TestMessageIDsIncrease(t *testing.T) {
	fx := newFixture(t, nil)
	for _, p := range []string{"hello", "hi again", "thanks!"} {
		if _, err := fx.svc.Submit(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	var last int64
	for _, m := range fx.svc.Snapshot().Messages {
		if m.ID <= last {
			t.Fatalf("message ids not increasing: %d after %d", m.ID, last)
		}
		last = m.ID
	}
}
