package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/deps"
	"github.com/ashureev/agentdash/internal/diff"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/schedule"
	"github.com/ashureev/agentdash/internal/sessionlog"
	"github.com/ashureev/agentdash/internal/stream"
	"github.com/ashureev/agentdash/internal/target"
)

const manifestPath = "package.json"

var errEmptyCode = errors.New("empty code reply")

// session is one generation request. Its group and context are cancelled
// together when it is superseded.
type session struct {
	domain.GenerationSession
	task        agent.Task
	buildOutput string
	ws          workspace
	required    []string
	diff        diff.Script
	narration   string

	group  *schedule.Group
	ctx    context.Context
	cancel context.CancelFunc
}

func (sess *session) stop() {
	sess.group.Cancel()
	sess.cancel()
}

type genRequest struct {
	task        agent.Task
	prompt      string
	target      string
	ws          workspace
	current     string
	buildOutput string
}

// workspace is the file store snapshot taken when a session starts.
type workspace struct {
	paths    []string
	contents map[string]string
	err      error
}

func (s *Service) loadWorkspace(ctx context.Context) workspace {
	ws := workspace{contents: map[string]string{}}
	if s.opts.Files == nil {
		return ws
	}
	files, err := s.opts.Files.ListFiles(ctx)
	if err != nil {
		s.logger.Warn("Failed to list workspace files", "error", err)
		ws.err = err
		return ws
	}
	for _, f := range files {
		ws.paths = append(ws.paths, f.Path)
		ws.contents[f.Path] = f.Content
	}
	return ws
}

func (w workspace) resolve(prompt string) string {
	return target.Resolve(prompt, w.paths)
}

func (w workspace) notes(path string, editing bool) []string {
	notes := []string{fmt.Sprintf("Scanned %d workspace files", len(w.paths))}
	if w.err != nil {
		notes = append(notes, "File store unavailable, starting from an empty workspace")
	}
	if editing {
		notes = append(notes, fmt.Sprintf("Editing existing `%s`", path))
	} else {
		notes = append(notes, fmt.Sprintf("Creating `%s`", path))
	}
	if _, ok := w.contents[manifestPath]; ok {
		notes = append(notes, "Read dependencies from package.json")
	}
	return notes
}

// startGenerationLocked arms the staged timers of a new session. The caller
// has already cancelled the previous one.
func (s *Service) startGenerationLocked(req genRequest) int64 {
	s.resetPipelineLocked()

	prev := req.current
	if prev == "" {
		prev = req.ws.contents[req.target]
	}
	editing := strings.TrimSpace(prev) != ""

	msgID := s.appendMessage(domain.ChatMessage{Role: domain.RoleAssistant, Kind: domain.KindProgress})
	s.seq++
	ctx, cancel := context.WithCancel(s.rootCtx)
	sess := &session{
		GenerationSession: domain.GenerationSession{
			ID:              s.seq,
			MessageID:       msgID,
			Prompt:          req.prompt,
			TargetFile:      req.target,
			PreviousContent: prev,
			Editing:         editing,
		},
		task:        req.task,
		buildOutput: req.buildOutput,
		ws:          req.ws,
		group:       &schedule.Group{},
		ctx:         ctx,
		cancel:      cancel,
	}
	s.active = sess
	s.progress[msgID] = domain.AgentProgressState{
		Stage:          domain.StagePlanning,
		FileName:       req.target,
		WorkspaceNotes: []string{},
	}

	s.log.SetTask(req.prompt)
	s.log.SetState(string(domain.StagePlanning))
	s.log.Append("Planning", req.target)
	s.logger.Info("Generation session started",
		"session", sess.ID, "message_id", msgID, "path", req.target, "task", req.task, "editing", editing)

	s.requestPlanLocked(sess)
	sess.group.Add(s.sched.After(s.opts.Timings.AnalyzeDelay, func() { s.analyze(sess) }))
	sess.group.Add(s.sched.After(s.opts.Timings.GenerateDelay, func() { s.generate(sess) }))
	return msgID
}

func (s *Service) taskContextLocked() agent.TaskContext {
	task, state := s.log.Task()
	return agent.TaskContext{Task: task, State: state, LogTail: s.log.ContextText(sessionlog.DefaultContextEntries)}
}

func (s *Service) request(task agent.Task, system, prompt string) agent.Request {
	return agent.Request{
		Task:        task,
		Mode:        s.mode,
		Prompt:      prompt,
		System:      system,
		TaskContext: s.taskContextLocked(),
		UserID:      s.opts.UserID,
		SessionID:   s.opts.SessionID,
	}
}

// requestPlanLocked fires the one-sentence plan request. Its reply only
// patches PlanText and never holds up the stages.
func (s *Service) requestPlanLocked(sess *session) {
	req := s.request(agent.TaskChat, agent.PlanSystem, sess.Prompt)
	req.TargetFile = sess.TargetFile
	s.goLocked(func() {
		ctx, cancel := context.WithTimeout(sess.ctx, s.opts.Timings.PlanTimeout)
		defer cancel()
		plan := agent.FallbackPlan(sess.TargetFile)
		resp, err := s.opts.Generator.Generate(ctx, req)
		switch {
		case err != nil:
			if sess.ctx.Err() == nil {
				s.logger.Warn("Plan request failed, using fallback", "session", sess.ID, "error", err)
			}
		case resp != nil && strings.TrimSpace(resp.Text) != "":
			plan = strings.TrimSpace(resp.Text)
		}

		s.mu.Lock()
		defer s.unlock()
		if s.active != sess {
			return
		}
		p, ok := s.progress[sess.MessageID]
		if !ok {
			return
		}
		p.PlanText = plan
		s.progress[sess.MessageID] = p
		s.log.Append("Plan", plan)
		s.notifyLocked()
	})
}

// advanceLocked moves the active session's progress one stage forward.
func (s *Service) advanceLocked(sess *session, next domain.Stage) (domain.AgentProgressState, bool) {
	if s.active != sess {
		return domain.AgentProgressState{}, false
	}
	p, ok := s.progress[sess.MessageID]
	if !ok {
		return p, false
	}
	if n, ok := p.Stage.Next(); !ok || n != next {
		s.logger.Warn("Refusing out-of-order stage", "session", sess.ID, "stage", p.Stage, "next", next)
		return p, false
	}
	p.Stage = next
	s.progress[sess.MessageID] = p
	s.log.SetState(string(next))
	return p, true
}

func (s *Service) analyze(sess *session) {
	s.mu.Lock()
	defer s.unlock()
	p, ok := s.advanceLocked(sess, domain.StageAnalyzing)
	if !ok {
		return
	}
	p.WorkspaceNotes = sess.ws.notes(sess.TargetFile, sess.Editing)
	s.progress[sess.MessageID] = p
	s.log.Append("Analyzing workspace", fmt.Sprintf("%d files", len(sess.ws.paths)))
	s.notifyLocked()
}

func (s *Service) generate(sess *session) {
	s.mu.Lock()
	defer s.unlock()
	if _, ok := s.advanceLocked(sess, domain.StageGenerating); !ok {
		return
	}
	s.log.Append("Generating", sess.TargetFile)

	system := agent.CodeSystem
	if sess.task == agent.TaskFix {
		system = agent.FixSystem
	}
	req := s.request(sess.task, system, sess.Prompt)
	req.TargetFile = sess.TargetFile
	req.Current = sess.PreviousContent
	req.BuildOutput = sess.buildOutput
	s.notifyLocked()

	s.goLocked(func() {
		ctx, cancel := context.WithTimeout(sess.ctx, s.opts.Timings.CodeTimeout)
		defer cancel()
		resp, err := s.opts.Generator.Generate(ctx, req)
		s.onCode(sess, resp, err)
	})
}

func (s *Service) onCode(sess *session, resp *agent.Response, err error) {
	s.mu.Lock()
	defer s.unlock()
	if s.active != sess {
		return
	}

	var code string
	if err == nil && resp != nil {
		code = resp.Code
		sess.required = resp.RequiredPackages
	}
	if strings.TrimSpace(code) == "" {
		if err == nil {
			err = errEmptyCode
		}
		code = agent.FallbackCode(sess.Prompt)
		if sess.task == agent.TaskFix && sess.PreviousContent != "" {
			code = sess.PreviousContent
		}
		s.log.Append("Generation failed", err.Error())
		s.logger.Warn("Code generation failed, using fallback", "session", sess.ID, "path", sess.TargetFile, "error", err)
	}
	sess.FullCode = code

	if sess.Editing {
		sess.diff = s.computeDiff(sess.PreviousContent, code)
		added, removed := sess.diff.Stats()
		s.log.Append("Diff", fmt.Sprintf("+%d -%d", added, removed))
	}
	s.log.Append("Streaming code", fmt.Sprintf("%d bytes", len(code)))

	h := stream.Start(s.sched, code, stream.Chunked(s.opts.Rand),
		func(prefix string) { s.onCodeChunk(sess, prefix) },
		func() { s.onCodeStreamed(sess) })
	sess.group.Add(h)
	s.notifyLocked()
}

func (s *Service) computeDiff(prev, next string) diff.Script {
	if s.opts.DiffMode == DiffMinimal {
		return diff.Minimal(prev, next)
	}
	return diff.Compute(prev, next)
}

func (s *Service) onCodeChunk(sess *session, prefix string) {
	s.mu.Lock()
	defer s.unlock()
	if s.active != sess {
		return
	}
	sess.StreamedLength = len(prefix)
	s.notifyLocked()
}

func (s *Service) onCodeStreamed(sess *session) {
	s.mu.Lock()
	defer s.unlock()
	if s.active != sess {
		return
	}
	sess.StreamedLength = len(sess.FullCode)
	path, code := sess.TargetFile, sess.FullCode
	s.goLocked(func() {
		var err error
		if s.opts.Files != nil {
			_, err = s.opts.Files.PutFile(sess.ctx, path, code)
		}
		s.onWritten(sess, err)
	})
}

func (s *Service) onWritten(sess *session, err error) {
	s.mu.Lock()
	defer s.unlock()
	if s.active != sess {
		return
	}
	if err != nil {
		s.log.Append("Write failed", err.Error())
		s.logger.Warn("Failed to write generated file", "session", sess.ID, "path", sess.TargetFile, "error", err)
	} else {
		s.log.Append("Wrote file", sess.TargetFile)
	}
	if _, ok := s.advanceLocked(sess, domain.StageFinalizing); !ok {
		return
	}
	s.log.Append("Finalizing", "")

	sess.narration = narrate(sess)
	h := stream.Start(s.sched, sess.narration, stream.Character(),
		func(prefix string) {
			s.mu.Lock()
			defer s.unlock()
			if s.active != sess {
				return
			}
			s.setMessageText(sess.MessageID, prefix)
			s.notifyLocked()
		},
		func() { s.finish(sess) })
	sess.group.Add(h)
	s.notifyLocked()
}

func narrate(sess *session) string {
	lines := strings.Count(sess.FullCode, "\n") + 1
	if sess.diff != nil {
		added, removed := sess.diff.Stats()
		return fmt.Sprintf("Wrote `%s` (%d lines, +%d -%d).", sess.TargetFile, lines, added, removed)
	}
	return fmt.Sprintf("Wrote `%s` (%d lines).", sess.TargetFile, lines)
}

// finish flips the progress message to text, appends the status and preview
// messages, drops the progress entry and hands the artifact to the gate.
func (s *Service) finish(sess *session) {
	s.mu.Lock()
	defer s.unlock()
	if s.active != sess {
		return
	}
	if i := s.messageIndex(sess.MessageID); i >= 0 {
		s.messages[i].Kind = domain.KindText
		s.messages[i].Text = sess.narration
	}
	verb := "created"
	if sess.Editing {
		verb = "updated"
	}
	status := fmt.Sprintf("✓ `%s` %s", sess.TargetFile, verb)
	s.appendMessage(domain.ChatMessage{Role: domain.RoleAssistant, Kind: domain.KindStatus, Text: status, FilePath: sess.TargetFile})
	s.appendMessage(domain.ChatMessage{Role: domain.RoleAssistant, Kind: domain.KindFilePreview, Text: sess.FullCode, FilePath: sess.TargetFile})

	delete(s.progress, sess.MessageID)
	s.active = nil
	sess.cancel()
	s.artifact = artifact{path: sess.TargetFile, code: sess.FullCode}
	s.log.Append("Done", status)
	s.log.SetState(string(domain.StageIdle))
	s.logger.Info("Generation session finished", "session", sess.ID, "path", sess.TargetFile, "bytes", len(sess.FullCode))

	s.beginGateLocked(sess)
	s.syncTranscriptLocked()
	s.notifyLocked()
}

// beginGateLocked computes the packages the artifact needs that are not
// known yet and either parks the gate or starts the build.
func (s *Service) beginGateLocked(sess *session) {
	known := deps.NewKnown(s.opts.Known.Names()...)
	for _, manifest := range []string{sess.ws.contents[manifestPath], manifestOf(sess)} {
		if manifest == "" {
			continue
		}
		if err := known.AddManifest(manifest); err != nil {
			s.logger.Warn("Ignoring unreadable package.json", "error", err)
		}
	}

	pending := deps.Missing(sess.FullCode, sess.required, known, s.opts.Policy)
	state, err := s.gate.Begin(pending)
	if err != nil {
		s.logger.Error("Dependency gate rejected transition", "session", sess.ID, "error", err)
		return
	}
	if state == domain.ExecPendingInstallConfirmation {
		s.log.Append("Dependencies pending", strings.Join(pending, ", "))
		return
	}
	s.log.Append("Dependencies", "none missing")
	s.startPipelineLocked(nil)
}

func manifestOf(sess *session) string {
	if sess.TargetFile == manifestPath {
		return sess.FullCode
	}
	return ""
}
