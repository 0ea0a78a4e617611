package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/execution"
)

const buildTailBytes = 8 * 1024

var errNoExecutor = errors.New("command execution is not configured")

// pipelineRun is the install and build sequence for the last artifact.
type pipelineRun struct {
	id     int64
	ctx    context.Context
	cancel context.CancelFunc
	tail   *execution.Tail
}

// startPipelineLocked runs the optional install step followed by the build.
// The gate has already moved to installing or building.
func (s *Service) startPipelineLocked(packages []string) {
	if s.pipeline != nil {
		s.pipeline.cancel()
	}
	s.seq++
	ctx, cancel := context.WithCancel(s.rootCtx)
	run := &pipelineRun{id: s.seq, ctx: ctx, cancel: cancel, tail: execution.NewTail(buildTailBytes)}
	s.pipeline = run
	packages = append([]string(nil), packages...)

	s.goLocked(func() {
		if len(packages) > 0 {
			err := s.runStep(run, command(s.opts.InstallCommand, packages...))
			if !s.installed(run, packages, err) {
				return
			}
		}
		err := s.runStep(run, command(s.opts.BuildCommand))
		s.built(run, err)
	})
}

func (s *Service) runStep(run *pipelineRun, cmd execution.Command) error {
	if s.opts.Executor == nil {
		return errNoExecutor
	}
	s.logger.Info("Running pipeline step", "run", run.id, "command", cmd.String())
	_, err := execution.Drain(run.ctx, s.opts.Executor, cmd, run.tail)
	return err
}

func (s *Service) installed(run *pipelineRun, packages []string, err error) bool {
	s.mu.Lock()
	defer s.unlock()
	if s.pipeline != run {
		return false
	}
	if err != nil {
		s.failPipelineLocked(run, "Install failed", err)
		return false
	}
	if err := s.gate.Installed(); err != nil {
		s.failPipelineLocked(run, "Install failed", err)
		return false
	}
	s.opts.Known.Add(packages...)
	s.log.Append("Installed", strings.Join(packages, ", "))
	s.log.Append("Building", "")
	s.notifyLocked()
	return true
}

func (s *Service) built(run *pipelineRun, err error) {
	s.mu.Lock()
	defer s.unlock()
	if s.pipeline != run {
		return
	}
	if err == nil {
		err = s.gate.Built()
	}
	if err != nil {
		s.failPipelineLocked(run, "Build failed", err)
		return
	}
	s.pipeline = nil
	run.cancel()
	s.artifact.buildOutput = ""
	s.log.Append("Build ready", s.artifact.path)
	s.logger.Info("Build succeeded", "run", run.id, "path", s.artifact.path)
	s.notifyLocked()
}

func (s *Service) failPipelineLocked(run *pipelineRun, action string, err error) {
	msg := err.Error()
	if gerr := s.gate.Fail(msg); gerr != nil {
		s.logger.Error("Dependency gate rejected failure", "run", run.id, "error", gerr)
	}
	s.pipeline = nil
	run.cancel()
	s.artifact.buildOutput = run.tail.String()
	s.log.Append(action, msg)
	s.logger.Warn("Pipeline step failed", "run", run.id, "path", s.artifact.path, "error", err)
	s.notifyLocked()
}

// resetPipelineLocked cancels any running step and returns the gate to idle.
func (s *Service) resetPipelineLocked() {
	if run := s.pipeline; run != nil {
		s.pipeline = nil
		run.cancel()
	}
	s.gate.Reset()
}

// ResolveDependencyInstall answers the pending install confirmation. Confirm
// installs the packages before building; decline builds without them.
func (s *Service) ResolveDependencyInstall(_ context.Context, confirm bool) error {
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return ErrClosed
	}
	req := s.gate.Request()
	state, err := s.gate.Resolve(confirm)
	if err != nil {
		return err
	}
	if state == domain.ExecInstalling {
		s.log.Append("Install confirmed", strings.Join(req.PendingPackages, ", "))
		s.startPipelineLocked(req.PendingPackages)
	} else {
		s.log.Append("Install declined", "building without new packages")
		s.startPipelineLocked(nil)
	}
	s.notifyLocked()
	return nil
}

// RequestFix regenerates the last artifact with the captured build output
// after a failed build.
func (s *Service) RequestFix(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.gate.State() != domain.ExecError || s.artifact.path == "" {
		s.mu.Unlock()
		return 0, ErrNothingToFix
	}
	art := s.artifact
	errMsg := s.gate.Err()
	s.mu.Unlock()

	ws := s.loadWorkspace(ctx)
	current := art.code
	if s.opts.Files != nil {
		// The build ran against the stored file, which may have been edited
		// since it was generated.
		if f, err := s.opts.Files.GetFile(ctx, art.path); err == nil {
			current = f.Content
		} else {
			s.logger.Warn("Failed to read failed artifact, using generated code", "path", art.path, "error", err)
		}
	}

	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.gate.State() != domain.ExecError || s.artifact != art {
		return 0, ErrNothingToFix
	}
	output := art.buildOutput
	if strings.TrimSpace(output) == "" {
		output = errMsg
	}
	prompt := fmt.Sprintf("Fix the build error in `%s`", art.path)
	s.appendMessage(domain.ChatMessage{Role: domain.RoleUser, Kind: domain.KindText, Text: prompt})
	s.cancelActiveLocked("fix requested")
	s.log.Append("Fix requested", art.path)
	id := s.startGenerationLocked(genRequest{
		task:        agent.TaskFix,
		prompt:      prompt,
		target:      art.path,
		ws:          ws,
		current:     current,
		buildOutput: output,
	})
	s.notifyLocked()
	return id, nil
}
