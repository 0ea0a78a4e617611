package dashboard

import (
	"context"
	"errors"
	"strings"

	"github.com/ashureev/agentdash/internal/agent"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/schedule"
	"github.com/ashureev/agentdash/internal/stream"
)

// ThinkingText fills the assistant placeholder until a reply streams in.
const ThinkingText = "Thinking…"

var errChatTimeout = errors.New("chat reply timed out")

// chatTurn is one conversational reply. The generator call and the timeout
// race; whichever settles first is delivered.
type chatTurn struct {
	id        int64
	messageID int64
	prompt    string
	settled   bool

	group     *schedule.Group
	timeout   schedule.Handle
	ctx       context.Context
	cancel    context.CancelFunc
	reqCancel context.CancelFunc
}

func (t *chatTurn) stop() {
	t.group.Cancel()
	if t.reqCancel != nil {
		t.reqCancel()
	}
	t.cancel()
}

func (s *Service) startChatLocked(prompt string) int64 {
	msgID := s.appendMessage(domain.ChatMessage{Role: domain.RoleAssistant, Kind: domain.KindText, Text: ThinkingText})
	s.seq++
	ctx, cancel := context.WithCancel(s.rootCtx)
	turn := &chatTurn{
		id:        s.seq,
		messageID: msgID,
		prompt:    prompt,
		group:     &schedule.Group{},
		ctx:       ctx,
		cancel:    cancel,
	}
	s.chat = turn
	s.log.SetTask(prompt)
	s.log.SetState("replying")
	turn.group.Add(s.sched.After(s.opts.Timings.ChatDelay, func() { s.askChat(turn) }))
	return msgID
}

func (s *Service) askChat(turn *chatTurn) {
	s.mu.Lock()
	defer s.unlock()
	if s.chat != turn {
		return
	}
	req := s.request(agent.TaskChat, agent.ChatSystem, turn.prompt)
	reqCtx, reqCancel := context.WithCancel(turn.ctx)
	turn.reqCancel = reqCancel
	turn.timeout = turn.group.Add(s.sched.After(s.opts.Timings.ChatTimeout, func() {
		s.settleChat(turn, "", errChatTimeout)
	}))

	s.goLocked(func() {
		resp, err := s.opts.Generator.Generate(reqCtx, req)
		var text string
		if resp != nil {
			text = resp.Text
		}
		s.settleChat(turn, text, err)
	})
}

// settleChat delivers the first outcome of the turn and drops the other.
func (s *Service) settleChat(turn *chatTurn, text string, err error) {
	s.mu.Lock()
	defer s.unlock()
	if s.chat != turn || turn.settled {
		return
	}
	turn.settled = true
	if turn.timeout != nil {
		turn.timeout.Stop()
	}
	turn.reqCancel()

	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err == nil {
			err = errors.New("empty reply")
		}
		s.log.Append("Reply failed", err.Error())
		s.logger.Warn("Chat reply failed, using fallback", "turn", turn.id, "error", err)
		text = agent.FallbackChatText
	}

	h := stream.Start(s.sched, text, stream.Character(),
		func(prefix string) {
			s.mu.Lock()
			defer s.unlock()
			if s.chat != turn {
				return
			}
			s.setMessageText(turn.messageID, prefix)
			s.notifyLocked()
		},
		func() { s.finishChat(turn, text) })
	turn.group.Add(h)
}

func (s *Service) finishChat(turn *chatTurn, text string) {
	s.mu.Lock()
	defer s.unlock()
	if s.chat != turn {
		return
	}
	s.setMessageText(turn.messageID, text)
	s.chat = nil
	turn.cancel()
	s.log.Append("Replied", strings.Join(strings.Fields(truncate(text, 80)), " "))
	s.log.SetState(string(domain.StageIdle))
	s.syncTranscriptLocked()
	s.notifyLocked()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
