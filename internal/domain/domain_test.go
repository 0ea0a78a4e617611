package domain

import "testing"

func TestExecutionTransitions(t *testing.T) {
	tests := []struct {
		from, to ExecutionState
		want     bool
	}{
		{ExecIdle, ExecPendingInstallConfirmation, true},
		{ExecIdle, ExecBuilding, true},
		{ExecIdle, ExecInstalling, false},
		{ExecPendingInstallConfirmation, ExecInstalling, true},
		{ExecPendingInstallConfirmation, ExecBuilding, true},
		{ExecInstalling, ExecBuilding, true},
		{ExecInstalling, ExecReady, false},
		{ExecBuilding, ExecReady, true},
		{ExecBuilding, ExecError, true},
		{ExecReady, ExecBuilding, false},
		{ExecError, ExecError, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if !ExecReady.Terminal() || !ExecError.Terminal() || ExecBuilding.Terminal() {
		t.Fatal("Terminal mismatch")
	}
}

func TestStageOrder(t *testing.T) {
	order := []Stage{StagePlanning, StageAnalyzing, StageGenerating, StageFinalizing, StageIdle}
	for i := 0; i < len(order)-1; i++ {
		next, ok := order[i].Next()
		if !ok || next != order[i+1] {
			t.Fatalf("%s.Next() = %s, %v", order[i], next, ok)
		}
		if !order[i].Before(order[i+1]) || order[i+1].Before(order[i]) {
			t.Fatalf("Before mismatch at %s", order[i])
		}
	}
	if _, ok := StageIdle.Next(); ok {
		t.Fatal("idle must have no successor")
	}
}

func TestLiveCodeClamps(t *testing.T) {
	g := GenerationSession{FullCode: "hello", StreamedLength: 3}
	if g.LiveCode() != "hel" {
		t.Fatalf("LiveCode = %q", g.LiveCode())
	}
	g.StreamedLength = 99
	if g.LiveCode() != "hello" {
		t.Fatal("overrun not clamped")
	}
	g.StreamedLength = -1
	if g.LiveCode() != "" {
		t.Fatal("negative length not clamped")
	}
}

func TestMessageHelpers(t *testing.T) {
	if !(ChatMessage{Kind: KindProgress}).IsTransient() || (ChatMessage{Kind: KindStatus}).IsTransient() {
		t.Fatal("only progress messages are transient")
	}
	if !ModeAgent.Valid() || !ModeChat.Valid() || Mode("pair").Valid() {
		t.Fatal("Mode.Valid mismatch")
	}
}
