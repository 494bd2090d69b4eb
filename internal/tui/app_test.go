package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/plateforge/msprep/internal/config"
	"github.com/plateforge/msprep/internal/labware"
	"github.com/plateforge/msprep/internal/plan"
)

func TestNewAppListsPresets(t *testing.T) {
	app := NewApp(labware.Builtins())
	if app.state != statePickProtocol {
		t.Fatalf("expected picker state, got %d", app.state)
	}
	if got, want := len(app.menu.Items()), len(config.PresetIDs()); got != want {
		t.Fatalf("menu lists %d presets, want %d", got, want)
	}
	view := app.View()
	if !strings.Contains(view, "MSPREP") {
		t.Fatal("header missing from view")
	}
}

func TestPhaseProgressRendering(t *testing.T) {
	app := NewApp(labware.Builtins())
	app.state = stateRunning

	model, _ := app.Update(phaseStartedMsg{phase: plan.PhaseDistribute, ops: 5})
	app = model.(*App)
	if app.phaseStates[plan.PhaseDistribute] != phaseActive {
		t.Fatal("distribute not marked active")
	}
	if !strings.Contains(app.View(), "▶ distribute (5 ops)") {
		t.Fatalf("active phase not rendered:\n%s", app.View())
	}

	model, _ = app.Update(phaseFinishedMsg{phase: plan.PhaseDistribute})
	app = model.(*App)
	if !strings.Contains(app.View(), "✓ distribute") {
		t.Fatal("finished phase not rendered")
	}
}

func TestCheckpointAckOnEnter(t *testing.T) {
	app := NewApp(labware.Builtins())
	app.state = stateRunning

	ack := make(chan error, 1)
	model, _ := app.Update(checkpointMsg{message: "Put the source plate in the vacuum drier.", ack: ack})
	app = model.(*App)
	if app.state != stateCheckpoint {
		t.Fatal("checkpoint did not pause the UI")
	}
	if !strings.Contains(app.View(), "vacuum drier") {
		t.Fatal("checkpoint prompt not rendered")
	}

	model, _ = app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = model.(*App)
	if app.state != stateRunning {
		t.Fatal("enter did not resume the run")
	}
	select {
	case err := <-ack:
		if err != nil {
			t.Fatalf("enter acked with error: %v", err)
		}
	default:
		t.Fatal("checkpoint not acknowledged")
	}
}

func TestQuitRefusesPendingCheckpoint(t *testing.T) {
	app := NewApp(labware.Builtins())
	app.state = stateRunning

	ack := make(chan error, 1)
	model, _ := app.Update(checkpointMsg{message: "wait", ack: ack})
	app = model.(*App)
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	app = model.(*App)
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	select {
	case err := <-ack:
		if err == nil {
			t.Fatal("quit must refuse the pending checkpoint")
		}
	default:
		t.Fatal("pending checkpoint left blocked")
	}
}

func TestQuitUnblocksRunGoroutine(t *testing.T) {
	app := NewApp(labware.Builtins())
	app.state = stateRunning

	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	app = model.(*App)
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	select {
	case <-app.abort:
	default:
		t.Fatal("quit did not signal the run goroutine")
	}
	// Event sends after quit must give up instead of blocking forever.
	if app.send(phaseStartedMsg{phase: plan.PhaseDistribute, ops: 1}) {
		t.Fatal("send succeeded with no UI loop to receive it")
	}

	// A second quit (e.g. ctrl+c after q) must not panic on the closed channel.
	model, _ = app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	_ = model
}

func TestRunDoneTransitions(t *testing.T) {
	app := NewApp(labware.Builtins())
	app.state = stateRunning

	model, _ := app.Update(runDoneMsg{})
	app = model.(*App)
	if app.state != stateDone {
		t.Fatal("successful run should land in done state")
	}

	app = NewApp(labware.Builtins())
	app.state = stateRunning
	model, _ = app.Update(runDoneMsg{err: errFailedRun})
	app = model.(*App)
	if app.state != stateFailed {
		t.Fatal("failed run should land in failed state")
	}
	if !strings.Contains(app.View(), "deck jam") {
		t.Fatal("run error not rendered")
	}
}

var errFailedRun = errors.New("deck jam")
