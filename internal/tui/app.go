// internal/tui/app.go
//
// Terminal UI for interactive runs. It uses bubbletea's Elm-style loop:
// the run executes on its own goroutine and feeds messages back through a
// channel, so the UI can render phase progress and block the run at operator
// checkpoints until the operator confirms.

package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/plateforge/msprep/internal/config"
	"github.com/plateforge/msprep/internal/labware"
	"github.com/plateforge/msprep/internal/logbook"
	"github.com/plateforge/msprep/internal/plan"
	"github.com/plateforge/msprep/internal/robot/sim"
	"github.com/plateforge/msprep/internal/run"
)

// errRunAborted is what a quit mid-run reports to the runner; the process
// ends with the program, so the error never reaches the operator.
var errRunAborted = errors.New("run aborted by operator")

// appState represents which screen we're on.
type appState int

const (
	statePickProtocol appState = iota
	stateRunning
	stateCheckpoint
	stateDone
	stateFailed
)

type phaseStatus int

const (
	phasePending phaseStatus = iota
	phaseActive
	phaseComplete
)

type phaseStartedMsg struct {
	phase plan.Phase
	ops   int
}

type phaseFinishedMsg struct {
	phase plan.Phase
}

type checkpointMsg struct {
	message string
	ack     chan error
}

type runDoneMsg struct {
	err error
}

// protocolItem implements list.Item for the preset picker.
type protocolItem struct {
	id    string
	title string
	desc  string
}

func (i protocolItem) Title() string       { return i.title }
func (i protocolItem) Description() string { return i.desc }
func (i protocolItem) FilterValue() string { return i.id }

// AppOption customizes App construction.
type AppOption func(*App)

// WithProtocol skips the preset picker and runs the given protocol directly.
func WithProtocol(p config.Protocol) AppOption {
	return func(a *App) {
		proto := p
		a.protocol = &proto
	}
}

// WithLogbook attaches a run log whose tail is rendered in the UI.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// App is the main application model; it holds all UI state.
type App struct {
	state    appState
	catalog  *labware.Catalog
	protocol *config.Protocol
	logbook  *logbook.Logbook

	menu   list.Model
	events chan tea.Msg

	// abort is closed when the operator quits; the run goroutine checks it
	// on every event send so it never blocks on a UI that is gone.
	abort     chan struct{}
	abortOnce sync.Once

	phaseOps    map[plan.Phase]int
	phaseStates map[plan.Phase]phaseStatus

	checkpointText string
	checkpointAck  chan error

	statusMsg string
	runErr    error

	width  int
	height int
}

// NewApp builds the UI against a labware catalog.
func NewApp(cat *labware.Catalog, opts ...AppOption) *App {
	items := make([]list.Item, 0, len(config.PresetIDs()))
	for _, id := range config.PresetIDs() {
		preset, err := config.Preset(id)
		if err != nil {
			continue
		}
		items = append(items, protocolItem{
			id:    id,
			title: preset.Name,
			desc:  fmt.Sprintf("%s · R=%d · last well %s", preset.Description, preset.Replicates, preset.LastSourceWell),
		})
	}
	menu := list.New(items, list.NewDefaultDelegate(), 0, 0)
	menu.Title = "Select protocol"
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)

	app := &App{
		state:       statePickProtocol,
		catalog:     cat,
		menu:        menu,
		events:      make(chan tea.Msg),
		abort:       make(chan struct{}),
		phaseOps:    map[plan.Phase]int{},
		phaseStates: map[plan.Phase]phaseStatus{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	if a.protocol != nil {
		return a.startRun()
	}
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.menu.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case phaseStartedMsg:
		a.phaseStates[msg.phase] = phaseActive
		a.phaseOps[msg.phase] = msg.ops
		a.statusMsg = fmt.Sprintf("Running %s (%d operations)", msg.phase, msg.ops)
		return a, a.waitForEvent()

	case phaseFinishedMsg:
		a.phaseStates[msg.phase] = phaseComplete
		return a, a.waitForEvent()

	case checkpointMsg:
		a.state = stateCheckpoint
		a.checkpointText = msg.message
		a.checkpointAck = msg.ack
		a.statusMsg = "Waiting for operator"
		return a, a.waitForEvent()

	case runDoneMsg:
		if msg.err != nil {
			a.state = stateFailed
			a.runErr = msg.err
			a.statusMsg = "Run failed"
		} else {
			a.state = stateDone
			a.statusMsg = "Run complete · press q to quit"
		}
		return a, nil
	}
	if a.state == statePickProtocol {
		var cmd tea.Cmd
		a.menu, cmd = a.menu.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if a.checkpointAck != nil {
			a.checkpointAck <- fmt.Errorf("operator quit at checkpoint")
			a.checkpointAck = nil
		}
		a.abortOnce.Do(func() { close(a.abort) })
		return a, tea.Quit

	case "enter":
		switch a.state {
		case statePickProtocol:
			item, ok := a.menu.SelectedItem().(protocolItem)
			if !ok {
				return a, nil
			}
			preset, err := config.Preset(item.id)
			if err != nil {
				a.statusMsg = err.Error()
				return a, nil
			}
			a.protocol = &preset
			return a, a.startRun()

		case stateCheckpoint:
			if a.checkpointAck != nil {
				a.checkpointAck <- nil
				a.checkpointAck = nil
			}
			a.state = stateRunning
			a.checkpointText = ""
			a.statusMsg = "Resuming"
			return a, nil
		}
	}
	if a.state == statePickProtocol {
		var cmd tea.Cmd
		a.menu, cmd = a.menu.Update(msg)
		return a, cmd
	}
	return a, nil
}

// startRun builds the plan and executes it on a goroutine, feeding progress
// back through the event channel.
func (a *App) startRun() tea.Cmd {
	proto := *a.protocol
	a.state = stateRunning
	for _, phase := range plan.Phases {
		a.phaseStates[phase] = phasePending
	}
	a.statusMsg = fmt.Sprintf("Starting %s", proto.ID)

	go func() {
		a.send(runDoneMsg{err: a.executeRun(proto)})
	}()
	return a.waitForEvent()
}

// send delivers an event to the UI loop, giving up when the operator quit.
func (a *App) send(msg tea.Msg) bool {
	select {
	case a.events <- msg:
		return true
	case <-a.abort:
		return false
	}
}

func (a *App) executeRun(proto config.Protocol) error {
	if err := proto.Validate(a.catalog); err != nil {
		return err
	}
	geometry, err := proto.Geometry(a.catalog)
	if err != nil {
		return err
	}
	built, err := plan.Build(geometry, proto.Params())
	if err != nil {
		return err
	}
	reagent, _ := a.catalog.Lookup(proto.Labware.Reagent)
	source, _ := a.catalog.Lookup(proto.Labware.Source)
	working, _ := a.catalog.Lookup(proto.Labware.Working)
	controller, err := sim.New(sim.SessionConfig{
		Reagent:         reagent,
		Source:          source,
		Working:         working,
		TempDeckCelsius: proto.TempDeckC,
		OnPause: func(message string) error {
			ack := make(chan error)
			if !a.send(checkpointMsg{message: message, ack: ack}) {
				return errRunAborted
			}
			select {
			case err := <-ack:
				return err
			case <-a.abort:
				return errRunAborted
			}
		},
	})
	if err != nil {
		return err
	}
	runner, err := run.New(controller,
		run.WithLogbook(a.logbook),
		run.WithObserver(run.Observer{
			PhaseStarted: func(phase plan.Phase, ops int) {
				a.send(phaseStartedMsg{phase: phase, ops: ops})
			},
			PhaseFinished: func(phase plan.Phase) {
				a.send(phaseFinishedMsg{phase: phase})
			},
		}),
	)
	if err != nil {
		return err
	}
	return runner.Execute(run.Request{
		Plan:            built,
		PoolOverride:    proto.PoolOverride(),
		AfterDistribute: proto.Messages.AfterDistribute,
		AfterMix:        proto.Messages.AfterMix,
	})
}

func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-a.events
	}
}

// View renders the current screen.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ MSPREP")

	var content string
	switch a.state {
	case statePickProtocol:
		content = a.menu.View()
	default:
		content = a.renderRun()
	}

	sections := []string{header, content}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderRun() string {
	var lines []string
	if a.protocol != nil {
		lines = append(lines, fmt.Sprintf("Protocol: %s", a.protocol.ID), "")
	}
	for _, phase := range plan.Phases {
		marker := "·"
		switch a.phaseStates[phase] {
		case phaseActive:
			marker = "▶"
		case phaseComplete:
			marker = "✓"
		}
		line := fmt.Sprintf("%s %s", marker, phase)
		if ops := a.phaseOps[phase]; ops > 0 {
			line = fmt.Sprintf("%s (%d ops)", line, ops)
		}
		lines = append(lines, line)
	}
	body := strings.Join(lines, "\n")

	if a.state == stateCheckpoint {
		prompt := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5B8DEF")).
			Padding(0, 1).
			Render(fmt.Sprintf("%s\n\nPress enter when done.", a.checkpointText))
		body = body + "\n\n" + prompt
	}
	if a.state == stateFailed && a.runErr != nil {
		body = body + "\n\n" + lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Render(fmt.Sprintf("⚠ %v", a.runErr))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(body)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines := a.logbook.Tail(8)
	if len(lines) == 0 {
		return ""
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render("LOG")
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}
