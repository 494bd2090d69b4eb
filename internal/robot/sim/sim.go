// Package sim implements robot.Controller against an in-memory deck. Every
// call is appended to an action log, well fill levels are tracked so that
// overfilling a well fails the way real hardware would, and tip state is
// enforced so a "never re-pick" phase cannot silently pick twice.
package sim

import (
	"fmt"
	"strings"
	"sync"

	"github.com/plateforge/msprep/internal/labware"
	"github.com/plateforge/msprep/internal/robot"
)

// Kind tags one recorded action.
type Kind string

const (
	KindSetup       Kind = "setup"
	KindDistribute  Kind = "distribute"
	KindTransfer    Kind = "transfer"
	KindConsolidate Kind = "consolidate"
	KindMix         Kind = "mix"
	KindBlowOut     Kind = "blow-out"
	KindPickUpTip   Kind = "pick-up-tip"
	KindDropTip     Kind = "drop-tip"
	KindFlowRate    Kind = "flow-rate"
	KindPause       Kind = "pause"
	KindComment     Kind = "comment"
)

// Action is one entry in the simulated run log.
type Action struct {
	Kind     Kind
	Channel  robot.Channel
	VolumeUL float64
	Source   string
	Dest     string
	Message  string
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString(string(a.Kind))
	if a.Channel != "" {
		fmt.Fprintf(&b, " [%s]", a.Channel)
	}
	if a.VolumeUL > 0 {
		fmt.Fprintf(&b, " %.1fuL", a.VolumeUL)
	}
	if a.Source != "" {
		fmt.Fprintf(&b, " %s", a.Source)
	}
	if a.Dest != "" {
		fmt.Fprintf(&b, " -> %s", a.Dest)
	}
	if a.Message != "" {
		fmt.Fprintf(&b, " %s", a.Message)
	}
	return b.String()
}

// SessionConfig binds labware definitions to deck roles and configures the
// session-level hardware (temperature module, pause handling).
type SessionConfig struct {
	Reagent labware.Definition
	Source  labware.Definition
	Working labware.Definition
	// TempDeckCelsius cools the source plate when non-zero, mirroring the
	// physical deck where samples sit on a temperature module.
	TempDeckCelsius float64
	// OnPause is invoked for operator checkpoints. Nil auto-acknowledges,
	// which is what headless simulation wants; the TUI installs a blocking
	// prompt here.
	OnPause func(message string) error
}

type wellKey struct {
	plate robot.Plate
	index int
}

// Robot is a recording simulator. It satisfies robot.Controller.
type Robot struct {
	mu      sync.Mutex
	defs    map[robot.Plate]labware.Definition
	actions []Action
	rates   map[robot.Channel]robot.FlowRates
	hasTip  map[robot.Channel]bool
	tips    int
	fill    map[wellKey]float64
	onPause func(string) error
}

// defaultFlowRates match a p300-class pipette.
var defaultFlowRates = robot.FlowRates{AspirateULs: 92.86, DispenseULs: 92.86, BlowOutULs: 92.86}

// New builds a simulated deck from the session config.
func New(cfg SessionConfig) (*Robot, error) {
	for _, def := range []labware.Definition{cfg.Reagent, cfg.Source, cfg.Working} {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("sim: %w", err)
		}
	}
	r := &Robot{
		defs: map[robot.Plate]labware.Definition{
			robot.PlateReagent: cfg.Reagent,
			robot.PlateSource:  cfg.Source,
			robot.PlateWorking: cfg.Working,
		},
		rates: map[robot.Channel]robot.FlowRates{
			robot.ChannelSingle: defaultFlowRates,
			robot.ChannelMulti:  defaultFlowRates,
		},
		hasTip:  map[robot.Channel]bool{},
		fill:    map[wellKey]float64{},
		onPause: cfg.OnPause,
	}
	r.record(Action{Kind: KindSetup, Message: fmt.Sprintf("reagent=%s source=%s working=%s", cfg.Reagent.ID, cfg.Source.ID, cfg.Working.ID)})
	if cfg.TempDeckCelsius != 0 {
		r.record(Action{Kind: KindSetup, Message: fmt.Sprintf("temperature module at %.0fC under source plate", cfg.TempDeckCelsius)})
	}
	return r, nil
}

// Actions returns a copy of the recorded log.
func (r *Robot) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// TipsUsed returns how many fresh tips the run consumed.
func (r *Robot) TipsUsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tips
}

// WellVolume returns the simulated fill level of one well.
func (r *Robot) WellVolume(w robot.Well) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fill[wellKey{w.Plate, w.Index}]
}

func (r *Robot) record(a Action) {
	r.actions = append(r.actions, a)
}

// Distribute implements robot.Controller.
func (r *Robot) Distribute(volumeUL float64, src robot.Well, dests []robot.Well, opts robot.TransferOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkVolume(volumeUL); err != nil {
		return err
	}
	if err := r.checkWell(src); err != nil {
		return err
	}
	for _, dest := range dests {
		if dest == src {
			return fmt.Errorf("sim: distribute source %s overlaps destinations", src)
		}
	}
	release, err := r.acquireTip(robot.ChannelSingle, opts)
	if err != nil {
		return err
	}
	defer release()
	for _, dest := range dests {
		if err := r.dispense(dest, volumeUL); err != nil {
			return err
		}
	}
	r.record(Action{
		Kind:     KindDistribute,
		Channel:  robot.ChannelSingle,
		VolumeUL: volumeUL,
		Source:   src.String(),
		Dest:     renderWells(dests),
	})
	return nil
}

// TransferColumns implements robot.Controller.
func (r *Robot) TransferColumns(volumeUL float64, src robot.Well, dests []robot.Column, opts robot.TransferOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkVolume(volumeUL); err != nil {
		return err
	}
	if err := r.checkWell(src); err != nil {
		return err
	}
	release, err := r.acquireTip(robot.ChannelMulti, opts)
	if err != nil {
		return err
	}
	defer release()
	for _, dest := range dests {
		wells, err := r.columnWells(dest)
		if err != nil {
			return err
		}
		for _, w := range wells {
			if w == src {
				return fmt.Errorf("sim: transfer source %s overlaps destination %s", src, dest)
			}
			if err := r.dispense(w, volumeUL); err != nil {
				return err
			}
		}
		r.record(Action{
			Kind:     KindTransfer,
			Channel:  robot.ChannelMulti,
			VolumeUL: volumeUL,
			Source:   src.String(),
			Dest:     dest.String(),
		})
		if opts.MixAfter != nil {
			r.record(Action{
				Kind:     KindMix,
				Channel:  robot.ChannelMulti,
				VolumeUL: opts.MixAfter.VolumeUL,
				Dest:     dest.String(),
				Message:  fmt.Sprintf("x%d", opts.MixAfter.Cycles),
			})
		}
	}
	return nil
}

// Consolidate implements robot.Controller.
func (r *Robot) Consolidate(volumeUL float64, srcs []robot.Column, dest robot.Column, opts robot.TransferOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkVolume(volumeUL); err != nil {
		return err
	}
	destWells, err := r.columnWells(dest)
	if err != nil {
		return err
	}
	release, err := r.acquireTip(robot.ChannelMulti, opts)
	if err != nil {
		return err
	}
	defer release()
	for _, src := range srcs {
		if src == dest {
			return fmt.Errorf("sim: consolidate destination %s overlaps sources", dest)
		}
		srcWells, err := r.columnWells(src)
		if err != nil {
			return err
		}
		for _, w := range srcWells {
			r.aspirate(w, volumeUL)
		}
	}
	for _, w := range destWells {
		if err := r.dispense(w, volumeUL*float64(len(srcs))); err != nil {
			return err
		}
	}
	r.record(Action{
		Kind:     KindConsolidate,
		Channel:  robot.ChannelMulti,
		VolumeUL: volumeUL,
		Source:   renderColumns(srcs),
		Dest:     dest.String(),
	})
	if opts.BlowOut {
		r.record(Action{Kind: KindBlowOut, Channel: robot.ChannelMulti, Dest: dest.String()})
	}
	return nil
}

// MixColumn implements robot.Controller.
func (r *Robot) MixColumn(col robot.Column, spec robot.MixSpec, opts robot.TransferOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spec.Cycles < 1 {
		return fmt.Errorf("sim: mix cycles must be >= 1, got %d", spec.Cycles)
	}
	if err := r.checkVolume(spec.VolumeUL); err != nil {
		return err
	}
	if _, err := r.columnWells(col); err != nil {
		return err
	}
	release, err := r.acquireTip(robot.ChannelMulti, opts)
	if err != nil {
		return err
	}
	defer release()
	r.record(Action{
		Kind:     KindMix,
		Channel:  robot.ChannelMulti,
		VolumeUL: spec.VolumeUL,
		Dest:     col.String(),
		Message:  fmt.Sprintf("x%d at +%.1fmm", spec.Cycles, spec.ZOffsetMM),
	})
	return nil
}

// PickUpTip implements robot.Controller. Picking while already holding a tip
// is an error; the engine's reuse policy depends on it.
func (r *Robot) PickUpTip(ch robot.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasTip[ch] {
		return fmt.Errorf("sim: %s channel already holds a tip", ch)
	}
	r.hasTip[ch] = true
	r.tips++
	r.record(Action{Kind: KindPickUpTip, Channel: ch})
	return nil
}

// DropTip implements robot.Controller.
func (r *Robot) DropTip(ch robot.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasTip[ch] {
		return fmt.Errorf("sim: %s channel has no tip to drop", ch)
	}
	r.hasTip[ch] = false
	r.record(Action{Kind: KindDropTip, Channel: ch})
	return nil
}

// FlowRates implements robot.Controller.
func (r *Robot) FlowRates(ch robot.Channel) robot.FlowRates {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rates[ch]
}

// SetFlowRates implements robot.Controller.
func (r *Robot) SetFlowRates(ch robot.Channel, rates robot.FlowRates) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[ch] = rates
	r.record(Action{
		Kind:    KindFlowRate,
		Channel: ch,
		Message: fmt.Sprintf("aspirate=%.1f dispense=%.1f blowout=%.1f", rates.AspirateULs, rates.DispenseULs, rates.BlowOutULs),
	})
}

// Pause implements robot.Controller.
func (r *Robot) Pause(message string) error {
	r.mu.Lock()
	r.record(Action{Kind: KindPause, Message: message})
	onPause := r.onPause
	r.mu.Unlock()
	if onPause != nil {
		return onPause(message)
	}
	return nil
}

// Comment implements robot.Controller.
func (r *Robot) Comment(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(Action{Kind: KindComment, Message: message})
}

// acquireTip applies the per-operation tip mode. It returns a release func
// that drops an auto tip; reused tips stay on, their owner releases them.
// Callers must hold r.mu.
func (r *Robot) acquireTip(ch robot.Channel, opts robot.TransferOptions) (func(), error) {
	switch opts.TipModeOrDefault() {
	case robot.TipReuse:
		if !r.hasTip[ch] {
			return nil, fmt.Errorf("sim: %s channel reuse requested with no tip held", ch)
		}
		return func() {}, nil
	default:
		if r.hasTip[ch] {
			return nil, fmt.Errorf("sim: %s channel holds a tip but a fresh one was requested", ch)
		}
		r.hasTip[ch] = true
		r.tips++
		r.record(Action{Kind: KindPickUpTip, Channel: ch})
		return func() {
			r.hasTip[ch] = false
			r.record(Action{Kind: KindDropTip, Channel: ch})
		}, nil
	}
}

func (r *Robot) checkVolume(volumeUL float64) error {
	if volumeUL <= 0 {
		return fmt.Errorf("sim: volume must be > 0, got %v", volumeUL)
	}
	return nil
}

func (r *Robot) checkWell(w robot.Well) error {
	def, ok := r.defs[w.Plate]
	if !ok {
		return fmt.Errorf("sim: unknown plate %s", w.Plate)
	}
	if w.Index < 0 || w.Index >= def.WellCount() {
		return fmt.Errorf("sim: well %s outside %s", w, def.ID)
	}
	return nil
}

func (r *Robot) columnWells(c robot.Column) ([]robot.Well, error) {
	def, ok := r.defs[c.Plate]
	if !ok {
		return nil, fmt.Errorf("sim: unknown plate %s", c.Plate)
	}
	indices, err := def.ColumnWells(c.Index)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	wells := make([]robot.Well, len(indices))
	for i, idx := range indices {
		wells[i] = robot.Well{Plate: c.Plate, Index: idx}
	}
	return wells, nil
}

func (r *Robot) dispense(w robot.Well, volumeUL float64) error {
	def := r.defs[w.Plate]
	key := wellKey{w.Plate, w.Index}
	if r.fill[key]+volumeUL > def.WellCapacityUL {
		return fmt.Errorf("sim: dispensing %.1fuL overfills %s (%.1f/%.1fuL)", volumeUL, w, r.fill[key], def.WellCapacityUL)
	}
	r.fill[key] += volumeUL
	return nil
}

func (r *Robot) aspirate(w robot.Well, volumeUL float64) {
	key := wellKey{w.Plate, w.Index}
	r.fill[key] -= volumeUL
	if r.fill[key] < 0 {
		r.fill[key] = 0
	}
}

func renderWells(wells []robot.Well) string {
	parts := make([]string, len(wells))
	for i, w := range wells {
		parts[i] = w.String()
	}
	return strings.Join(parts, ",")
}

func renderColumns(cols []robot.Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}
