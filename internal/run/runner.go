// Package run drives a built plan against a robot controller. It owns the
// phase-local execution policies: tip handling, disposal-volume suppression,
// and the Pool-phase flow-rate override. It keeps no state of its own across
// phases beyond the transient flow-rate snapshot.
package run

import (
	"fmt"

	"github.com/plateforge/msprep/internal/logbook"
	"github.com/plateforge/msprep/internal/plan"
	"github.com/plateforge/msprep/internal/robot"
)

// Observer receives progress callbacks while a run executes. All fields are
// optional. Callbacks fire on the run goroutine, strictly in order.
type Observer struct {
	PhaseStarted  func(phase plan.Phase, ops int)
	PhaseFinished func(phase plan.Phase)
	Checkpoint    func(message string)
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogbook attaches a run log.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(r *Runner) {
		r.logbook = lb
	}
}

// WithObserver attaches progress callbacks.
func WithObserver(obs Observer) Option {
	return func(r *Runner) {
		r.observer = obs
	}
}

// Runner executes plans against one controller, which it treats as
// exclusively owned for the duration of each run.
type Runner struct {
	ctrl     robot.Controller
	logbook  *logbook.Logbook
	observer Observer
}

// New wires a runner to a controller.
func New(ctrl robot.Controller, opts ...Option) (*Runner, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("run: controller is required")
	}
	r := &Runner{ctrl: ctrl}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Request is everything one run needs beyond the plan itself.
type Request struct {
	Plan plan.Plan
	// PoolOverride is the flow-rate triple applied for the Pool phase and
	// restored afterwards. Zero fields leave the matching rate untouched.
	PoolOverride robot.FlowRates
	// AfterDistribute and AfterMix are the operator checkpoint messages.
	AfterDistribute string
	AfterMix        string
}

// Execute runs the four phases in order with operator checkpoints between
// Distribute/Resuspend and Mix/Pool. Execution is strictly sequential; the
// first failure aborts the run with the phase and operation index attached.
// An empty plan issues no hardware calls at all.
func (r *Runner) Execute(req Request) error {
	p := req.Plan
	if p.Empty() {
		r.log("", "no active source wells, nothing to run")
		return nil
	}
	if err := r.distribute(p); err != nil {
		return err
	}
	if err := r.checkpoint(req.AfterDistribute); err != nil {
		return err
	}
	if err := r.resuspend(p); err != nil {
		return err
	}
	if err := r.mix(p); err != nil {
		return err
	}
	if err := r.checkpoint(req.AfterMix); err != nil {
		return err
	}
	return r.pool(p, req.PoolOverride)
}

func (r *Runner) distribute(p plan.Plan) error {
	r.phaseStarted(plan.PhaseDistribute, len(p.Distribute))
	r.ctrl.Comment(fmt.Sprintf("Distributing %d samples into %d replicates each", len(p.Distribute), p.Geometry.Replicates))
	for i, op := range p.Distribute {
		src := robot.Well{Plate: robot.PlateSource, Index: op.Source}
		dests := make([]robot.Well, len(op.Dests))
		for j, d := range op.Dests {
			dests[j] = robot.Well{Plate: robot.PlateWorking, Index: d}
		}
		// Fresh tip per operation, disposal volume suppressed.
		if err := r.ctrl.Distribute(op.VolumeUL, src, dests, robot.TransferOptions{}); err != nil {
			return r.fail(plan.PhaseDistribute, i, err)
		}
		r.log(plan.PhaseDistribute.String(), "op %d: %s -> %d wells", i, src, len(dests))
	}
	r.phaseFinished(plan.PhaseDistribute)
	return nil
}

func (r *Runner) resuspend(p plan.Plan) error {
	if len(p.Resuspend) == 0 {
		return nil
	}
	r.phaseStarted(plan.PhaseResuspend, len(p.Resuspend))
	r.ctrl.Comment("Resuspending replicates in reagent")
	reagent := robot.Well{Plate: robot.PlateReagent, Index: 0}
	err := r.withMultiTip(func() error {
		for i, op := range p.Resuspend {
			opts := robot.TransferOptions{Tip: robot.TipReuse}
			if op.MixCycles > 0 {
				opts.MixAfter = &robot.MixSpec{Cycles: op.MixCycles, VolumeUL: op.MixVolumeUL}
			}
			if err := r.ctrl.TransferColumns(op.VolumeUL, reagent, workingColumns(op.Columns), opts); err != nil {
				return r.fail(plan.PhaseResuspend, i, err)
			}
			r.log(plan.PhaseResuspend.String(), "op %d: group %d (%d columns)", i, op.Offset, len(op.Columns))
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.phaseFinished(plan.PhaseResuspend)
	return nil
}

func (r *Runner) mix(p plan.Plan) error {
	if len(p.Mix) == 0 {
		return nil
	}
	r.phaseStarted(plan.PhaseMix, len(p.Mix))
	r.ctrl.Comment("Mixing replicate columns")
	err := r.withMultiTip(func() error {
		for i, op := range p.Mix {
			spec := robot.MixSpec{Cycles: op.Cycles, VolumeUL: op.VolumeUL, ZOffsetMM: op.ZOffsetMM}
			for _, col := range op.Columns {
				target := robot.Column{Plate: robot.PlateWorking, Index: col}
				if err := r.ctrl.MixColumn(target, spec, robot.TransferOptions{Tip: robot.TipReuse}); err != nil {
					return r.fail(plan.PhaseMix, i, err)
				}
			}
			r.log(plan.PhaseMix.String(), "op %d: group %d x%d cycles", i, op.Offset, op.Cycles)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.phaseFinished(plan.PhaseMix)
	return nil
}

func (r *Runner) pool(p plan.Plan, override robot.FlowRates) error {
	if len(p.Pool) == 0 {
		return nil
	}
	r.phaseStarted(plan.PhasePool, len(p.Pool))
	r.ctrl.Comment("Pooling replicates into result columns")
	err := r.withPoolRates(override, func() error {
		for i, op := range p.Pool {
			dest := robot.Column{Plate: robot.PlateWorking, Index: op.DestColumn}
			opts := robot.TransferOptions{BlowOut: true}
			if err := r.ctrl.Consolidate(op.VolumeUL, workingColumns(op.Columns), dest, opts); err != nil {
				return r.fail(plan.PhasePool, i, err)
			}
			r.log(plan.PhasePool.String(), "op %d: group %d -> column %d", i, op.Offset, op.DestColumn)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.phaseFinished(plan.PhasePool)
	return nil
}

// withMultiTip picks up one multichannel tip, runs fn with it, and releases
// it on every exit path. Operations inside must use TipReuse so the tip is
// never re-picked mid-phase.
func (r *Runner) withMultiTip(fn func() error) error {
	if err := r.ctrl.PickUpTip(robot.ChannelMulti); err != nil {
		return err
	}
	err := fn()
	if dropErr := r.ctrl.DropTip(robot.ChannelMulti); dropErr != nil && err == nil {
		err = dropErr
	}
	return err
}

// withPoolRates snapshots the multichannel flow rates, applies the override
// when it changes anything (a no-op write is skipped), runs fn, and restores
// the snapshot on every exit path.
func (r *Runner) withPoolRates(override robot.FlowRates, fn func() error) error {
	if override.IsZero() {
		return fn()
	}
	prev := r.ctrl.FlowRates(robot.ChannelMulti)
	target := prev.Merge(override)
	if target == prev {
		return fn()
	}
	r.ctrl.SetFlowRates(robot.ChannelMulti, target)
	defer r.ctrl.SetFlowRates(robot.ChannelMulti, prev)
	return fn()
}

// checkpoint blocks until the operator confirms. A refused checkpoint aborts
// the run the same way a failed hardware action does.
func (r *Runner) checkpoint(message string) error {
	if r.observer.Checkpoint != nil {
		r.observer.Checkpoint(message)
	}
	r.log("", "checkpoint: %s", message)
	if err := r.ctrl.Pause(message); err != nil {
		return fmt.Errorf("run: checkpoint %q: %w", message, err)
	}
	return nil
}

func (r *Runner) fail(phase plan.Phase, opIndex int, err error) error {
	wrapped := fmt.Errorf("run: %s op %d: %w", phase, opIndex, err)
	if r.logbook != nil {
		r.logbook.Error("%v", wrapped)
	}
	return wrapped
}

func (r *Runner) phaseStarted(phase plan.Phase, ops int) {
	if r.observer.PhaseStarted != nil {
		r.observer.PhaseStarted(phase, ops)
	}
	r.log(phase.String(), "phase started, %d operations", ops)
}

func (r *Runner) phaseFinished(phase plan.Phase) {
	if r.observer.PhaseFinished != nil {
		r.observer.PhaseFinished(phase)
	}
	r.log(phase.String(), "phase finished")
}

func (r *Runner) log(phase string, format string, args ...any) {
	if r.logbook == nil {
		return
	}
	if phase == "" {
		r.logbook.Info(format, args...)
		return
	}
	r.logbook.Phase(phase, format, args...)
}

func workingColumns(cols []int) []robot.Column {
	out := make([]robot.Column, len(cols))
	for i, c := range cols {
		out[i] = robot.Column{Plate: robot.PlateWorking, Index: c}
	}
	return out
}
