// Package robot is the boundary between the protocol engine and whatever is
// actually moving liquid. The engine only ever talks to a Controller; the
// shipped implementation is the recording simulator in robot/sim.
package robot

import "fmt"

// Plate names a deck role. Labware types are bound to roles at session setup.
type Plate string

const (
	PlateReagent Plate = "reagent"
	PlateSource  Plate = "source"
	PlateWorking Plate = "working"
)

// Channel selects a pipette. Single-channel handles per-well work
// (Distribute); the multichannel handles whole-column work
// (Resuspend, Mix, Pool).
type Channel string

const (
	ChannelSingle Channel = "single"
	ChannelMulti  Channel = "multi"
)

// Well addresses one well by deck role and column-major linear index.
type Well struct {
	Plate Plate
	Index int
}

func (w Well) String() string {
	return fmt.Sprintf("%s[%d]", w.Plate, w.Index)
}

// Column addresses one whole column by deck role and column index.
type Column struct {
	Plate Plate
	Index int
}

func (c Column) String() string {
	return fmt.Sprintf("%s[col %d]", c.Plate, c.Index)
}

// FlowRates is the (aspirate, dispense, blow-out) rate triple for one channel,
// in uL/s. A zero field in an override means "leave that rate alone".
type FlowRates struct {
	AspirateULs float64
	DispenseULs float64
	BlowOutULs  float64
}

// Merge overlays the non-zero fields of override onto f.
func (f FlowRates) Merge(override FlowRates) FlowRates {
	out := f
	if override.AspirateULs > 0 {
		out.AspirateULs = override.AspirateULs
	}
	if override.DispenseULs > 0 {
		out.DispenseULs = override.DispenseULs
	}
	if override.BlowOutULs > 0 {
		out.BlowOutULs = override.BlowOutULs
	}
	return out
}

// IsZero reports whether no field is set.
func (f FlowRates) IsZero() bool {
	return f == FlowRates{}
}

// TipMode controls tip handling for a single operation.
type TipMode string

const (
	// TipAuto picks up a fresh tip for the operation and drops it after.
	TipAuto TipMode = "auto"
	// TipReuse uses the tip the channel is already holding and never re-picks.
	// The caller owns pickup and release.
	TipReuse TipMode = "reuse"
)

// MixSpec describes an in-place agitation: cycles of aspirate/dispense at a
// vertical offset from the well bottom.
type MixSpec struct {
	Cycles    int
	VolumeUL  float64
	ZOffsetMM float64
}

// TransferOptions carries the per-operation policy knobs. The zero value is
// the engine default: disposal volume suppressed, fresh tip, no trailing mix
// or blow-out.
type TransferOptions struct {
	Tip TipMode
	// DisposalVolumeUL reserves extra liquid per aspirate. The engine always
	// leaves this at zero to conserve reagent.
	DisposalVolumeUL float64
	// MixAfter runs an agitation in the destination after dispensing.
	MixAfter *MixSpec
	// BlowOut releases excess fluid over the final destination before the tip
	// comes off, to prevent carryover and dripping.
	BlowOut bool
}

// TipModeOrDefault resolves the effective tip mode.
func (o TransferOptions) TipModeOrDefault() TipMode {
	if o.Tip == "" {
		return TipAuto
	}
	return o.Tip
}

// Controller is the full pipetting and operator-checkpoint surface the engine
// consumes. Implementations own the physical or simulated deck; the engine
// treats the controller as exclusively held for the duration of a run.
//
// All calls are synchronous: an operation completes fully, or fails, before
// the next begins. Pause returns only once the operator has acknowledged.
type Controller interface {
	// Distribute moves volume from one source well to each destination well
	// in order (one-to-many, single-channel).
	Distribute(volumeUL float64, src Well, dests []Well, opts TransferOptions) error
	// TransferColumns dispenses volume from a source well into every listed
	// destination column (multichannel).
	TransferColumns(volumeUL float64, src Well, dests []Column, opts TransferOptions) error
	// Consolidate pools volume from each source column into one destination
	// column (many-to-one, multichannel).
	Consolidate(volumeUL float64, srcs []Column, dest Column, opts TransferOptions) error
	// MixColumn agitates a column in place (multichannel).
	MixColumn(col Column, spec MixSpec, opts TransferOptions) error

	PickUpTip(ch Channel) error
	DropTip(ch Channel) error

	FlowRates(ch Channel) FlowRates
	SetFlowRates(ch Channel, rates FlowRates)

	// Pause blocks the run until the operator confirms the message.
	Pause(message string) error
	// Comment records a non-blocking progress note.
	Comment(message string)
}
