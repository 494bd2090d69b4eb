// Package plan turns a run geometry into the ordered operations of the four
// phases: Distribute, Resuspend, Mix, Pool. Plans are built fresh per run,
// never mutated after Build returns, and consumed exactly once by the runner.
package plan

import (
	"fmt"

	"github.com/plateforge/msprep/internal/layout"
)

// Phase identifies one of the four ordered stages of a run.
type Phase int

const (
	PhaseDistribute Phase = iota
	PhaseResuspend
	PhaseMix
	PhasePool
)

// Phases lists the stages in execution order. Later phases address column
// groups whose occupancy depends on earlier phases having populated them, so
// the order is fixed.
var Phases = []Phase{PhaseDistribute, PhaseResuspend, PhaseMix, PhasePool}

func (p Phase) String() string {
	switch p {
	case PhaseDistribute:
		return "distribute"
	case PhaseResuspend:
		return "resuspend"
	case PhaseMix:
		return "mix"
	case PhasePool:
		return "pool"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Params carries the per-phase fixed volumes and mix settings from the
// protocol configuration.
type Params struct {
	DistributeUL float64
	ResuspendUL  float64
	MixCycles    int
	MixVolumeUL  float64
	MixZOffsetMM float64
	PoolUL       float64
}

func (p Params) validate() error {
	if p.DistributeUL <= 0 {
		return fmt.Errorf("plan: distribute volume must be > 0, got %v", p.DistributeUL)
	}
	if p.ResuspendUL <= 0 {
		return fmt.Errorf("plan: resuspend volume must be > 0, got %v", p.ResuspendUL)
	}
	if p.PoolUL <= 0 {
		return fmt.Errorf("plan: pool volume must be > 0, got %v", p.PoolUL)
	}
	if p.MixCycles < 0 {
		return fmt.Errorf("plan: mix cycles must be >= 0, got %d", p.MixCycles)
	}
	if p.MixCycles > 0 && p.MixVolumeUL <= 0 {
		return fmt.Errorf("plan: mix volume must be > 0 when mixing, got %v", p.MixVolumeUL)
	}
	return nil
}

// DistributeOp replicate-splits one source well into its destination wells.
type DistributeOp struct {
	Source   int   // source plate well, column-major linear index
	Dests    []int // destination plate wells, exactly R of them
	VolumeUL float64
}

// ResuspendOp dispenses reagent into every column of one replicate group,
// optionally mixing in place afterwards.
type ResuspendOp struct {
	Offset      int   // replicate offset this group belongs to
	Columns     []int // destination plate columns, ascending
	VolumeUL    float64
	MixCycles   int
	MixVolumeUL float64
}

// MixOp agitates every well of one replicate column group.
type MixOp struct {
	Offset    int
	Columns   []int
	Cycles    int
	VolumeUL  float64
	ZOffsetMM float64
}

// PoolOp consolidates one replicate column group into a single result column
// past the pool boundary.
type PoolOp struct {
	Offset     int
	Columns    []int
	DestColumn int
	VolumeUL   float64
}

// Plan is the full ordered operation set for one run.
type Plan struct {
	Geometry   layout.Geometry
	Distribute []DistributeOp
	Resuspend  []ResuspendOp
	Mix        []MixOp
	Pool       []PoolOp
}

// Empty reports whether the plan contains no operations at all, which is the
// case when the source plate has no active wells.
func (p Plan) Empty() bool {
	return len(p.Distribute) == 0 && len(p.Resuspend) == 0 && len(p.Mix) == 0 && len(p.Pool) == 0
}

// Build derives all four phase plans from the geometry. The geometry is
// validated first so no invalid configuration ever reaches hardware. A
// geometry with zero active sources yields a valid, empty plan.
func Build(g layout.Geometry, params Params) (Plan, error) {
	if err := g.Validate(); err != nil {
		return Plan{}, err
	}
	if err := params.validate(); err != nil {
		return Plan{}, err
	}
	p := Plan{Geometry: g}

	for src := 0; src < g.ActiveSources(); src++ {
		dests, err := g.ReplicateDestinations(src)
		if err != nil {
			return Plan{}, err
		}
		p.Distribute = append(p.Distribute, DistributeOp{
			Source:   src,
			Dests:    dests,
			VolumeUL: params.DistributeUL,
		})
	}

	for offset := 0; offset < g.SelectedGroupCount(); offset++ {
		cols, err := g.ReplicateColumnGroup(offset)
		if err != nil {
			return Plan{}, err
		}
		p.Resuspend = append(p.Resuspend, ResuspendOp{
			Offset:      offset,
			Columns:     cols,
			VolumeUL:    params.ResuspendUL,
			MixCycles:   params.MixCycles,
			MixVolumeUL: params.MixVolumeUL,
		})
		if params.MixCycles > 0 {
			p.Mix = append(p.Mix, MixOp{
				Offset:    offset,
				Columns:   cols,
				Cycles:    params.MixCycles,
				VolumeUL:  params.MixVolumeUL,
				ZOffsetMM: params.MixZOffsetMM,
			})
		}
		p.Pool = append(p.Pool, PoolOp{
			Offset:     offset,
			Columns:    cols,
			DestColumn: g.PoolBoundary() + offset,
			VolumeUL:   params.PoolUL,
		})
	}
	return p, nil
}
