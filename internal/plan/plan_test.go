package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/plateforge/msprep/internal/layout"
)

func testParams() Params {
	return Params{
		DistributeUL: 75,
		ResuspendUL:  40,
		MixCycles:    3,
		MixVolumeUL:  40,
		MixZOffsetMM: 1,
		PoolUL:       40,
	}
}

func TestBuildStandardQuad(t *testing.T) {
	g := layout.Geometry{
		SourceWells: 24,
		DestRows:    8,
		DestColumns: 12,
		Replicates:  4,
		LastActive:  4,
	}
	p, err := Build(g, testParams())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(p.Distribute) != 5 {
		t.Fatalf("expected 5 distribute ops, got %d", len(p.Distribute))
	}
	for i, op := range p.Distribute {
		if op.Source != i {
			t.Fatalf("distribute ops out of order: op %d has source %d", i, op.Source)
		}
		if len(op.Dests) != 4 {
			t.Fatalf("distribute op %d has %d destinations", i, len(op.Dests))
		}
		if op.VolumeUL != 75 {
			t.Fatalf("distribute op %d volume %v", i, op.VolumeUL)
		}
	}
	// 5 active sources on 8 rows selects one group plus the margin... 5/8=0,
	// so a single group.
	if len(p.Resuspend) != 1 || len(p.Mix) != 1 || len(p.Pool) != 1 {
		t.Fatalf("expected 1 op per column phase, got %d/%d/%d", len(p.Resuspend), len(p.Mix), len(p.Pool))
	}
	if p.Pool[0].DestColumn != g.PoolBoundary() {
		t.Fatalf("pool op targets column %d, want %d", p.Pool[0].DestColumn, g.PoolBoundary())
	}
}

func TestBuildColumnPhasesShareGroups(t *testing.T) {
	// Mix and Pool must address exactly the groups Resuspend addressed, in
	// the same ascending offset order.
	// Full source block, R=3: boundary at column 9, three selected groups.
	g := layout.Geometry{
		SourceWells: 24,
		DestRows:    8,
		DestColumns: 12,
		Replicates:  3,
		LastActive:  23,
	}
	p, err := Build(g, testParams())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(p.Resuspend) != 3 {
		t.Fatalf("expected 3 resuspend ops, got %d", len(p.Resuspend))
	}
	for i := range p.Resuspend {
		if p.Resuspend[i].Offset != i {
			t.Fatalf("resuspend ops out of order at %d", i)
		}
		if diff := cmp.Diff(p.Resuspend[i].Columns, p.Mix[i].Columns); diff != "" {
			t.Fatalf("mix group %d differs from resuspend (-resuspend +mix):\n%s", i, diff)
		}
		if diff := cmp.Diff(p.Resuspend[i].Columns, p.Pool[i].Columns); diff != "" {
			t.Fatalf("pool group %d differs from resuspend (-resuspend +pool):\n%s", i, diff)
		}
		if want := g.PoolBoundary() + i; p.Pool[i].DestColumn != want {
			t.Fatalf("pool op %d targets column %d, want %d", i, p.Pool[i].DestColumn, want)
		}
	}
}

func TestBuildEmptyGeometry(t *testing.T) {
	g := layout.Geometry{
		SourceWells: 24,
		DestRows:    8,
		DestColumns: 12,
		Replicates:  4,
		LastActive:  -1,
	}
	p, err := Build(g, testParams())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !p.Empty() {
		t.Fatalf("expected empty plan, got %+v", p)
	}
}

func TestBuildSkipsMixWhenNoCycles(t *testing.T) {
	params := testParams()
	params.MixCycles = 0
	params.MixVolumeUL = 0
	g := layout.Geometry{
		SourceWells: 24,
		DestRows:    8,
		DestColumns: 12,
		Replicates:  4,
		LastActive:  4,
	}
	p, err := Build(g, params)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(p.Mix) != 0 {
		t.Fatalf("expected no mix ops, got %d", len(p.Mix))
	}
	if p.Resuspend[0].MixCycles != 0 {
		t.Fatalf("resuspend op still carries mix cycles")
	}
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	good := layout.Geometry{
		SourceWells: 24,
		DestRows:    8,
		DestColumns: 12,
		Replicates:  4,
		LastActive:  4,
	}
	if _, err := Build(layout.Geometry{}, testParams()); err == nil {
		t.Fatal("expected geometry error")
	}
	for _, mutate := range []func(*Params){
		func(p *Params) { p.DistributeUL = 0 },
		func(p *Params) { p.ResuspendUL = -1 },
		func(p *Params) { p.PoolUL = 0 },
		func(p *Params) { p.MixCycles = -1 },
		func(p *Params) { p.MixVolumeUL = 0 },
	} {
		params := testParams()
		mutate(&params)
		if _, err := Build(good, params); err == nil {
			t.Fatalf("expected params error for %+v", params)
		}
	}
}

func TestPhaseOrderAndNames(t *testing.T) {
	want := []string{"distribute", "resuspend", "mix", "pool"}
	if len(Phases) != len(want) {
		t.Fatalf("expected %d phases, got %d", len(want), len(Phases))
	}
	for i, phase := range Phases {
		if phase.String() != want[i] {
			t.Fatalf("phase %d is %q, want %q", i, phase, want[i])
		}
	}
}
