// Package layout computes the replicate layout for a run: which destination
// wells hold copies of which source well, which destination columns belong to
// which replicate pass, and where the replicate region of the destination
// plate ends and the pooled result region begins.
//
// Everything here is pure arithmetic over a Geometry value. Nothing touches
// hardware and nothing keeps state between calls.
package layout

import "fmt"

// Geometry is the immutable shape of one run. It is built once from the
// protocol configuration and read-only afterwards.
type Geometry struct {
	// SourceWells is the total capacity of the source plate.
	SourceWells int
	// DestRows and DestColumns describe the destination plate grid.
	DestRows    int
	DestColumns int
	// Replicates is the number of destination copies made per source well.
	Replicates int
	// LastActive is the column-major linear index of the last populated
	// source well, inclusive. -1 means the source plate is empty.
	LastActive int
}

// Validate fails fast on configurations that could never drive a run. It must
// pass before any hardware action is issued.
func (g Geometry) Validate() error {
	if g.SourceWells < 1 {
		return fmt.Errorf("layout: source plate has no wells")
	}
	if g.DestRows < 1 || g.DestColumns < 1 {
		return fmt.Errorf("layout: destination grid %dx%d is invalid", g.DestRows, g.DestColumns)
	}
	if g.Replicates < 1 {
		return fmt.Errorf("layout: replicate factor must be >= 1, got %d", g.Replicates)
	}
	if g.LastActive < -1 || g.LastActive >= g.SourceWells {
		return fmt.Errorf("layout: last active well %d outside source plate [0, %d)", g.LastActive, g.SourceWells)
	}
	destWells := g.DestRows * g.DestColumns
	if need := (g.Replicates-1)*g.SourceWells + g.ActiveSources(); g.ActiveSources() > 0 && need > destWells {
		return fmt.Errorf("layout: %d replicate wells exceed destination capacity %d", need, destWells)
	}
	if end := g.PoolBoundary() + g.SelectedGroupCount(); end > g.DestColumns {
		return fmt.Errorf("layout: pool region needs columns [%d, %d) but destination has %d", g.PoolBoundary(), end, g.DestColumns)
	}
	// The pool result columns must stay free of replicate destinations, or
	// the Pool phase would dispense consolidated product on top of raw
	// distribute liquid.
	if active := g.ActiveSources(); active > 0 {
		poolStart := g.PoolBoundary()
		poolEnd := poolStart + g.SelectedGroupCount()
		for k := 0; k < g.Replicates; k++ {
			first := (k * g.SourceWells) / g.DestRows
			last := (k*g.SourceWells + active - 1) / g.DestRows
			if first < poolEnd && last >= poolStart {
				return fmt.Errorf("layout: replicate band %d occupies columns [%d, %d] inside pool result columns [%d, %d)", k, first, last, poolStart, poolEnd)
			}
		}
	}
	return nil
}

// ActiveSources returns how many source wells are actually populated.
func (g Geometry) ActiveSources() int {
	return g.LastActive + 1
}

// ReplicateDestinations returns the destination well indices holding the
// copies of one source well: exactly Replicates indices at a fixed stride of
// the source plate capacity, so each stride band corresponds to one replicate
// pass. Pure function of the geometry and index.
func (g Geometry) ReplicateDestinations(sourceIndex int) ([]int, error) {
	if sourceIndex < 0 || sourceIndex >= g.ActiveSources() {
		return nil, fmt.Errorf("layout: source index %d outside active range [0, %d)", sourceIndex, g.ActiveSources())
	}
	dests := make([]int, g.Replicates)
	for k := 0; k < g.Replicates; k++ {
		dests[k] = sourceIndex + k*g.SourceWells
	}
	return dests, nil
}

// PoolBoundary returns the destination column index separating the replicate
// region from the pooled result region. The integer division intentionally
// truncates; callers treat the remainder wells as unused capacity.
func (g Geometry) PoolBoundary() int {
	return g.ActiveSources() * g.Replicates / g.DestRows
}

// ReplicateColumnGroup returns the pre-boundary destination columns addressed
// by one replicate pass: columns offset, offset+R, offset+2R, ... below the
// pool boundary, in ascending order.
func (g Geometry) ReplicateColumnGroup(offset int) ([]int, error) {
	if offset < 0 || offset >= g.Replicates {
		return nil, fmt.Errorf("layout: replicate offset %d outside [0, %d)", offset, g.Replicates)
	}
	var cols []int
	for col := offset; col < g.PoolBoundary(); col += g.Replicates {
		cols = append(cols, col)
	}
	return cols, nil
}

// SelectedGroupCount returns how many replicate column groups the Resuspend,
// Mix and Pool phases touch: one group per fully occupied destination column
// span plus one margin group for partial occupancy, never more than the
// replicate factor. An empty source plate selects nothing.
func (g Geometry) SelectedGroupCount() int {
	active := g.ActiveSources()
	if active == 0 {
		return 0
	}
	n := active/g.DestRows + 1
	if n > g.Replicates {
		n = g.Replicates
	}
	return n
}
