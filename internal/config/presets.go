package config

import (
	"fmt"
	"sort"
	"sync"
)

// presetRegistry holds the named protocol variants shipped with the tool.
// Each variant is a plain Protocol record; there is no per-variant code.
type presetRegistry struct {
	mu      sync.RWMutex
	presets map[string]Protocol
}

var presets = newPresetRegistry()

func newPresetRegistry() *presetRegistry {
	r := &presetRegistry{presets: map[string]Protocol{}}
	for _, p := range builtinPresets() {
		r.mustRegister(p)
	}
	return r
}

func (r *presetRegistry) register(p Protocol) error {
	if p.ID == "" {
		return fmt.Errorf("config: preset id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.presets[p.ID]; exists {
		return fmt.Errorf("config: preset %s already registered", p.ID)
	}
	r.presets[p.ID] = p.Normalized()
	return nil
}

func (r *presetRegistry) mustRegister(p Protocol) {
	if err := r.register(p); err != nil {
		panic(err)
	}
}

// Preset resolves a shipped protocol variant by ID.
func Preset(id string) (Protocol, error) {
	presets.mu.RLock()
	defer presets.mu.RUnlock()
	p, ok := presets.presets[id]
	if !ok {
		return Protocol{}, fmt.Errorf("config: unknown preset %s", id)
	}
	return p, nil
}

// PresetIDs returns a sorted list of shipped protocol variants.
func PresetIDs() []string {
	presets.mu.RLock()
	defer presets.mu.RUnlock()
	ids := make([]string, 0, len(presets.presets))
	for id := range presets.presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultPresetID is the variant used when nothing is specified.
const DefaultPresetID = "standard-quad"

func builtinPresets() []Protocol {
	standardLabware := LabwareRoles{
		Reagent: "agilent_1_reservoir_290ml",
		Source:  "opentrons_24_aluminumblock_nest_1.5ml_screwcap",
		Working: "4titude_96_wellplate_200ul",
	}
	return []Protocol{
		{
			ID:             "standard-quad",
			Name:           "Standard quadruplicate prep",
			Description:    "Four replicates per sample, 200 uL working plate",
			Labware:        standardLabware,
			Replicates:     4,
			LastSourceWell: "A2",
			Volumes:        Volumes{DistributeUL: 75, ResuspendUL: 40, PoolUL: 40},
			Mix:            Mix{Cycles: 3, VolumeUL: 40, ZOffsetMM: 1},
			PoolFlowRate:   FlowRateOverride{AspirateULs: 30, DispenseULs: 30, BlowOutULs: 50},
			TempDeckC:      4,
		},
		{
			ID:             "triplicate",
			Name:           "Triplicate prep",
			Description:    "Three replicates per sample across six samples",
			Labware:        standardLabware,
			Replicates:     3,
			LastSourceWell: "B2",
			Volumes:        Volumes{DistributeUL: 75, ResuspendUL: 40, PoolUL: 40},
			Mix:            Mix{Cycles: 3, VolumeUL: 40, ZOffsetMM: 1},
			PoolFlowRate:   FlowRateOverride{AspirateULs: 30, DispenseULs: 30, BlowOutULs: 50},
			TempDeckC:      4,
		},
		{
			ID:             "duplicate-full",
			Name:           "Duplicate prep, full source block",
			Description:    "Two replicates per sample over all 24 source wells",
			Labware:        standardLabware,
			Replicates:     2,
			LastSourceWell: "D6",
			Volumes:        Volumes{DistributeUL: 75, ResuspendUL: 40, PoolUL: 40},
			Mix:            Mix{Cycles: 3, VolumeUL: 40, ZOffsetMM: 1},
			PoolFlowRate:   FlowRateOverride{AspirateULs: 30, DispenseULs: 30, BlowOutULs: 50},
			TempDeckC:      4,
		},
		{
			ID:             "deepwell-quad",
			Name:           "Quadruplicate prep, deep-well working plate",
			Description:    "Higher volumes into a 2 mL deep-well plate, four samples",
			Labware: LabwareRoles{
				Reagent: "agilent_1_reservoir_290ml",
				Source:  "opentrons_24_aluminumblock_nest_1.5ml_screwcap",
				Working: "nest_96_wellplate_2ml_deep",
			},
			Replicates:     4,
			LastSourceWell: "D1",
			Volumes:        Volumes{DistributeUL: 150, ResuspendUL: 80, PoolUL: 80},
			Mix:            Mix{Cycles: 5, VolumeUL: 80, ZOffsetMM: 2},
			TempDeckC:      4,
		},
	}
}
