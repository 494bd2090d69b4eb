// internal/config/config.go
//
// This package holds the protocol configuration surface. A protocol is fully
// described by one Protocol record: which labware sits in each deck role, the
// replicate factor, the last populated source well, and the per-phase volumes
// and policies. The shipped variants (see presets.go) are nothing but Protocol
// records consumed by the one generic engine.

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/plateforge/msprep/internal/labware"
	"github.com/plateforge/msprep/internal/layout"
	"github.com/plateforge/msprep/internal/plan"
	"github.com/plateforge/msprep/internal/robot"
	"gopkg.in/yaml.v3"
)

// LabwareRoles binds a labware type identifier to each deck role.
type LabwareRoles struct {
	Reagent string `yaml:"reagent"`
	Source  string `yaml:"source"`
	Working string `yaml:"working"`
}

// Volumes carries the fixed per-phase volumes in uL.
type Volumes struct {
	DistributeUL float64 `yaml:"distribute_ul"`
	ResuspendUL  float64 `yaml:"resuspend_ul"`
	PoolUL       float64 `yaml:"pool_ul"`
}

// Mix configures the agitation used by the Resuspend and Mix phases.
type Mix struct {
	Cycles    int     `yaml:"cycles"`
	VolumeUL  float64 `yaml:"volume_ul"`
	ZOffsetMM float64 `yaml:"z_offset_mm"`
}

// FlowRateOverride is the optional Pool-phase flow-rate triple in uL/s.
// Zero fields leave the corresponding rate untouched.
type FlowRateOverride struct {
	AspirateULs float64 `yaml:"aspirate_ul_s"`
	DispenseULs float64 `yaml:"dispense_ul_s"`
	BlowOutULs  float64 `yaml:"blow_out_ul_s"`
}

// Messages are the operator checkpoint texts shown between phases.
type Messages struct {
	AfterDistribute string `yaml:"after_distribute,omitempty"`
	AfterMix        string `yaml:"after_mix,omitempty"`
}

// Protocol models one run configuration, static for the run's lifetime.
type Protocol struct {
	ID             string           `yaml:"id"`
	Name           string           `yaml:"name,omitempty"`
	Description    string           `yaml:"description,omitempty"`
	Labware        LabwareRoles     `yaml:"labware"`
	Replicates     int              `yaml:"replicates"`
	LastSourceWell string           `yaml:"last_source_well"`
	Volumes        Volumes          `yaml:"volumes"`
	Mix            Mix              `yaml:"mix"`
	PoolFlowRate   FlowRateOverride `yaml:"pool_flow_rate,omitempty"`
	Messages       Messages         `yaml:"messages,omitempty"`
	TempDeckC      float64          `yaml:"temp_deck_celsius,omitempty"`
}

const (
	defaultAfterDistribute = "Put the source plate in the vacuum drier."
	defaultAfterMix        = "Centrifuge the working plate (remove bubbles and any particulates)."
)

// Load reads a protocol file, fills defaults, and returns the record. The
// result is not yet validated against a labware catalog; see Validate.
func Load(path string) (Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Protocol{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Protocol{}, fmt.Errorf("config: %s is empty", path)
	}
	var p Protocol
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Protocol{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return p.Normalized(), nil
}

// Normalized returns a copy with checkpoint message defaults applied.
func (p Protocol) Normalized() Protocol {
	out := p
	out.ID = strings.TrimSpace(out.ID)
	out.LastSourceWell = strings.TrimSpace(out.LastSourceWell)
	if strings.TrimSpace(out.Messages.AfterDistribute) == "" {
		out.Messages.AfterDistribute = defaultAfterDistribute
	}
	if strings.TrimSpace(out.Messages.AfterMix) == "" {
		out.Messages.AfterMix = defaultAfterMix
	}
	return out
}

// Validate resolves the labware roles against the catalog and checks the
// geometry. Any failure here aborts the run before hardware is touched.
func (p Protocol) Validate(cat *labware.Catalog) error {
	if p.ID == "" {
		return fmt.Errorf("config: protocol id is required")
	}
	if _, err := p.Geometry(cat); err != nil {
		return err
	}
	if _, err := cat.Lookup(p.Labware.Reagent); err != nil {
		return fmt.Errorf("config: protocol %s reagent: %w", p.ID, err)
	}
	return nil
}

// Geometry derives the run geometry from the configured labware and the last
// active source well marker. An empty marker means no populated source wells.
func (p Protocol) Geometry(cat *labware.Catalog) (layout.Geometry, error) {
	src, err := cat.Lookup(p.Labware.Source)
	if err != nil {
		return layout.Geometry{}, fmt.Errorf("config: protocol %s source: %w", p.ID, err)
	}
	working, err := cat.Lookup(p.Labware.Working)
	if err != nil {
		return layout.Geometry{}, fmt.Errorf("config: protocol %s working: %w", p.ID, err)
	}
	lastActive := -1
	if p.LastSourceWell != "" {
		lastActive, err = src.ParseLabel(p.LastSourceWell)
		if err != nil {
			return layout.Geometry{}, fmt.Errorf("config: protocol %s: %w", p.ID, err)
		}
	}
	g := layout.Geometry{
		SourceWells: src.WellCount(),
		DestRows:    working.Rows,
		DestColumns: working.Columns,
		Replicates:  p.Replicates,
		LastActive:  lastActive,
	}
	if err := g.Validate(); err != nil {
		return layout.Geometry{}, fmt.Errorf("config: protocol %s: %w", p.ID, err)
	}
	return g, nil
}

// Params converts the volume and mix settings into sequencer parameters.
func (p Protocol) Params() plan.Params {
	return plan.Params{
		DistributeUL: p.Volumes.DistributeUL,
		ResuspendUL:  p.Volumes.ResuspendUL,
		MixCycles:    p.Mix.Cycles,
		MixVolumeUL:  p.Mix.VolumeUL,
		MixZOffsetMM: p.Mix.ZOffsetMM,
		PoolUL:       p.Volumes.PoolUL,
	}
}

// PoolOverride converts the configured Pool-phase flow rates.
func (p Protocol) PoolOverride() robot.FlowRates {
	return robot.FlowRates{
		AspirateULs: p.PoolFlowRate.AspirateULs,
		DispenseULs: p.PoolFlowRate.DispenseULs,
		BlowOutULs:  p.PoolFlowRate.BlowOutULs,
	}
}
