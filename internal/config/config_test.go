package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/plateforge/msprep/internal/labware"
)

func TestLoadParsesYAMLAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocol.yaml")
	body := strings.TrimSpace(`
id: custom-run
labware:
  reagent: agilent_1_reservoir_290ml
  source: opentrons_24_aluminumblock_nest_1.5ml_screwcap
  working: 4titude_96_wellplate_200ul
replicates: 4
last_source_well: A2
volumes:
  distribute_ul: 75
  resuspend_ul: 40
  pool_ul: 40
mix:
  cycles: 3
  volume_ul: 40
  z_offset_mm: 1
`)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.ID != "custom-run" || p.Replicates != 4 {
		t.Fatalf("unexpected protocol %+v", p)
	}
	if p.Messages.AfterDistribute == "" || p.Messages.AfterMix == "" {
		t.Fatal("checkpoint message defaults not applied")
	}
	if err := p.Validate(labware.Builtins()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadRejectsMissingAndEmptyFiles(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(empty); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestGeometryFromProtocol(t *testing.T) {
	p, err := Preset("standard-quad")
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	g, err := p.Geometry(labware.Builtins())
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	// A2 on a 4x6 block is linear index 4: five active sources.
	if g.ActiveSources() != 5 {
		t.Fatalf("expected 5 active sources, got %d", g.ActiveSources())
	}
	if g.Replicates != 4 || g.DestRows != 8 || g.DestColumns != 12 {
		t.Fatalf("unexpected geometry %+v", g)
	}
}

func TestGeometryFailsFastOnBadConfig(t *testing.T) {
	cat := labware.Builtins()
	base, err := Preset("standard-quad")
	if err != nil {
		t.Fatalf("preset: %v", err)
	}

	bad := base
	bad.Replicates = 0
	if _, err := bad.Geometry(cat); err == nil {
		t.Fatal("expected error for zero replicates")
	}

	bad = base
	bad.LastSourceWell = "E1"
	if _, err := bad.Geometry(cat); err == nil {
		t.Fatal("expected error for well outside source block")
	}

	bad = base
	bad.Labware.Working = "no_such_plate"
	if _, err := bad.Geometry(cat); err == nil {
		t.Fatal("expected error for unknown labware")
	}
}

func TestEmptyLastWellMeansEmptyRun(t *testing.T) {
	p, err := Preset("standard-quad")
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	p.LastSourceWell = ""
	g, err := p.Geometry(labware.Builtins())
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	if g.ActiveSources() != 0 {
		t.Fatalf("expected 0 active sources, got %d", g.ActiveSources())
	}
}

func TestAllPresetsValidate(t *testing.T) {
	cat := labware.Builtins()
	ids := PresetIDs()
	if len(ids) < 4 {
		t.Fatalf("expected at least 4 presets, got %v", ids)
	}
	for _, id := range ids {
		p, err := Preset(id)
		if err != nil {
			t.Fatalf("preset %s: %v", id, err)
		}
		if err := p.Validate(cat); err != nil {
			t.Fatalf("preset %s invalid: %v", id, err)
		}
	}
	if _, err := Preset("nope"); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}
