package labware

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefinitionDirParsesYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "deep_384.yaml", strings.TrimSpace(`
id: custom_384_wellplate_50ul
name: Custom 384-well plate
rows: 16
columns: 24
well_capacity_ul: 50
`))
	defs, err := LoadDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	def := defs[0].Definition
	if def.ID != "custom_384_wellplate_50ul" || def.WellCount() != 384 {
		t.Fatalf("unexpected definition %+v", def)
	}
}

func TestLoadDefinitionDirMissingIsEmpty(t *testing.T) {
	defs, err := LoadDefinitionDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(defs) != 0 {
		t.Fatalf("expected no definitions, got %d", len(defs))
	}
}

func TestLoadDefinitionDirRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "id: bad\nrows: 0\ncolumns: 12\nwell_capacity_ul: 10\n")
	if _, err := LoadDefinitionDir(dir); err == nil {
		t.Fatal("expected error for invalid definition")
	}
}

func TestLoadGoDefinitionDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "labware.go", strings.TrimSpace(`
package main

import "msprep/labware"

func LabwareDefinitions() ([]labware.Definition, error) {
	return []labware.Definition{
		{
			ID:             "strip_8_tube_200ul",
			Name:           "8-tube strip",
			Rows:           8,
			Columns:        1,
			WellCapacityUL: 200,
		},
	}, nil
}
`))
	defs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d", len(defs))
	}
	if defs[0].Definition.ID != "strip_8_tube_200ul" {
		t.Fatalf("unexpected definition %+v", defs[0].Definition)
	}
	if defs[0].Definition.WellCapacityUL != 200 {
		t.Fatalf("unexpected capacity %v", defs[0].Definition.WellCapacityUL)
	}
}

func TestLoadGoDefinitionDirRejectsWrongShape(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "labware.go", strings.TrimSpace(`
package main

func LabwareDefinitions() []string {
	return []string{"not a definition"}
}
`))
	if _, err := LoadGoDefinitionDir(dir); err == nil {
		t.Fatal("expected error for untyped return value")
	}

	invalid := t.TempDir()
	writeFile(t, invalid, "labware.go", strings.TrimSpace(`
package main

import "msprep/labware"

func LabwareDefinitions() ([]labware.Definition, error) {
	return []labware.Definition{{ID: "bad", Rows: 0, Columns: 12, WellCapacityUL: 10}}, nil
}
`))
	if _, err := LoadGoDefinitionDir(invalid); err == nil {
		t.Fatal("expected error for invalid definition")
	}
}

func TestRegisterPluginsMergesAndRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "id: plugin_plate\nrows: 8\ncolumns: 12\nwell_capacity_ul: 100\n")
	cat := Builtins()
	if err := RegisterPlugins(cat, dir); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := cat.Lookup("plugin_plate"); err != nil {
		t.Fatalf("plugin labware not merged: %v", err)
	}

	dup := t.TempDir()
	writeFile(t, dup, "a.yaml", "id: twice\nrows: 1\ncolumns: 1\nwell_capacity_ul: 10\n")
	writeFile(t, dup, "b.yaml", "id: twice\nrows: 1\ncolumns: 1\nwell_capacity_ul: 10\n")
	if err := RegisterPlugins(Builtins(), dup); err == nil {
		t.Fatal("expected duplicate error")
	}
}
