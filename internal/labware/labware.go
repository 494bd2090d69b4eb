// Package labware describes the plates and reservoirs a protocol runs on:
// their grid shape, per-well capacity, and how wells are addressed.
//
// Wells are addressable three ways, and the enumerations are mutually
// consistent for the lifetime of a definition:
//   - linear index, column-major ("down" order: A1, B1, ... then A2, B2, ...)
//   - linear index, row-major ("across" order: A1, A2, ... then B1, B2, ...)
//   - coordinate label, e.g. "A2" (row letter, 1-based column number)
package labware

import (
	"fmt"
	"strconv"
	"strings"
)

// Definition describes one labware type: a grid of wells with a shared
// per-well working capacity.
type Definition struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name,omitempty"`
	Rows           int     `yaml:"rows"`
	Columns        int     `yaml:"columns"`
	WellCapacityUL float64 `yaml:"well_capacity_ul"`
}

// Validate ensures the definition is well-formed.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("labware: id is required")
	}
	if d.Rows < 1 {
		return fmt.Errorf("labware %s: rows must be >= 1", d.ID)
	}
	if d.Columns < 1 {
		return fmt.Errorf("labware %s: columns must be >= 1", d.ID)
	}
	if d.WellCapacityUL <= 0 {
		return fmt.Errorf("labware %s: well capacity must be > 0", d.ID)
	}
	return nil
}

// WellCount returns the total number of wells.
func (d Definition) WellCount() int {
	return d.Rows * d.Columns
}

// Label renders the coordinate label for a column-major linear index,
// e.g. index 4 on a 4x6 block is "A2".
func (d Definition) Label(index int) (string, error) {
	if index < 0 || index >= d.WellCount() {
		return "", fmt.Errorf("labware %s: well index %d out of range [0, %d)", d.ID, index, d.WellCount())
	}
	row := index % d.Rows
	col := index / d.Rows
	return fmt.Sprintf("%s%d", rowLetters(row), col+1), nil
}

// ParseLabel converts a coordinate label back to a column-major linear index.
func (d Definition) ParseLabel(label string) (int, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(label))
	if trimmed == "" {
		return 0, fmt.Errorf("labware %s: well label is empty", d.ID)
	}
	split := 0
	for split < len(trimmed) && trimmed[split] >= 'A' && trimmed[split] <= 'Z' {
		split++
	}
	if split == 0 || split == len(trimmed) {
		return 0, fmt.Errorf("labware %s: malformed well label %q", d.ID, label)
	}
	row, err := parseRowLetters(trimmed[:split])
	if err != nil {
		return 0, fmt.Errorf("labware %s: malformed well label %q: %w", d.ID, label, err)
	}
	col, err := strconv.Atoi(trimmed[split:])
	if err != nil {
		return 0, fmt.Errorf("labware %s: malformed well label %q: %w", d.ID, label, err)
	}
	if row >= d.Rows || col < 1 || col > d.Columns {
		return 0, fmt.Errorf("labware %s: well %q outside %dx%d grid", d.ID, label, d.Rows, d.Columns)
	}
	return (col-1)*d.Rows + row, nil
}

// DownIndex converts (row, column) coordinates to the column-major linear index.
func (d Definition) DownIndex(row, col int) (int, error) {
	if row < 0 || row >= d.Rows || col < 0 || col >= d.Columns {
		return 0, fmt.Errorf("labware %s: coordinate (%d,%d) outside %dx%d grid", d.ID, row, col, d.Rows, d.Columns)
	}
	return col*d.Rows + row, nil
}

// AcrossIndex converts (row, column) coordinates to the row-major linear index.
func (d Definition) AcrossIndex(row, col int) (int, error) {
	if row < 0 || row >= d.Rows || col < 0 || col >= d.Columns {
		return 0, fmt.Errorf("labware %s: coordinate (%d,%d) outside %dx%d grid", d.ID, row, col, d.Rows, d.Columns)
	}
	return row*d.Columns + col, nil
}

// ColumnWells returns the column-major linear indices of every well in a column,
// top to bottom. This is the addressing unit for multichannel operations.
func (d Definition) ColumnWells(col int) ([]int, error) {
	if col < 0 || col >= d.Columns {
		return nil, fmt.Errorf("labware %s: column %d out of range [0, %d)", d.ID, col, d.Columns)
	}
	wells := make([]int, d.Rows)
	for row := 0; row < d.Rows; row++ {
		wells[row] = col*d.Rows + row
	}
	return wells, nil
}

// ColumnOf returns the column holding a column-major linear index.
func (d Definition) ColumnOf(index int) (int, error) {
	if index < 0 || index >= d.WellCount() {
		return 0, fmt.Errorf("labware %s: well index %d out of range [0, %d)", d.ID, index, d.WellCount())
	}
	return index / d.Rows, nil
}

func rowLetters(row int) string {
	// Rows beyond Z double up (AA, AB, ...), matching common plate map tools.
	if row < 26 {
		return string(rune('A' + row))
	}
	return string(rune('A'+row/26-1)) + string(rune('A'+row%26))
}

func parseRowLetters(letters string) (int, error) {
	switch len(letters) {
	case 1:
		return int(letters[0] - 'A'), nil
	case 2:
		return (int(letters[0]-'A')+1)*26 + int(letters[1]-'A'), nil
	default:
		return 0, fmt.Errorf("row %q is too long", letters)
	}
}
