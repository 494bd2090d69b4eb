package labware

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog maps labware type identifiers to definitions. The builtin entries
// cover the plates the shipped protocols use; custom labware can be merged in
// from plugin files (see plugins.go).
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// Builtins returns a catalog seeded with the labware the stock protocols use.
func Builtins() *Catalog {
	cat := &Catalog{defs: map[string]Definition{}}
	for _, def := range []Definition{
		{
			ID:             "agilent_1_reservoir_290ml",
			Name:           "Agilent 290 mL reservoir",
			Rows:           1,
			Columns:        1,
			WellCapacityUL: 290000,
		},
		{
			ID:             "opentrons_24_aluminumblock_nest_1.5ml_screwcap",
			Name:           "24-well aluminum block, 1.5 mL screwcap",
			Rows:           4,
			Columns:        6,
			WellCapacityUL: 1500,
		},
		{
			ID:             "4titude_96_wellplate_200ul",
			Name:           "4titude 96-well plate, 200 uL",
			Rows:           8,
			Columns:        12,
			WellCapacityUL: 200,
		},
		{
			ID:             "nest_96_wellplate_2ml_deep",
			Name:           "NEST 96 deep-well plate, 2 mL",
			Rows:           8,
			Columns:        12,
			WellCapacityUL: 2000,
		},
	} {
		if err := cat.Add(def); err != nil {
			panic(err)
		}
	}
	return cat
}

// Add installs a definition. Returns an error if the ID already exists.
func (c *Catalog) Add(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.ID]; exists {
		return fmt.Errorf("labware: %s already registered", def.ID)
	}
	c.defs[def.ID] = def
	return nil
}

// Lookup resolves a labware type identifier.
func (c *Catalog) Lookup(id string) (Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("labware: unknown type %s", id)
	}
	return def, nil
}

// IDs returns a sorted list of known labware identifiers.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.defs))
	for id := range c.defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
