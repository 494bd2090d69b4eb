package labware

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"
)

const goDefinitionFuncName = "LabwareDefinitions"

// DefinitionFile pairs a parsed labware definition with its on-disk source.
type DefinitionFile struct {
	Definition Definition
	Path       string
}

// RegisterPlugins discovers YAML and Go labware definitions under dir and
// merges them into the catalog. A missing directory means "no custom labware".
func RegisterPlugins(cat *Catalog, dir string) error {
	if cat == nil {
		return nil
	}
	files, err := loadAllDefinitionFiles(dir)
	if err != nil {
		return err
	}
	seen := make(map[string]string)
	for _, file := range files {
		if existing, ok := seen[file.Definition.ID]; ok {
			return fmt.Errorf("labware: duplicate type %s (%s and %s)", file.Definition.ID, existing, file.Path)
		}
		seen[file.Definition.ID] = file.Path
		if err := cat.Add(file.Definition); err != nil {
			return fmt.Errorf("labware: register %s from %s: %w", file.Definition.ID, file.Path, err)
		}
	}
	return nil
}

func loadAllDefinitionFiles(dir string) ([]DefinitionFile, error) {
	yamlDefs, err := LoadDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	goDefs, err := LoadGoDefinitionDir(dir)
	if err != nil {
		return nil, err
	}
	return append(yamlDefs, goDefs...), nil
}

// ParseDefinitionYAML decodes and validates a single labware definition payload.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("labware: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("labware: decode definition: %w", err)
	}
	def.ID = strings.TrimSpace(def.ID)
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinitionFile reads a YAML file from disk and returns the parsed labware definition.
func LoadDefinitionFile(path string) (DefinitionFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("labware: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return DefinitionFile{}, fmt.Errorf("labware: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("labware: read %s: %w", path, err)
	}
	def, err := ParseDefinitionYAML(data)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("labware: %s: %w", path, err)
	}
	return DefinitionFile{Definition: def, Path: filepath.Clean(path)}, nil
}

// LoadDefinitionDir scans a directory for *.yaml labware files and returns the
// parsed definitions. Missing directories are treated as "no plugins".
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("labware: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isYAMLFile(name) {
			continue
		}
		def, err := LoadDefinitionFile(filepath.Join(trimmed, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

// LoadGoDefinitionDir evaluates every .go file in dir and collects the typed
// labware definitions declared via LabwareDefinitions(). The interpreter
// exposes this package's Definition type under the msprep/labware import
// path, so plugin files declare plates directly instead of building loose
// key/value maps.
func LoadGoDefinitionDir(dir string) ([]DefinitionFile, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("labware: read %s: %w", trimmed, err)
	}
	var defs []DefinitionFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		fileDefs, err := loadGoDefinitionFile(filepath.Join(trimmed, entry.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	if len(defs) == 0 {
		return nil, nil
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Path < defs[j].Path })
	return defs, nil
}

// pluginSymbols is the import surface plugin files see: the Definition type
// itself, so a plugin returns []labware.Definition values the host can use
// without any conversion step.
func pluginSymbols() interp.Exports {
	return interp.Exports{
		"msprep/labware/labware": {
			"Definition": reflect.ValueOf((*Definition)(nil)),
		},
	}
}

func loadGoDefinitionFile(path string) ([]DefinitionFile, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labware: read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(code))) == 0 {
		return nil, fmt.Errorf("labware: %s is empty", path)
	}
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("labware: interpreter stdlib: %w", err)
	}
	if err := i.Use(pluginSymbols()); err != nil {
		return nil, fmt.Errorf("labware: interpreter symbols: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("labware: interpret %s: %w", path, err)
	}
	fnValue, err := i.Eval(goDefinitionFuncName)
	if err != nil {
		return nil, fmt.Errorf("labware: %s must define %s() ([]labware.Definition, error): %w", path, goDefinitionFuncName, err)
	}
	defs, callErr := callDefinitionFunc(fnValue)
	if callErr != nil {
		return nil, fmt.Errorf("labware: %s: %w", path, callErr)
	}
	files := make([]DefinitionFile, 0, len(defs))
	for idx, def := range defs {
		def.ID = strings.TrimSpace(def.ID)
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("labware: %s definition[%d]: %w", path, idx, err)
		}
		files = append(files, DefinitionFile{Definition: def, Path: fmt.Sprintf("%s#%d", path, idx+1)})
	}
	return files, nil
}

func callDefinitionFunc(value reflect.Value) ([]Definition, error) {
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is not a function", goDefinitionFuncName)
	}
	results := value.Call(nil)
	switch len(results) {
	case 2:
		if !results[1].IsNil() {
			e, ok := results[1].Interface().(error)
			if !ok {
				return nil, fmt.Errorf("%s second return value is not an error", goDefinitionFuncName)
			}
			return nil, e
		}
		fallthrough
	case 1:
		defs, ok := results[0].Interface().([]Definition)
		if !ok {
			return nil, fmt.Errorf("%s must return []labware.Definition, got %s", goDefinitionFuncName, results[0].Type())
		}
		return defs, nil
	default:
		return nil, fmt.Errorf("%s must return ([]labware.Definition[, error])", goDefinitionFuncName)
	}
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}
