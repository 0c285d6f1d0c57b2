package language

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownLanguage is returned by Lookup for identifiers missing from the table
var ErrUnknownLanguage = errors.New("unknown language")

//go:embed languages.yaml
var builtinTable []byte

// Spec describes how to launch one language inside the sandbox
type Spec struct {
	// ID is the canonical identifier; aliases share it.
	ID       string
	Command  []string
	CodeFile string
}

// tableFile is the on-disk layout of a language table
type tableFile struct {
	Languages []tableEntry `yaml:"languages"`
}

type tableEntry struct {
	IDs      []string `yaml:"ids"`
	Command  string   `yaml:"command"`
	CodeFile string   `yaml:"code_file"`
}

// Registry is an immutable id to Spec lookup table
type Registry struct {
	specs map[string]Spec
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := Parse(builtinTable)
	if err != nil {
		panic(fmt.Sprintf("language: invalid builtin table: %v", err))
	}
	return r
})

// Default returns the registry built from the embedded table
func Default() *Registry {
	return defaultRegistry()
}

// New returns the registry read from filename, or the builtin one when
// filename is empty
func New(filename string) (*Registry, error) {
	if filename == "" {
		return Default(), nil
	}
	return Load(filename)
}

// Load reads a language table from a YAML file
func Load(filename string) (*Registry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read language table: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from a YAML language table
func Parse(data []byte) (*Registry, error) {
	var table tableFile
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse language table: %w", err)
	}
	if len(table.Languages) == 0 {
		return nil, errors.New("language table is empty")
	}

	specs := make(map[string]Spec)
	for i, entry := range table.Languages {
		if len(entry.IDs) == 0 {
			return nil, fmt.Errorf("entry %d: no ids", i)
		}
		spec := Spec{
			ID:       entry.IDs[0],
			Command:  strings.Fields(entry.Command),
			CodeFile: entry.CodeFile,
		}
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("entry %q: %w", spec.ID, err)
		}
		for _, id := range entry.IDs {
			if id == "" {
				return nil, fmt.Errorf("entry %q: empty id", spec.ID)
			}
			if _, dup := specs[id]; dup {
				return nil, fmt.Errorf("duplicate language id: %s", id)
			}
			specs[id] = spec
		}
	}

	return &Registry{specs: specs}, nil
}

// validate checks that the command ends up reading the code file
func (s Spec) validate() error {
	if len(s.Command) == 0 {
		return errors.New("empty command")
	}
	if !path.IsAbs(s.CodeFile) {
		return fmt.Errorf("code file must be absolute, got: %q", s.CodeFile)
	}

	last := ""
	for _, token := range s.Command {
		if strings.HasPrefix(token, "/") {
			last = token
		}
	}
	if last != s.CodeFile {
		return fmt.Errorf("last path in command is %q, want code file %q", last, s.CodeFile)
	}
	return nil
}

// Lookup returns the spec registered under id. Matching is exact and case-sensitive.
func (r *Registry) Lookup(id string) (Spec, error) {
	spec, ok := r.specs[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, id)
	}
	spec.Command = slices.Clone(spec.Command)
	return spec, nil
}

// IDs returns every registered identifier, aliases included, sorted
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
