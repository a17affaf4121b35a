package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog shape.
//
//	actions:
//	  - id: greet
//	    description: Greets a person
//	    parameters:
//	      - name: name
//	        type: string
//	        examples: ["Ada"]
type File struct {
	Actions []ActionDescriptor `yaml:"actions"`
}

// Load decodes a YAML catalog and registers its actions in file order.
func Load(r io.Reader) (*Registry, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	reg := NewRegistry()
	for _, d := range f.Actions {
		if err := reg.Register(d); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	return reg, nil
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}
