package v1alpha1

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Parse decodes a graph spec from YAML or JSON and validates its fields. Structural problems
// (dangling edges, cycles, bad column indices) are detected later, when the graph is built.
func Parse(data []byte) (*GraphSpec, error) {
	spec := &GraphSpec{}
	if err := yaml.UnmarshalStrict(data, spec); err != nil {
		return nil, fmt.Errorf("failed to parse graph spec: %w", err)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	return spec, nil
}

// Load reads and parses a graph spec file.
func Load(path string) (*GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph spec %q: %w", path, err)
	}
	return Parse(data)
}

// Validate checks the field-level constraints of the spec.
func (s *GraphSpec) Validate() error {
	if err := getValidator().Struct(s); err != nil {
		return fmt.Errorf("invalid graph spec: %w", err)
	}
	return nil
}

// Marshal encodes the spec as YAML.
func (s *GraphSpec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
