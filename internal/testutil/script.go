package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jjedMoriAnktah/Eve/internal/ir"
	"github.com/jjedMoriAnktah/Eve/internal/plan"
)

// Script is a sequence of rounds run against one plan.
type Script struct {
	// Name identifies the script and its golden file.
	Name string `yaml:"name"`

	// Description explains what the script exercises.
	Description string `yaml:"description"`

	// Plan is the path of a .cue or .json plan file, or of a directory
	// holding a CUE package. Relative paths resolve against the script's
	// directory.
	Plan string `yaml:"plan"`

	// Rounds are applied in order. An empty round is a valid no-op round.
	Rounds []Round `yaml:"rounds"`
}

// Round is one batch of input changes.
type Round struct {
	Add    []Fact `yaml:"add,omitempty"`
	Remove []Fact `yaml:"remove,omitempty"`
}

// Fact is one input triple with an optional count.
type Fact struct {
	Entity    string `yaml:"e"`
	Attribute string `yaml:"a"`
	Value     any    `yaml:"v"`
	Count     int64  `yaml:"n,omitempty"`
}

// LoadScript reads and parses a script YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}

	// Strict field validation catches typos like "remvoe:"
	var s Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s.Plan != "" && !filepath.IsAbs(s.Plan) {
		s.Plan = filepath.Join(filepath.Dir(path), s.Plan)
	}

	if err := validateScript(&s); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return &s, nil
}

// validateScript checks that required fields are present and valid.
func validateScript(s *Script) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Plan == "" {
		return fmt.Errorf("plan is required")
	}
	if len(s.Rounds) == 0 {
		return fmt.Errorf("rounds list is required and must be non-empty")
	}
	for i, r := range s.Rounds {
		if _, err := r.Deltas(); err != nil {
			return fmt.Errorf("rounds[%d]: %w", i, err)
		}
	}
	return nil
}

// Deltas converts the round into signed input deltas, adds first.
func (r Round) Deltas() ([]ir.Delta, error) {
	var out []ir.Delta
	for i, f := range r.Add {
		d, err := f.delta(1)
		if err != nil {
			return nil, fmt.Errorf("add[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	for i, f := range r.Remove {
		d, err := f.delta(-1)
		if err != nil {
			return nil, fmt.Errorf("remove[%d]: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (f Fact) delta(sign int64) (ir.Delta, error) {
	v, err := ir.FromNative(f.Value)
	if err != nil {
		return ir.Delta{}, err
	}
	t := ir.T(ir.EntityID(f.Entity), f.Attribute, v)
	if err := t.Validate(); err != nil {
		return ir.Delta{}, err
	}
	n := f.Count
	if n == 0 {
		n = 1
	}
	if n < 0 {
		return ir.Delta{}, fmt.Errorf("count must be positive, got %d", n)
	}
	return ir.Delta{Triple: t, Count: sign * n}, nil
}

// LoadPlan reads the plan a script refers to.
func LoadPlan(path string) (*plan.Plan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if info.IsDir() {
		return plan.LoadCUE(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		return plan.CompileCUE(string(data))
	case ".json":
		return plan.DecodeJSON(data)
	default:
		return nil, fmt.Errorf("plan %s: unsupported extension %q", path, ext)
	}
}
