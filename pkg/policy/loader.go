package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleDef is an operator-defined risk rule: a CEL expression over proposal
// fields that, when true, contributes an extra check result.
type RuleDef struct {
	Name      string  `yaml:"name"`
	Article   string  `yaml:"article"`
	Expr      string  `yaml:"expr"`
	Score     float64 `yaml:"score"`
	HardBlock bool    `yaml:"hard_block"`
}

// File is a policy override document: weight and threshold adjustments
// plus custom rules. Absent fields leave the defaults untouched.
type File struct {
	Weights    map[string]float64 `yaml:"weights"`
	Thresholds struct {
		Allow     *float64 `yaml:"allow"`
		Contain   *float64 `yaml:"contain"`
		Challenge *float64 `yaml:"challenge"`
		Block     *float64 `yaml:"block"`
	} `yaml:"thresholds"`
	Rules []RuleDef `yaml:"rules"`
}

// LoadFile parses a YAML policy override file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", path, err)
	}
	for _, r := range f.Rules {
		if r.Name == "" || r.Expr == "" {
			return nil, fmt.Errorf("policy: rule in %s missing name or expr", path)
		}
	}
	return &f, nil
}

// Apply merges the file's overrides over the defaults and returns the
// effective weight table and thresholds. The package-level tables are
// never mutated: engines built from different policy files score
// independently. Called once at engine construction.
func (f *File) Apply() (map[string]float64, Thresholds) {
	weights := make(map[string]float64, len(Weights))
	for dim, w := range Weights {
		weights[dim] = w
	}
	t := DefaultThresholds()
	if f == nil {
		return weights, t
	}
	for dim, w := range f.Weights {
		weights[dim] = w
	}
	if v := f.Thresholds.Allow; v != nil {
		t.Allow = *v
	}
	if v := f.Thresholds.Contain; v != nil {
		t.Contain = *v
	}
	if v := f.Thresholds.Challenge; v != nil {
		t.Challenge = *v
	}
	if v := f.Thresholds.Block; v != nil {
		t.Block = *v
	}
	return weights, t
}
