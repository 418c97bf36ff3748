package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"goglm/domain/core"
	"goglm/domain/model"
)

// ModelSpec is the YAML description of a fitted model: its columns, roles and link
type ModelSpec struct {
	ID            string        `yaml:"id"`
	Target        string        `yaml:"target"`
	Exposure      string        `yaml:"exposure,omitempty"`
	Offsets       []string      `yaml:"offsets,omitempty"`
	Family        string        `yaml:"family"`
	Link          string        `yaml:"link"`
	Power         float64       `yaml:"power,omitempty"`
	VariancePower float64       `yaml:"variance_power,omitempty"`
	Features      []FeatureSpec `yaml:"features"`
	Interactions  [][]string    `yaml:"interactions,omitempty"`
}

// FeatureSpec is one feature entry. Included defaults to true.
type FeatureSpec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Role     string `yaml:"role,omitempty"`
	Included *bool  `yaml:"included,omitempty"`
}

// LoadModelSpec reads and validates a model spec file
func LoadModelSpec(path string) (*ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model spec %s: %w", path, err)
	}
	return ParseModelSpec(data)
}

// ParseModelSpec decodes and validates a model spec document
func ParseModelSpec(data []byte) (*ModelSpec, error) {
	var spec ModelSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal model spec: %v", core.ErrInvalidModelSpec, err)
	}
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *ModelSpec) applyDefaults() {
	if s.Family == "" {
		s.Family = "gaussian"
	}
	if s.Link == "" {
		s.Link = "identity"
	}
	if s.ID == "" {
		s.ID = "model"
	}
}

// Validate checks roles and references. Errors wrap core.ErrInvalidModelSpec.
func (s *ModelSpec) Validate() error {
	if strings.TrimSpace(s.Target) == "" {
		return fmt.Errorf("%w: %w", core.ErrInvalidModelSpec, core.ErrNoTarget)
	}

	seen := make(map[string]model.Feature, len(s.Features))
	for _, f := range s.ModelFeatures() {
		if f.Name == "" {
			return fmt.Errorf("%w: feature without name", core.ErrInvalidModelSpec)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate feature %q", core.ErrInvalidModelSpec, f.Name)
		}
		if f.Kind != model.KindCategorical && f.Kind != model.KindNumeric {
			return fmt.Errorf("%w: feature %q has unknown kind %q", core.ErrInvalidModelSpec, f.Name, f.Kind)
		}
		switch f.Role {
		case model.RoleInput, model.RoleReject, model.RoleTarget, model.RoleExposure, model.RoleOffset:
		default:
			return fmt.Errorf("%w: feature %q has unknown role %q", core.ErrInvalidModelSpec, f.Name, f.Role)
		}
		seen[f.Name] = f
	}

	for i, p := range s.Interactions {
		if len(p) != 2 {
			return fmt.Errorf("%w: interaction %d must name exactly two features", core.ErrInvalidModelSpec, i)
		}
	}
	for _, pair := range s.InteractionPairs() {
		for _, name := range []string{pair.First, pair.Second} {
			f, ok := seen[name]
			if !ok || !f.IsInput() {
				return fmt.Errorf("%w: interaction %s references %q which is not an included input",
					core.ErrInvalidModelSpec, pair, name)
			}
		}
		if pair.First == pair.Second {
			return fmt.Errorf("%w: interaction %s pairs a feature with itself", core.ErrInvalidModelSpec, pair)
		}
	}
	return nil
}

// ModelFeatures converts the spec into domain features. Target, exposure and offsets named at
// the top level get their roles even when the feature list omits them.
func (s *ModelSpec) ModelFeatures() []model.Feature {
	out := make([]model.Feature, 0, len(s.Features)+2)
	listed := make(map[string]bool, len(s.Features))
	for _, fs := range s.Features {
		included := true
		if fs.Included != nil {
			included = *fs.Included
		}
		role := model.Role(strings.ToLower(fs.Role))
		switch {
		case fs.Name == s.Target:
			role = model.RoleTarget
		case fs.Name == s.Exposure && s.Exposure != "":
			role = model.RoleExposure
		case s.isOffset(fs.Name):
			role = model.RoleOffset
		case role == "":
			role = model.RoleInput
		}
		kind := model.Kind(strings.ToLower(fs.Kind))
		if kind == "" {
			kind = model.KindCategorical
		}
		out = append(out, model.Feature{Name: fs.Name, Kind: kind, Role: role, Included: included})
		listed[fs.Name] = true
	}

	if s.Target != "" && !listed[s.Target] {
		out = append(out, model.Feature{Name: s.Target, Kind: model.KindNumeric, Role: model.RoleTarget})
	}
	if s.Exposure != "" && !listed[s.Exposure] {
		out = append(out, model.Feature{Name: s.Exposure, Kind: model.KindNumeric, Role: model.RoleExposure})
	}
	for _, o := range s.Offsets {
		if !listed[o] {
			out = append(out, model.Feature{Name: o, Kind: model.KindNumeric, Role: model.RoleOffset})
		}
	}
	return out
}

// InteractionPairs returns the declared pairs in file order
func (s *ModelSpec) InteractionPairs() []model.InteractionPair {
	out := make([]model.InteractionPair, 0, len(s.Interactions))
	for _, p := range s.Interactions {
		if len(p) != 2 {
			continue
		}
		out = append(out, model.InteractionPair{First: p[0], Second: p[1]})
	}
	return out
}

// ModelID returns the spec id as a domain id
func (s *ModelSpec) ModelID() core.ModelID {
	return core.ModelID(s.ID)
}

func (s *ModelSpec) isOffset(name string) bool {
	for _, o := range s.Offsets {
		if o == name {
			return true
		}
	}
	return false
}

// Marshal renders the spec back to YAML
func (s *ModelSpec) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
