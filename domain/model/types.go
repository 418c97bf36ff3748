package model

import (
	"fmt"
	"strings"
)

// Kind is the measurement type of a feature
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindNumeric     Kind = "numeric"
)

// Role is how the fit used a column
type Role string

const (
	RoleInput    Role = "input"
	RoleReject   Role = "reject"
	RoleTarget   Role = "target"
	RoleExposure Role = "exposure"
	RoleOffset   Role = "offset"
)

// Feature describes one column of a fitted model. Immutable for the model's lifetime.
type Feature struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Role     Role   `json:"role"`
	Included bool   `json:"included"`
}

// IsInput reports whether the feature takes part in relativities
func (f Feature) IsInput() bool {
	return f.Role == RoleInput && f.Included
}

// IsNumeric reports whether the feature is numeric
func (f Feature) IsNumeric() bool {
	return f.Kind == KindNumeric
}

// Inputs filters the included input features, keeping order
func Inputs(features []Feature) []Feature {
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		if f.IsInput() {
			out = append(out, f)
		}
	}
	return out
}

// Lookup finds a feature by name
func Lookup(features []Feature, name string) (Feature, bool) {
	for _, f := range features {
		if f.Name == name {
			return f, true
		}
	}
	return Feature{}, false
}

// CoefficientTerm is one row of the fitted model's coefficient table
type CoefficientTerm struct {
	Term          string  `json:"term"`
	Coefficient   float64 `json:"coefficient"`
	StandardError float64 `json:"standard_error"`
	PValue        float64 `json:"p_value"`
}

// InteractionPair is an ordered pair of features the fit was configured with
type InteractionPair struct {
	First  string `json:"first" yaml:"first"`
	Second string `json:"second" yaml:"second"`
}

// Name renders the pair the way reporting tables label it
func (p InteractionPair) Name() string {
	return p.First + "::" + p.Second
}

func (p InteractionPair) String() string {
	return p.Name()
}

// ParseInteractionPair parses "a::b" or "a,b"
func ParseInteractionPair(s string) (InteractionPair, error) {
	sep := "::"
	if !strings.Contains(s, sep) {
		sep = ","
	}
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return InteractionPair{}, fmt.Errorf("invalid interaction pair %q", s)
	}
	return InteractionPair{First: strings.TrimSpace(parts[0]), Second: strings.TrimSpace(parts[1])}, nil
}
