// Package glm scores rows with a fitted coefficient table and computes fit metrics.
package glm

import (
	"fmt"
	"math"
	"strings"

	"goglm/domain/core"
)

// Link maps the mean to the linear predictor scale
type Link struct {
	name  string
	power float64
}

// Supported link names
const (
	LinkIdentity       = "identity"
	LinkLog            = "log"
	LinkLogit          = "logit"
	LinkCLogLog        = "cloglog"
	LinkInversePower   = "inverse_power"
	LinkInverseSquared = "inverse_squared"
	LinkPower          = "power"
)

// ParseLink resolves a link by name. power is only read by the power link, where 0 means log.
func ParseLink(name string, power float64) (Link, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	switch n {
	case LinkIdentity, LinkLog, LinkLogit, LinkCLogLog, LinkInversePower, LinkInverseSquared:
		return Link{name: n}, nil
	case "inverse":
		return Link{name: LinkInversePower}, nil
	case LinkPower:
		if power == 0 {
			return Link{name: LinkLog}, nil
		}
		return Link{name: LinkPower, power: power}, nil
	}
	return Link{}, fmt.Errorf("%w: unknown link %q", core.ErrInvalidModelSpec, name)
}

// Name is the canonical link name
func (l Link) Name() string {
	return l.name
}

// IsLog reports whether exposure enters the linear predictor as a log offset
func (l Link) IsLog() bool {
	return l.name == LinkLog
}

// Inverse maps a linear predictor to the mean
func (l Link) Inverse(eta float64) float64 {
	switch l.name {
	case LinkLog:
		return math.Exp(eta)
	case LinkLogit:
		return 1 / (1 + math.Exp(-eta))
	case LinkCLogLog:
		return 1 - math.Exp(-math.Exp(eta))
	case LinkInversePower:
		return 1 / eta
	case LinkInverseSquared:
		return 1 / math.Sqrt(eta)
	case LinkPower:
		return math.Pow(eta, 1/l.power)
	}
	return eta
}

// Apply maps a mean to the linear predictor
func (l Link) Apply(mu float64) float64 {
	switch l.name {
	case LinkLog:
		return math.Log(mu)
	case LinkLogit:
		return math.Log(mu / (1 - mu))
	case LinkCLogLog:
		return math.Log(-math.Log(1 - mu))
	case LinkInversePower:
		return 1 / mu
	case LinkInverseSquared:
		return 1 / (mu * mu)
	case LinkPower:
		return math.Pow(mu, l.power)
	}
	return mu
}
