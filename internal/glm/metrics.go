package glm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/report"
)

// Family is the error distribution of the model
type Family struct {
	name          string
	variancePower float64
}

// Supported family names
const (
	FamilyGaussian = "gaussian"
	FamilyPoisson  = "poisson"
	FamilyGamma    = "gamma"
	FamilyBinomial = "binomial"
	FamilyTweedie  = "tweedie"
)

// ParseFamily resolves a family by name. variancePower is only read by tweedie and
// defaults to 1.5 there.
func ParseFamily(name string, variancePower float64) (Family, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case FamilyGaussian, FamilyPoisson, FamilyGamma, FamilyBinomial:
		return Family{name: n}, nil
	case FamilyTweedie:
		if variancePower == 0 {
			variancePower = 1.5
		}
		if variancePower <= 1 || variancePower >= 2 {
			return Family{}, fmt.Errorf("%w: tweedie variance power %g outside (1, 2)", core.ErrInvalidModelSpec, variancePower)
		}
		return Family{name: n, variancePower: variancePower}, nil
	}
	return Family{}, fmt.Errorf("%w: unknown family %q", core.ErrInvalidModelSpec, name)
}

func (f Family) Name() string {
	return f.name
}

// HasLikelihood is false for tweedie, whose fit is reported by deviance alone
func (f Family) HasLikelihood() bool {
	return f.name != FamilyTweedie
}

// UnitDeviance is the deviance contribution of one observation with unit weight
func (f Family) UnitDeviance(y, mu float64) float64 {
	switch f.name {
	case FamilyPoisson:
		return 2 * (xlogy(y, y/mu) - (y - mu))
	case FamilyGamma:
		return 2 * (-math.Log(y/mu) + (y-mu)/mu)
	case FamilyBinomial:
		return 2 * (xlogy(y, y/mu) + xlogy(1-y, (1-y)/(1-mu)))
	case FamilyTweedie:
		p := f.variancePower
		return 2 * (math.Pow(y, 2-p)/((1-p)*(2-p)) - y*math.Pow(mu, 1-p)/(1-p) + math.Pow(mu, 2-p)/(2-p))
	}
	return (y - mu) * (y - mu)
}

// xlogy is x*log(z) with 0*log(0) taken as 0
func xlogy(x, z float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(z)
}

// Fit computes weighted deviance and, where the family has one, the log-likelihood with the
// dispersion estimated from the data.
func (f Family) Fit(y, mu, w []float64) (deviance, logLikelihood float64) {
	for i := range y {
		deviance += w[i] * f.UnitDeviance(y[i], mu[i])
	}
	if !f.HasLikelihood() {
		return deviance, math.NaN()
	}

	total := floats.Sum(w)
	for i := range y {
		logLikelihood += w[i] * f.logProb(y[i], mu[i], deviance/total)
	}
	return deviance, logLikelihood
}

// logProb evaluates the log-density at y; dispersion is the mean unit deviance
func (f Family) logProb(y, mu, dispersion float64) float64 {
	switch f.name {
	case FamilyPoisson:
		if y == math.Floor(y) {
			return distuv.Poisson{Lambda: mu}.LogProb(y)
		}
		g, _ := math.Lgamma(y + 1)
		return y*math.Log(mu) - mu - g
	case FamilyGamma:
		shape := 1 / dispersion
		return distuv.Gamma{Alpha: shape, Beta: shape / mu}.LogProb(y)
	case FamilyBinomial:
		if y == 0 || y == 1 {
			return distuv.Bernoulli{P: mu}.LogProb(y)
		}
		return xlogy(y, mu) + xlogy(1-y, 1-mu)
	}
	return distuv.Normal{Mu: mu, Sigma: math.Sqrt(dispersion)}.LogProb(y)
}

// Metrics scores the frame and reports deviance, log-likelihood, AIC and BIC. Rows are
// weighted by exposure when the model has an exposure column. Likelihood figures are 0 for
// families without a likelihood.
func (m *Model) Metrics(ctx context.Context, frame *dataset.Frame, partition dataset.Partition) (report.ModelMetrics, error) {
	if frame.Len() == 0 {
		return report.ModelMetrics{}, core.NewZeroExposureError(m.ID(), m.spec.Exposure)
	}
	y, row, ok := frame.Floats(m.spec.Target)
	if !ok {
		if _, present := frame.Rows[row][m.spec.Target]; !present {
			return report.ModelMetrics{}, core.NewMissingColumnError(m.spec.Target, row)
		}
		return report.ModelMetrics{}, core.NewInvalidValueError(m.spec.Target, row, "target must be numeric")
	}
	mu, err := m.Predict(ctx, frame.Rows)
	if err != nil {
		return report.ModelMetrics{}, err
	}
	exposure := ""
	if m.spec.Exposure != "" && !m.link.IsLog() {
		exposure = m.spec.Exposure
	}
	w := frame.Weights(exposure)

	deviance, ll := m.family.Fit(y, mu, w)
	k := float64(m.Parameters())
	out := report.ModelMetrics{
		Dataset:    partition,
		Family:     m.family.Name(),
		Rows:       frame.Len(),
		Parameters: m.Parameters(),
		Deviance:   deviance,
	}
	if m.family.HasLikelihood() && !math.IsNaN(ll) && !math.IsInf(ll, 0) {
		out.LogLikelihood = ll
		out.AIC = 2*k - 2*ll
		out.BIC = k*math.Log(float64(frame.Len())) - 2*ll
	} else {
		m.log.Debug().Str("family", m.family.Name()).Msg("log-likelihood unavailable, reporting deviance only")
	}
	return out, nil
}
