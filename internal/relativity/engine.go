// Package relativity derives one-way and pairwise relativities by substituting modalities into
// a baseline row and comparing oracle predictions with the baseline prediction.
package relativity

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/internal/basevalue"
	"goglm/internal/terms"
)

// Predictor scores batches of rows
type Predictor interface {
	Predict(ctx context.Context, rows []dataset.Row) ([]float64, error)
}

// Options tune sampling and parallelism
type Options struct {
	NumericSamples int
	Workers        int
	Logger         zerolog.Logger
}

// DefaultOptions returns 10 numeric samples and 4 workers
func DefaultOptions() Options {
	return Options{NumericSamples: 10, Workers: 4, Logger: zerolog.Nop()}
}

// Input bundles what one computation reads. None of it is mutated.
type Input struct {
	ModelID        core.ModelID
	Base           *basevalue.BaseValues
	Terms          *terms.Table
	Interactions   []model.InteractionPair
	Template       dataset.Row
	ExposureColumn string
}

// Modality is one substituted value and its relativity
type Modality struct {
	Value      dataset.Value `json:"value"`
	Relativity float64       `json:"relativity"`
}

// FeatureRelativities is the one-way curve of a feature
type FeatureRelativities struct {
	Feature    model.Feature `json:"feature"`
	Base       dataset.Value `json:"base"`
	Modalities []Modality    `json:"modalities"`
}

// Lookup returns the relativity at an exact modality
func (f *FeatureRelativities) Lookup(v dataset.Value) (float64, bool) {
	for _, m := range f.Modalities {
		if m.Value.Equal(v) {
			return m.Relativity, true
		}
	}
	return 0, false
}

// Result holds every relativity of one model
type Result struct {
	ModelID      core.ModelID              `json:"model_id"`
	Baseline     float64                   `json:"baseline"`
	Features     []FeatureRelativities     `json:"features"`
	Interactions []InteractionRelativities `json:"interactions"`
}

// Feature finds the curve of a feature
func (r *Result) Feature(name string) (*FeatureRelativities, bool) {
	for i := range r.Features {
		if r.Features[i].Feature.Name == name {
			return &r.Features[i], true
		}
	}
	return nil, false
}

// Engine computes relativities against a predictor
type Engine struct {
	oracle Predictor
	opts   Options
}

// NewEngine creates an engine. Non-positive options fall back to defaults.
func NewEngine(oracle Predictor, opts Options) *Engine {
	def := DefaultOptions()
	if opts.NumericSamples < 1 {
		opts.NumericSamples = def.NumericSamples
	}
	if opts.Workers < 1 {
		opts.Workers = def.Workers
	}
	return &Engine{oracle: oracle, opts: opts}
}

// Compute runs the baseline prediction, then every feature and every declared pair as one
// batched prediction each. Batches run concurrently; results land in fixed slots so the output
// does not depend on scheduling.
func (e *Engine) Compute(ctx context.Context, in Input) (*Result, error) {
	if in.Base == nil {
		return nil, core.NewConfigurationError(in.ModelID, "base values not resolved")
	}
	log := e.opts.Logger.With().Str("model_id", in.ModelID.String()).Logger()

	baselineRow := in.Base.BaselineRow(in.Template, in.ExposureColumn)
	preds, err := e.predict(ctx, in.ModelID, "baseline", []dataset.Row{baselineRow})
	if err != nil {
		return nil, err
	}
	baseline := preds[0]
	if baseline == 0 || math.IsNaN(baseline) || math.IsInf(baseline, 0) {
		log.Warn().Float64("baseline", baseline).Msg("degenerate baseline prediction, relativities default to 1.0")
	}

	grids := make([]*grid, len(in.Interactions))
	for i, pair := range in.Interactions {
		g, err := newGrid(in, pair, e.opts.NumericSamples)
		if err != nil {
			return nil, err
		}
		grids[i] = g
	}

	result := &Result{
		ModelID:      in.ModelID,
		Baseline:     baseline,
		Features:     make([]FeatureRelativities, len(in.Base.Features)),
		Interactions: make([]InteractionRelativities, len(in.Interactions)),
	}

	sem := semaphore.NewWeighted(int64(e.opts.Workers))
	g, gctx := errgroup.WithContext(ctx)

	for i, f := range in.Base.Features {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			fr, err := e.computeFeature(gctx, in, baselineRow, baseline, f, log)
			if err != nil {
				return err
			}
			result.Features[i] = fr
			return nil
		})
	}

	joints := make([][]float64, len(grids))
	for i, gr := range grids {
		cost := gr.cost(e.opts.Workers)
		g.Go(func() error {
			if err := sem.Acquire(gctx, cost); err != nil {
				return err
			}
			defer sem.Release(cost)

			joint, err := e.computeJoint(gctx, in, baselineRow, baseline, gr)
			if err != nil {
				return err
			}
			joints[i] = joint
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, gr := range grids {
		result.Interactions[i] = gr.factor(result, joints[i], in.Terms, log)
	}

	log.Debug().
		Float64("baseline", baseline).
		Int("features", len(result.Features)).
		Int("interactions", len(result.Interactions)).
		Msg("computed relativities")

	return result, nil
}

// Modalities lists the values substituted for a feature: every level, or evenly spaced samples
func Modalities(base *basevalue.BaseValues, f model.Feature, samples int) []dataset.Value {
	m := base.Modalities[f.Name]
	if f.IsNumeric() {
		points := m.Sample(samples)
		out := make([]dataset.Value, len(points))
		for i, p := range points {
			out[i] = dataset.Num(p)
		}
		return out
	}
	out := make([]dataset.Value, len(m.Levels))
	for i, level := range m.Levels {
		out[i] = dataset.Cat(level)
	}
	return out
}

func (e *Engine) computeFeature(ctx context.Context, in Input, baselineRow dataset.Row, baseline float64,
	f model.Feature, log zerolog.Logger) (FeatureRelativities, error) {
	values := Modalities(in.Base, f, e.opts.NumericSamples)
	base := in.Base.Values[f.Name]

	rows := make([]dataset.Row, len(values))
	for i, v := range values {
		row := baselineRow.Clone()
		row[f.Name] = v
		rows[i] = row
	}

	preds, err := e.predict(ctx, in.ModelID, "feature "+f.Name, rows)
	if err != nil {
		return FeatureRelativities{}, err
	}

	out := FeatureRelativities{Feature: f, Base: base, Modalities: make([]Modality, len(values))}
	for i, v := range values {
		rel := 1.0
		if !v.Equal(base) {
			rel = ratio(preds[i], baseline)
			if math.IsNaN(rel) {
				log.Warn().
					Err(core.NewNumericDegeneracyError(f.Name, v.String(), "non-finite relativity")).
					Msg("relativity defaulted to 1.0")
				rel = 1.0
			}
		}
		out.Modalities[i] = Modality{Value: v, Relativity: rel}
	}
	return out, nil
}

func (e *Engine) computeJoint(ctx context.Context, in Input, baselineRow dataset.Row, baseline float64, gr *grid) ([]float64, error) {
	rows := make([]dataset.Row, 0, len(gr.firstValues)*len(gr.secondValues))
	for _, v1 := range gr.firstValues {
		for _, v2 := range gr.secondValues {
			row := baselineRow.Clone()
			row[gr.pair.First] = v1
			row[gr.pair.Second] = v2
			rows = append(rows, row)
		}
	}

	preds, err := e.predict(ctx, in.ModelID, "interaction "+gr.pair.Name(), rows)
	if err != nil {
		return nil, err
	}

	joint := make([]float64, len(preds))
	for i, p := range preds {
		joint[i] = ratio(p, baseline)
	}
	return joint, nil
}

func (e *Engine) predict(ctx context.Context, modelID core.ModelID, operation string, rows []dataset.Row) ([]float64, error) {
	preds, err := e.oracle.Predict(ctx, rows)
	if err != nil {
		return nil, core.NewOracleError(modelID, "predict "+operation, err)
	}
	if len(preds) != len(rows) {
		return nil, core.NewOracleError(modelID, "predict "+operation,
			fmt.Errorf("returned %d predictions for %d rows", len(preds), len(rows)))
	}
	return preds, nil
}

// ratio returns a/b, or NaN when the quotient is not finite
func ratio(a, b float64) float64 {
	r := a / b
	if math.IsInf(r, 0) {
		return math.NaN()
	}
	return r
}
