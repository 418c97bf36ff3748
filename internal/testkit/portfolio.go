package testkit

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"goglm/domain/dataset"
	"goglm/domain/model"
	"goglm/internal/config"
	"goglm/internal/glm"
)

// MotorSpecYAML describes the synthetic motor frequency model
const MotorSpecYAML = `
id: motor-frequency
target: ClaimCount
exposure: Exposure
family: poisson
link: log
features:
  - name: PolicyId
    kind: categorical
    role: reject
  - name: Region
    kind: categorical
  - name: VehicleAge
    kind: numeric
  - name: Density
    kind: numeric
  - name: Fuel
    kind: categorical
interactions:
  - [Region, VehicleAge]
`

// Portfolio columns
var PortfolioColumns = []string{"PolicyId", "Region", "VehicleAge", "Density", "Fuel", "Exposure", "ClaimCount"}

// PortfolioConfig configures the synthetic portfolio generator
type PortfolioConfig struct {
	Policies  int     `json:"policies"`
	TestShare float64 `json:"test_share"`
	Seed      int64   `json:"seed"`
}

// DefaultPortfolioConfig returns a portfolio large enough for stable lift charts
func DefaultPortfolioConfig() PortfolioConfig {
	return PortfolioConfig{
		Policies:  2000,
		TestShare: 0.25,
		Seed:      42,
	}
}

// MotorCoefficients is the coefficient table the claims are simulated from
func MotorCoefficients() []model.CoefficientTerm {
	return []model.CoefficientTerm{
		{Term: "intercept", Coefficient: -2.3, StandardError: 0.05, PValue: 0.0001},
		{Term: "dummy:Region:South", Coefficient: 0.18, StandardError: 0.04, PValue: 0.0002},
		{Term: "dummy:Region:East", Coefficient: -0.22, StandardError: 0.05, PValue: 0.0001},
		{Term: "dummy:Region:West", Coefficient: 0.05, StandardError: 0.06, PValue: 0.4},
		{Term: "VehicleAge:_", Coefficient: -0.02, StandardError: 0.004, PValue: 0.0001},
		{Term: "Density:_", Coefficient: 0.0001, StandardError: 0.00002, PValue: 0.0001},
		{Term: "dummy:Fuel:Diesel", Coefficient: 0.1, StandardError: 0.03, PValue: 0.001},
		{Term: "interaction:Region:South::VehicleAge:_", Coefficient: 0.01, StandardError: 0.005, PValue: 0.04},
	}
}

// MotorSpec parses MotorSpecYAML
func MotorSpec() *config.ModelSpec {
	spec, err := config.ParseModelSpec([]byte(MotorSpecYAML))
	if err != nil {
		panic(fmt.Sprintf("motor spec does not parse: %v", err))
	}
	return spec
}

// Portfolio is a generated dataset together with the model that produced its claims
type Portfolio struct {
	Spec         *config.ModelSpec
	Coefficients []model.CoefficientTerm
	Model        *glm.Model
	Train        *dataset.Frame
	Test         *dataset.Frame
}

// PortfolioGenerator simulates motor policies and their claim counts
type PortfolioGenerator struct {
	config PortfolioConfig
	rng    *rand.Rand
}

// NewPortfolioGenerator creates a generator; equal seeds give equal portfolios
func NewPortfolioGenerator(config PortfolioConfig) *PortfolioGenerator {
	return &PortfolioGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

var (
	regions      = []string{"North", "South", "East", "West"}
	regionShares = []float64{0.4, 0.3, 0.2, 0.1}
)

// Generate draws the policies, scores them with the motor model and samples Poisson claims
func (g *PortfolioGenerator) Generate() (*Portfolio, error) {
	spec := MotorSpec()
	coefficients := MotorCoefficients()
	m, err := glm.NewModel(spec, coefficients, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	rows := make([]dataset.Row, g.config.Policies)
	for i := range rows {
		rows[i] = g.policy(i)
	}
	lambdas, err := m.Predict(context.Background(), rows)
	if err != nil {
		return nil, fmt.Errorf("failed to score synthetic policies: %w", err)
	}

	var train, test []dataset.Row
	for i, row := range rows {
		row["ClaimCount"] = dataset.Num(float64(g.poisson(lambdas[i])))
		if g.rng.Float64() < g.config.TestShare {
			test = append(test, row)
		} else {
			train = append(train, row)
		}
	}

	return &Portfolio{
		Spec:         spec,
		Coefficients: coefficients,
		Model:        m,
		Train:        dataset.NewFrame("train", PortfolioColumns, train),
		Test:         dataset.NewFrame("test", PortfolioColumns, test),
	}, nil
}

// policy draws one policy's rating factors
func (g *PortfolioGenerator) policy(i int) dataset.Row {
	fuel := "Petrol"
	if g.rng.Float64() < 0.35 {
		fuel = "Diesel"
	}
	density := math.Round(math.Exp(5+g.rng.NormFloat64()*1.2)/10) * 10
	if density > 20000 {
		density = 20000
	}
	return dataset.Row{
		"PolicyId":   dataset.Cat(fmt.Sprintf("policy_%05d", i+1)),
		"Region":     dataset.Cat(g.pick(regions, regionShares)),
		"VehicleAge": dataset.Num(float64(g.rng.Intn(21))),
		"Density":    dataset.Num(density),
		"Fuel":       dataset.Cat(fuel),
		"Exposure":   dataset.Num(math.Round((0.1+0.9*g.rng.Float64())*100) / 100),
	}
}

func (g *PortfolioGenerator) pick(values []string, shares []float64) string {
	u := g.rng.Float64()
	for i, s := range shares {
		if u < s {
			return values[i]
		}
		u -= s
	}
	return values[len(values)-1]
}

// poisson samples a count by multiplying uniforms (Knuth); claim rates stay small
func (g *PortfolioGenerator) poisson(lambda float64) int {
	limit := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= g.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
