package epimodel

import (
	"fmt"

	"github.com/epifit-xyz/go-epifit/solver"
)

// NewSIRX returns the SIR-X containment model of Maier & Brockmann
// (Science, 2020): SIR extended with a symptomatic quarantine rate κ
// acting on the infected and a general containment rate κ₀ removing
// both susceptibles and infected from circulation. X tracks the
// quarantined (confirmed) pool that case counts actually observe.
//
// Parameters: alpha, beta, kappa0, kappa, ratio. Normalized dynamics
// over fractions (s, i, r, x):
//
//	ds/dt = -α·s·i - κ₀·s
//	di/dt =  α·s·i - β·i - κ₀·i - κ·i
//	dr/dt =  β·i + κ₀·s
//	dx/dt =  (κ + κ₀)·i
//
// The fifth parameter "ratio" never enters the dynamics: it is the
// initial infected-to-quarantined ratio I₀/X₀, applied as an
// initial-condition hook before every integration:
//
//	i(0) = ratio · x(0)
//	s(0) = 1 - i(0) - r(0) - x(0)
//
// Fitting it lets the optimizer estimate the unobserved infected pool
// behind the first confirmed count. The fit output is X and is not
// selectable.
func NewSIRX() *Model {
	return newModel(definition{
		name:         "SIR-X",
		compartments: []string{"S", "I", "R", "X"},
		params:       []string{"alpha", "beta", "kappa0", "kappa", "ratio"},
		deriv: func(p []float64) solver.ODEFunc {
			alpha, beta, kappa0, kappa := p[0], p[1], p[2], p[3]
			return func(t float64, w []float64) []float64 {
				infection := alpha * w[0] * w[1]
				containment := kappa0 * w[0]
				removal := beta * w[1]
				quarantine := (kappa + kappa0) * w[1]
				return []float64{
					-infection - containment,
					infection - removal - quarantine,
					removal + containment,
					quarantine,
				}
			}
		},
		icHook: func(p, w0 []float64) []float64 {
			out := append([]float64(nil), w0...)
			out[1] = p[4] * out[3]
			out[0] = 1 - out[1] - out[2] - out[3]
			return out
		},
		fitOutput: 3, // X
		fitFixed:  true,
	})
}

// sirxRates pulls (β, κ₀, κ) for the derived metrics below.
func (m *Model) sirxRates() (beta, kappa0, kappa float64, err error) {
	if beta, err = m.Param("beta"); err != nil {
		return 0, 0, 0, err
	}
	if kappa0, err = m.Param("kappa0"); err != nil {
		return 0, 0, 0, err
	}
	if kappa, err = m.Param("kappa"); err != nil {
		return 0, 0, 0, err
	}
	return beta, kappa0, kappa, nil
}

// EffectiveInfectiousPeriod returns T_inf_eff = 1 / (β + κ + κ₀), the
// mean time an infected individual stays in circulation once both
// removal and quarantine act on the I compartment.
func (m *Model) EffectiveInfectiousPeriod() (float64, error) {
	if !m.parameterized {
		return 0, fmt.Errorf("epimodel: effective infectious period: %w", ErrNotFitted)
	}
	beta, kappa0, kappa, err := m.sirxRates()
	if err != nil {
		return 0, err
	}
	den := beta + kappa + kappa0
	if den == 0 {
		return 0, fmt.Errorf("epimodel: effective infectious period: %w", ErrDivisionByZero)
	}
	return 1 / den, nil
}

// EffectiveReproductionNumber returns R0_eff = α · T_inf_eff.
func (m *Model) EffectiveReproductionNumber() (float64, error) {
	tInf, err := m.EffectiveInfectiousPeriod()
	if err != nil {
		return 0, fmt.Errorf("epimodel: effective reproduction number: %w", err)
	}
	alpha, err := m.Param("alpha")
	if err != nil {
		return 0, err
	}
	return alpha * tInf, nil
}

// ContainmentLeverage returns P = κ₀ / (κ₀ + κ), the share of removal
// from circulation attributable to general containment rather than
// symptomatic quarantine.
func (m *Model) ContainmentLeverage() (float64, error) {
	if !m.parameterized {
		return 0, fmt.Errorf("epimodel: containment leverage: %w", ErrNotFitted)
	}
	_, kappa0, kappa, err := m.sirxRates()
	if err != nil {
		return 0, err
	}
	den := kappa0 + kappa
	if den == 0 {
		return 0, fmt.Errorf("epimodel: containment leverage: %w", ErrDivisionByZero)
	}
	return kappa0 / den, nil
}

// QuarantineProbability returns Q = (κ₀ + κ) / (β + κ₀ + κ), the
// probability that an infected individual ends up quarantined rather
// than recovering unobserved.
func (m *Model) QuarantineProbability() (float64, error) {
	if !m.parameterized {
		return 0, fmt.Errorf("epimodel: quarantine probability: %w", ErrNotFitted)
	}
	beta, kappa0, kappa, err := m.sirxRates()
	if err != nil {
		return 0, err
	}
	den := beta + kappa0 + kappa
	if den == 0 {
		return 0, fmt.Errorf("epimodel: quarantine probability: %w", ErrDivisionByZero)
	}
	return (kappa0 + kappa) / den, nil
}

// Metrics returns the variant's derived metrics by name: "r0" for SIR;
// "r0" plus "t_inf_eff", "r0_eff", "p" and "q" for SIR-X.
func (m *Model) Metrics() (map[string]float64, error) {
	r0, err := m.ReproductionNumber()
	if err != nil {
		return nil, err
	}
	out := map[string]float64{"r0": r0}
	if m.def.name != "SIR-X" {
		return out, nil
	}

	if out["t_inf_eff"], err = m.EffectiveInfectiousPeriod(); err != nil {
		return nil, err
	}
	if out["r0_eff"], err = m.EffectiveReproductionNumber(); err != nil {
		return nil, err
	}
	if out["p"], err = m.ContainmentLeverage(); err != nil {
		return nil, err
	}
	if out["q"], err = m.QuarantineProbability(); err != nil {
		return nil, err
	}
	return out, nil
}
