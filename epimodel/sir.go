package epimodel

import "github.com/epifit-xyz/go-epifit/solver"

// NewSIR returns the classic Susceptible-Infected-Removed model.
//
// Parameters: alpha (infection rate, 1/day) and beta (removal rate,
// 1/day). Normalized dynamics over fractions (s, i, r):
//
//	ds/dt = -α·s·i
//	di/dt =  α·s·i - β·i
//	dr/dt =  β·i
//
// The fit output defaults to I and may be switched to S or R with
// SetFitOutput.
func NewSIR() *Model {
	return newModel(definition{
		name:         "SIR",
		compartments: []string{"S", "I", "R"},
		params:       []string{"alpha", "beta"},
		deriv: func(p []float64) solver.ODEFunc {
			alpha, beta := p[0], p[1]
			return func(t float64, w []float64) []float64 {
				infection := alpha * w[0] * w[1]
				removal := beta * w[1]
				return []float64{
					-infection,
					infection - removal,
					removal,
				}
			}
		},
		fitOutput: 1, // I
	})
}
