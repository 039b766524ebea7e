package epimodel

import (
	"errors"
	"math"
	"testing"

	"github.com/epifit-xyz/go-epifit/fit"
	"github.com/epifit-xyz/go-epifit/solver"
)

// JHU cumulative confirmed cases for Guangdong province, daily from
// 2020-01-22 through 2020-02-13.
var guangdongConfirmed = []float64{
	26, 32, 53, 78, 111, 151, 207, 277, 354, 436, 535, 632,
	725, 813, 895, 970, 1034, 1095, 1131, 1159, 1177, 1219, 1241,
}

const guangdongPopulation = 104.3e6

func sirxModel(t *testing.T, p, ic []float64) *Model {
	t.Helper()
	m := NewSIRX()
	if err := m.SetParams(p, ic); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}
	return m
}

func TestSIRXConservation(t *testing.T) {
	m := sirxModel(t,
		[]float64{0.775, 0.125, 0.05, 0.05, 5},
		[]float64{989, 10, 0, 1})
	sol, err := m.Solve(30, 31)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	for i, row := range sol.U {
		total := row[0] + row[1] + row[2] + row[3]
		if math.Abs(total-1000) > 1e-3 {
			t.Errorf("S+I+R+X drifted from N at t=%g: %f", sol.T[i], total)
		}
	}
}

func TestSIRXMonotonicity(t *testing.T) {
	m := sirxModel(t,
		[]float64{0.775, 0.125, 0.05, 0.05, 5},
		[]float64{989, 10, 0, 1})
	sol, err := m.Solve(60, 61)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	infected := sol.GetVariable("I")
	removed := sol.GetVariable("R")
	confirmed := sol.GetVariable("X")
	for i := range infected {
		if infected[i] < -1e-9 {
			t.Errorf("I(t) negative at t=%g: %g", sol.T[i], infected[i])
		}
	}
	for i := 1; i < len(removed); i++ {
		if removed[i] < removed[i-1]-1e-9 {
			t.Errorf("R(t) decreased at t=%g: %g -> %g", sol.T[i], removed[i-1], removed[i])
		}
		if confirmed[i] < confirmed[i-1]-1e-9 {
			t.Errorf("X(t) decreased at t=%g: %g -> %g", sol.T[i], confirmed[i-1], confirmed[i])
		}
	}
}

func TestSIRXInitialConditionHook(t *testing.T) {
	// ratio=5 with X0=1 of N=1000 pins I0 to 5 and rebalances S0,
	// regardless of the I entry passed to SetParams.
	m := sirxModel(t,
		[]float64{0.775, 0.125, 0.05, 0.05, 5},
		[]float64{989, 10, 0, 1})
	sol, err := m.Solve(10, 11)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	row := sol.U[0]
	if math.Abs(row[1]-5) > 1e-9 {
		t.Errorf("Expected I0 = ratio*X0 = 5, got %g", row[1])
	}
	if math.Abs(row[3]-1) > 1e-9 {
		t.Errorf("Expected X0 = 1, got %g", row[3])
	}
	if math.Abs(row[0]-994) > 1e-9 {
		t.Errorf("Expected S0 = 994, got %g", row[0])
	}
	if math.Abs(row[2]) > 1e-9 {
		t.Errorf("Expected R0 = 0, got %g", row[2])
	}

	// InitialConditions still reports the raw user input.
	ic := m.InitialConditions()
	if ic[1] != 10 {
		t.Errorf("Expected raw I entry 10, got %g", ic[1])
	}
}

func TestSIRXMetrics(t *testing.T) {
	m := sirxModel(t,
		[]float64{0.775, 0.125, 0.05, 0.05, 5},
		[]float64{989, 10, 0, 1})

	tInf, err := m.EffectiveInfectiousPeriod()
	if err != nil {
		t.Fatalf("EffectiveInfectiousPeriod failed: %v", err)
	}
	if math.Abs(tInf-1/0.225) > 1e-12 {
		t.Errorf("Expected T_inf_eff = 1/0.225, got %v", tInf)
	}

	r0eff, err := m.EffectiveReproductionNumber()
	if err != nil {
		t.Fatalf("EffectiveReproductionNumber failed: %v", err)
	}
	if math.Abs(r0eff-0.775/0.225) > 1e-12 {
		t.Errorf("Expected R0_eff = 0.775/0.225, got %v", r0eff)
	}

	p, err := m.ContainmentLeverage()
	if err != nil {
		t.Fatalf("ContainmentLeverage failed: %v", err)
	}
	if math.Abs(p-0.5) > 1e-12 {
		t.Errorf("Expected P = 0.5, got %v", p)
	}

	q, err := m.QuarantineProbability()
	if err != nil {
		t.Fatalf("QuarantineProbability failed: %v", err)
	}
	if math.Abs(q-0.1/0.225) > 1e-12 {
		t.Errorf("Expected Q = 0.1/0.225, got %v", q)
	}

	metrics, err := m.Metrics()
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if len(metrics) != 5 {
		t.Errorf("Expected 5 metrics, got %d: %v", len(metrics), metrics)
	}
	if math.Abs(metrics["r0"]-6.2) > 1e-12 {
		t.Errorf("Expected r0 = 6.2, got %v", metrics["r0"])
	}
	for _, key := range []string{"t_inf_eff", "r0_eff", "p", "q"} {
		if _, ok := metrics[key]; !ok {
			t.Errorf("Missing metric %q", key)
		}
	}
}

func TestSIRXMetricsErrors(t *testing.T) {
	t.Run("before parameterization", func(t *testing.T) {
		m := NewSIRX()
		if _, err := m.EffectiveInfectiousPeriod(); !errors.Is(err, ErrNotFitted) {
			t.Errorf("Expected ErrNotFitted, got %v", err)
		}
		if _, err := m.EffectiveReproductionNumber(); !errors.Is(err, ErrNotFitted) {
			t.Errorf("Expected ErrNotFitted, got %v", err)
		}
		if _, err := m.ContainmentLeverage(); !errors.Is(err, ErrNotFitted) {
			t.Errorf("Expected ErrNotFitted, got %v", err)
		}
		if _, err := m.QuarantineProbability(); !errors.Is(err, ErrNotFitted) {
			t.Errorf("Expected ErrNotFitted, got %v", err)
		}
		if _, err := m.Metrics(); !errors.Is(err, ErrNotFitted) {
			t.Errorf("Expected ErrNotFitted, got %v", err)
		}
	})

	t.Run("zero denominators", func(t *testing.T) {
		m := sirxModel(t,
			[]float64{0.775, 0, 0, 0, 5},
			[]float64{989, 10, 0, 1})
		if _, err := m.EffectiveInfectiousPeriod(); !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("Expected ErrDivisionByZero, got %v", err)
		}
		if _, err := m.EffectiveReproductionNumber(); !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("Expected ErrDivisionByZero, got %v", err)
		}
		if _, err := m.ContainmentLeverage(); !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("Expected ErrDivisionByZero, got %v", err)
		}
		if _, err := m.QuarantineProbability(); !errors.Is(err, ErrDivisionByZero) {
			t.Errorf("Expected ErrDivisionByZero, got %v", err)
		}
	})

	t.Run("SIR has no containment rates", func(t *testing.T) {
		m := NewSIR()
		if err := m.SetParams([]float64{0.4, 0.2}, []float64{990, 10, 0}); err != nil {
			t.Fatalf("SetParams failed: %v", err)
		}
		if _, err := m.ContainmentLeverage(); err == nil {
			t.Error("Expected error for SIR containment leverage")
		}
		metrics, err := m.Metrics()
		if err != nil {
			t.Fatalf("Metrics failed: %v", err)
		}
		if len(metrics) != 1 {
			t.Errorf("Expected only r0 for SIR, got %v", metrics)
		}
	})
}

func TestSIRXFitRecovery(t *testing.T) {
	// Perfect synthetic data; only the containment rates are free. The
	// fit can recover them only if its trials apply the same IC hook as
	// the solve that generated the data.
	truthParams := []float64{0.6, 0.15, 0.04, 0.06, 4}
	ic := []float64{9990, 5, 0, 5}

	truth := sirxModel(t, truthParams, ic)
	tObs := solver.UniformTimes(0, 20, 21)
	sol, err := truth.SolveAt(tObs)
	if err != nil {
		t.Fatalf("synthetic solve failed: %v", err)
	}
	yObs := sol.GetVariable("X")

	m := sirxModel(t, []float64{0.6, 0.15, 0.02, 0.09, 4}, ic)
	res, err := m.Fit(tObs, yObs, 10000, &fit.Options{
		Mask: []bool{false, false, true, true, false},
	})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if res.Params[0] != 0.6 || res.Params[1] != 0.15 || res.Params[4] != 4 {
		t.Errorf("Fixed parameters changed: %v", res.Params)
	}
	if rel := math.Abs(res.Params[2]-0.04) / 0.04; rel > 0.02 {
		t.Errorf("Expected kappa0≈0.04 within 2%%, got %v", res.Params[2])
	}
	if rel := math.Abs(res.Params[3]-0.06) / 0.06; rel > 0.02 {
		t.Errorf("Expected kappa≈0.06 within 2%%, got %v", res.Params[3])
	}
}

func TestSIRXFitGuangdong(t *testing.T) {
	// (α, β) fixed per the source paper; containment rates and the
	// initial infected-to-confirmed ratio are fitted to the series.
	pop := guangdongPopulation
	x0 := guangdongConfirmed[0]
	m := sirxModel(t,
		[]float64{0.775, 0.125, 0.05, 0.05, 5},
		[]float64{pop - x0, 0, 0, x0})

	tObs := solver.UniformTimes(0, 22, 23)
	res, err := m.Fit(tObs, guangdongConfirmed, pop, &fit.Options{
		Mask:     []bool{false, false, true, true, true},
		MaxIters: 2000,
	})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if !res.Converged {
		t.Fatal("Expected converged fit")
	}
	if res.FinalLoss >= res.InitialLoss {
		t.Errorf("Expected loss to improve: %g -> %g", res.InitialLoss, res.FinalLoss)
	}
	if res.Params[0] != 0.775 || res.Params[1] != 0.125 {
		t.Errorf("Fixed alpha/beta changed: %v", res.Params)
	}

	if err := m.Apply(res); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	r0eff, err := m.EffectiveReproductionNumber()
	if err != nil {
		t.Fatalf("EffectiveReproductionNumber failed: %v", err)
	}
	if r0eff < 2 || r0eff > 4 {
		t.Errorf("Expected R0_eff in [2, 4], got %v", r0eff)
	}

	p, err := m.ContainmentLeverage()
	if err != nil {
		t.Fatalf("ContainmentLeverage failed: %v", err)
	}
	if p < 0 || p > 1 {
		t.Errorf("Expected P in [0, 1], got %v", p)
	}

	q, err := m.QuarantineProbability()
	if err != nil {
		t.Fatalf("QuarantineProbability failed: %v", err)
	}
	if q < 0 || q > 1 {
		t.Errorf("Expected Q in [0, 1], got %v", q)
	}
}
