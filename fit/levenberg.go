package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// diffStep is the relative forward-difference step used for Jacobian
// columns. Sized against the integrator's relative tolerance so the
// difference quotient stays above solver noise.
const diffStep = 1e-5

// levenbergMarquardt minimizes the sum of squared residuals over the
// free parameter vector, keeping iterates inside bounds. It returns the
// final iterate, the free-parameter covariance estimate (nil when the
// problem has no spare degrees of freedom or the normal matrix is
// singular), the iteration count, and whether tolerance was met.
//
// A hard error is returned only when the residual function fails at an
// accepted point; infeasible trial steps just increase damping.
func levenbergMarquardt(resid func([]float64) ([]float64, error), x0 []float64, bounds [][2]float64, maxIters int, tolerance float64) ([]float64, [][]float64, int, bool, error) {
	n := len(x0)
	x := append([]float64(nil), x0...)

	r, err := resid(x)
	if err != nil {
		return nil, nil, 0, false, fmt.Errorf("fit: residual evaluation: %w", err)
	}
	m := len(r)
	cost := dot(r, r)

	lambda := 1e-3
	converged := false
	iters := 0
	needJacobian := true

	var (
		jtj *mat.SymDense
		jtr *mat.VecDense
	)

	for iters < maxIters && !converged {
		iters++

		if needJacobian {
			jac, jerr := jacobian(resid, x, r, bounds)
			if jerr != nil {
				return nil, nil, iters, false, fmt.Errorf("fit: jacobian evaluation: %w", jerr)
			}
			jtj, jtr = normalEquations(jac, r)
			needJacobian = false
		}

		delta, solveErr := solveDamped(jtj, jtr, lambda)
		if solveErr != nil {
			// Singular even with damping; damp harder.
			lambda *= 10
			if lambda > 1e12 {
				converged = true
			}
			continue
		}

		xNew := make([]float64, n)
		for i := range x {
			xNew[i] = clamp(x[i]+delta[i], bounds[i][0], bounds[i][1])
		}

		rNew, evalErr := resid(xNew)
		if evalErr != nil {
			// Trial stepped into an infeasible region; damp harder.
			lambda *= 10
			if lambda > 1e12 {
				converged = true
			}
			continue
		}
		costNew := dot(rNew, rNew)

		if costNew < cost {
			improvement := cost - costNew
			stepSize := 0.0
			for i := range xNew {
				if s := math.Abs(xNew[i] - x[i]); s > stepSize {
					stepSize = s
				}
			}
			x, r, cost = xNew, rNew, costNew
			needJacobian = true
			lambda = math.Max(lambda/10, 1e-12)

			if improvement <= tolerance*math.Max(cost, 1e-300) {
				converged = true
			}
			if stepSize <= 1e-12*(1.0+maxAbsSlice(x)) {
				converged = true
			}
		} else {
			lambda *= 10
			if lambda > 1e12 {
				// No descent direction at machine scale: stationary point.
				converged = true
			}
		}
	}

	cov := covarianceAt(resid, x, r, cost, bounds, m, n)
	return x, cov, iters, converged, nil
}

// jacobian builds the m x n forward-difference Jacobian of the residual
// vector. Columns step backward when a forward step would leave the
// bounds.
func jacobian(resid func([]float64) ([]float64, error), x, r []float64, bounds [][2]float64) (*mat.Dense, error) {
	m, n := len(r), len(x)
	jac := mat.NewDense(m, n, nil)
	xp := append([]float64(nil), x...)

	for j := 0; j < n; j++ {
		h := diffStep * math.Max(math.Abs(x[j]), 1.0)
		if x[j]+h > bounds[j][1] {
			h = -h
		}
		xp[j] = x[j] + h
		rp, err := resid(xp)
		if err != nil {
			return nil, err
		}
		xp[j] = x[j]

		inv := 1.0 / h
		for i := 0; i < m; i++ {
			jac.Set(i, j, (rp[i]-r[i])*inv)
		}
	}
	return jac, nil
}

// normalEquations forms J^T J and J^T r.
func normalEquations(jac *mat.Dense, r []float64) (*mat.SymDense, *mat.VecDense) {
	m, n := jac.Dims()
	jtj := mat.NewSymDense(n, nil)
	jtr := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for k := 0; k < m; k++ {
				sum += jac.At(k, i) * jac.At(k, j)
			}
			jtj.SetSym(i, j, sum)
		}
		g := 0.0
		for k := 0; k < m; k++ {
			g += jac.At(k, i) * r[k]
		}
		jtr.SetVec(i, g)
	}
	return jtj, jtr
}

// solveDamped solves (J^T J + lambda*diag(J^T J)) delta = -J^T r by
// Cholesky, falling back to QR when the damped matrix is not positive
// definite.
func solveDamped(jtj *mat.SymDense, jtr *mat.VecDense, lambda float64) ([]float64, error) {
	n := jtj.SymmetricDim()
	a := mat.NewSymDense(n, nil)
	a.CopySym(jtj)
	for i := 0; i < n; i++ {
		d := jtj.At(i, i)
		if d < 1e-12 {
			d = 1e-12
		}
		a.SetSym(i, i, jtj.At(i, i)+lambda*d)
	}
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		b.SetVec(i, -jtr.AtVec(i))
	}

	delta := mat.NewVecDense(n, nil)
	var chol mat.Cholesky
	if chol.Factorize(a) {
		if err := chol.SolveVecTo(delta, b); err == nil {
			return vecSlice(delta), nil
		}
	}

	var ad mat.Dense
	ad.CloneFrom(a)
	var qr mat.QR
	qr.Factorize(&ad)
	if err := qr.SolveVecTo(delta, false, b); err != nil {
		return nil, err
	}
	return vecSlice(delta), nil
}

// covarianceAt estimates the free-parameter covariance s^2 * (J^T J)^-1
// at the final iterate, the usual Gauss-Newton approximation. Returns
// nil when there are no spare degrees of freedom or the normal matrix
// cannot be inverted.
func covarianceAt(resid func([]float64) ([]float64, error), x, r []float64, cost float64, bounds [][2]float64, m, n int) [][]float64 {
	if m <= n {
		return nil
	}
	jac, err := jacobian(resid, x, r, bounds)
	if err != nil {
		return nil
	}
	jtj, _ := normalEquations(jac, r)
	s2 := cost / float64(m-n)

	var chol mat.Cholesky
	if chol.Factorize(jtj) {
		var inv mat.SymDense
		if err := chol.InverseTo(&inv); err == nil {
			return scaledMatrix(&inv, s2, n)
		}
	}

	var dense mat.Dense
	dense.CloneFrom(jtj)
	var invD mat.Dense
	if err := invD.Inverse(&dense); err != nil {
		return nil
	}
	return scaledMatrix(&invD, s2, n)
}

func scaledMatrix(a mat.Matrix, scale float64, n int) [][]float64 {
	out := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			out[i][j] = scale * a.At(i, j)
		}
	}
	return out
}

func vecSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func maxAbsSlice(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if abs := math.Abs(v); abs > m {
			m = abs
		}
	}
	return m
}
