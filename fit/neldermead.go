package fit

import "math"

// nelderMead implements the Nelder-Mead simplex algorithm. The
// objective must return +Inf for infeasible points; bound handling is
// the caller's concern. Returns the best vertex, iterations used, and
// whether the simplex value spread fell below tolerance.
func nelderMead(f func([]float64) float64, x0 []float64, maxIters int, tolerance float64) ([]float64, int, bool) {
	n := len(x0)

	// Algorithm parameters
	alpha := 1.0 // reflection
	gamma := 2.0 // expansion
	rho := 0.5   // contraction
	sigma := 0.5 // shrink

	// Initialize simplex by perturbing each coordinate
	simplex := make([][]float64, n+1)
	values := make([]float64, n+1)

	simplex[0] = append([]float64(nil), x0...)
	values[0] = f(simplex[0])

	for i := 0; i < n; i++ {
		simplex[i+1] = append([]float64(nil), x0...)
		simplex[i+1][i] += 0.05 * (1.0 + math.Abs(x0[i]))
		values[i+1] = f(simplex[i+1])
	}

	for iter := 1; iter <= maxIters; iter++ {
		sortSimplex(simplex, values)

		if values[n]-values[0] < tolerance {
			return simplex[0], iter, true
		}

		// Centroid of the best n points
		centroid := make([]float64, n)
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += simplex[j][i]
			}
			centroid[i] = sum / float64(n)
		}

		// Reflection
		reflected := make([]float64, n)
		for i := 0; i < n; i++ {
			reflected[i] = centroid[i] + alpha*(centroid[i]-simplex[n][i])
		}
		reflectedVal := f(reflected)

		if values[0] <= reflectedVal && reflectedVal < values[n-1] {
			simplex[n] = reflected
			values[n] = reflectedVal
			continue
		}

		// Expansion
		if reflectedVal < values[0] {
			expanded := make([]float64, n)
			for i := 0; i < n; i++ {
				expanded[i] = centroid[i] + gamma*(reflected[i]-centroid[i])
			}
			expandedVal := f(expanded)

			if expandedVal < reflectedVal {
				simplex[n] = expanded
				values[n] = expandedVal
			} else {
				simplex[n] = reflected
				values[n] = reflectedVal
			}
			continue
		}

		// Contraction
		contracted := make([]float64, n)
		if reflectedVal < values[n] {
			// Outside contraction
			for i := 0; i < n; i++ {
				contracted[i] = centroid[i] + rho*(reflected[i]-centroid[i])
			}
		} else {
			// Inside contraction
			for i := 0; i < n; i++ {
				contracted[i] = centroid[i] + rho*(simplex[n][i]-centroid[i])
			}
		}
		contractedVal := f(contracted)

		if contractedVal < math.Min(reflectedVal, values[n]) {
			simplex[n] = contracted
			values[n] = contractedVal
			continue
		}

		// Shrink toward the best vertex
		for i := 1; i <= n; i++ {
			for j := 0; j < n; j++ {
				simplex[i][j] = simplex[0][j] + sigma*(simplex[i][j]-simplex[0][j])
			}
			values[i] = f(simplex[i])
		}
	}

	sortSimplex(simplex, values)
	return simplex[0], maxIters, false
}

// sortSimplex sorts the simplex points by their function values.
// Insertion sort is sufficient for the small vertex counts here.
func sortSimplex(simplex [][]float64, values []float64) {
	n := len(values)
	for i := 1; i < n; i++ {
		val := values[i]
		point := simplex[i]
		j := i - 1
		for j >= 0 && values[j] > val {
			values[j+1] = values[j]
			simplex[j+1] = simplex[j]
			j--
		}
		values[j+1] = val
		simplex[j+1] = point
	}
}
