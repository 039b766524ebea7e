package fit

import "math"

// LossFunc scores the disagreement between predicted and observed
// values. Lower is better. Both slices have equal length.
type LossFunc func(pred, obs []float64) float64

// MSELoss computes mean squared error between predicted and observed values.
func MSELoss(pred, obs []float64) float64 {
	if len(obs) == 0 {
		return 0.0
	}
	totalError := 0.0
	for i := range obs {
		diff := pred[i] - obs[i]
		totalError += diff * diff
	}
	return totalError / float64(len(obs))
}

// RMSELoss computes root mean squared error.
func RMSELoss(pred, obs []float64) float64 {
	return math.Sqrt(MSELoss(pred, obs))
}

// RelativeMSELoss computes MSE normalized by the mean observed value.
// Useful when series at very different scales are compared.
func RelativeMSELoss(pred, obs []float64) float64 {
	if len(obs) == 0 {
		return 0.0
	}

	meanObs := 0.0
	for _, v := range obs {
		meanObs += v
	}
	meanObs /= float64(len(obs))
	if meanObs == 0 {
		meanObs = 1.0 // Avoid division by zero
	}

	totalError := 0.0
	for i := range obs {
		diff := (pred[i] - obs[i]) / meanObs
		totalError += diff * diff
	}
	return totalError / float64(len(obs))
}
