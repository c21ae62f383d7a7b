package inference

import "math"

// Model is one ensemble member: a probability estimator over the ordered
// feature vector. Predict returns P(next bar closes up).
type Model interface {
	Name() string
	Fit(X [][]float64, y []float64) error
	Predict(features []float64) float64
}

// clampZ keeps sigmoid inputs in a numerically safe range.
const clampZ = 35.0

func sigmoid(z float64) float64 {
	if z > clampZ {
		z = clampZ
	} else if z < -clampZ {
		z = -clampZ
	}
	return 1.0 / (1.0 + math.Exp(-z))
}
