package inference

import (
	"fmt"
	"math"
	"math/rand"
)

// LogitConfig tunes the logistic member.
type LogitConfig struct {
	LearningRate float64
	Epochs       int
	BatchSize    int
	L2Penalty    float64
	Patience     int
	Seed         int64
}

// Logit is an L2-regularized logistic regression trained with minibatch
// SGD and patience-based early stopping.
type Logit struct {
	cfg     LogitConfig
	weights []float64
	bias    float64
}

func NewLogit(cfg LogitConfig) *Logit {
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Patience <= 0 {
		cfg.Patience = 5
	}
	return &Logit{cfg: cfg}
}

func (m *Logit) Name() string { return "logit" }

func (m *Logit) Predict(features []float64) float64 {
	if len(m.weights) == 0 {
		return 0.5
	}
	z := m.bias
	for i, w := range m.weights {
		if i >= len(features) {
			break
		}
		z += w * features[i]
	}
	return sigmoid(z)
}

// Fit trains on rows X with labels y in {0,1}. Loss is tracked per epoch;
// training stops once it fails to improve for Patience epochs.
func (m *Logit) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("logit fit: %d rows, %d labels", len(X), len(y))
	}
	dim := len(X[0])
	m.weights = make([]float64, dim)
	m.bias = 0

	rng := rand.New(rand.NewSource(m.cfg.Seed + 1))
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}

	best := 1e18
	stale := 0
	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		for start := 0; start < len(idx); start += m.cfg.BatchSize {
			end := start + m.cfg.BatchSize
			if end > len(idx) {
				end = len(idx)
			}
			gradW := make([]float64, dim)
			gradB := 0.0
			for _, i := range idx[start:end] {
				p := m.Predict(X[i])
				diff := p - y[i]
				for j := 0; j < dim && j < len(X[i]); j++ {
					gradW[j] += diff * X[i][j]
				}
				gradB += diff
			}
			n := float64(end - start)
			for j := 0; j < dim; j++ {
				m.weights[j] -= m.cfg.LearningRate * (gradW[j]/n + m.cfg.L2Penalty*m.weights[j])
			}
			m.bias -= m.cfg.LearningRate * gradB / n
		}

		loss := m.logLoss(X, y)
		if loss < best-1e-6 {
			best = loss
			stale = 0
		} else {
			stale++
			if stale >= m.cfg.Patience {
				break
			}
		}
	}
	return nil
}

func (m *Logit) logLoss(X [][]float64, y []float64) float64 {
	const eps = 1e-12
	sum := 0.0
	for i := range X {
		p := m.Predict(X[i])
		if p < eps {
			p = eps
		} else if p > 1-eps {
			p = 1 - eps
		}
		if y[i] > 0.5 {
			sum += -math.Log(p)
		} else {
			sum += -math.Log(1 - p)
		}
	}
	l2 := 0.0
	for _, w := range m.weights {
		l2 += w * w
	}
	return sum/float64(len(X)) + 0.5*m.cfg.L2Penalty*l2
}
