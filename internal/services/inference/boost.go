package inference

import (
	"fmt"
	"math"
	"sort"
)

// BoostConfig tunes the gradient-boosted stump member.
type BoostConfig struct {
	Rounds     int
	Shrinkage  float64
	Thresholds int // candidate split quantiles per feature
}

type stump struct {
	feature   int
	threshold float64
	left      float64 // applied when x <= threshold
	right     float64
}

func (s stump) apply(features []float64) float64 {
	if s.feature >= len(features) {
		return 0
	}
	if features[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

// Boost is a gradient-boosted ensemble of depth-1 trees under logistic
// loss. Each round fits one stump to the current pseudo-residuals.
type Boost struct {
	cfg    BoostConfig
	base   float64
	stumps []stump
}

func NewBoost(cfg BoostConfig) *Boost {
	if cfg.Rounds <= 0 {
		cfg.Rounds = 50
	}
	if cfg.Shrinkage <= 0 {
		cfg.Shrinkage = 0.1
	}
	if cfg.Thresholds <= 0 {
		cfg.Thresholds = 16
	}
	return &Boost{cfg: cfg}
}

func (m *Boost) Name() string { return "gbt" }

func (m *Boost) Predict(features []float64) float64 {
	f := m.base
	for _, s := range m.stumps {
		f += m.cfg.Shrinkage * s.apply(features)
	}
	return sigmoid(f)
}

func (m *Boost) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("boost fit: %d rows, %d labels", len(X), len(y))
	}
	dim := len(X[0])

	pos := 0.0
	for _, v := range y {
		pos += v
	}
	prior := pos / float64(len(y))
	if prior < 1e-6 {
		prior = 1e-6
	} else if prior > 1-1e-6 {
		prior = 1 - 1e-6
	}
	m.base = math.Log(prior / (1 - prior))
	m.stumps = m.stumps[:0]

	// Raw scores per row, updated as stumps accumulate.
	f := make([]float64, len(X))
	for i := range f {
		f[i] = m.base
	}

	candidates := splitCandidates(X, dim, m.cfg.Thresholds)

	residual := make([]float64, len(X))
	for round := 0; round < m.cfg.Rounds; round++ {
		for i := range X {
			residual[i] = y[i] - sigmoid(f[i])
		}
		best, ok := bestStump(X, residual, candidates)
		if !ok {
			break
		}
		m.stumps = append(m.stumps, best)
		for i := range X {
			f[i] += m.cfg.Shrinkage * best.apply(X[i])
		}
	}
	return nil
}

// splitCandidates picks quantile thresholds per feature.
func splitCandidates(X [][]float64, dim, count int) [][]float64 {
	out := make([][]float64, dim)
	vals := make([]float64, len(X))
	for j := 0; j < dim; j++ {
		for i := range X {
			if j < len(X[i]) {
				vals[i] = X[i][j]
			} else {
				vals[i] = 0
			}
		}
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		seen := make(map[float64]struct{}, count)
		ts := make([]float64, 0, count)
		for k := 1; k <= count; k++ {
			idx := k * (len(sorted) - 1) / (count + 1)
			t := sorted[idx]
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			ts = append(ts, t)
		}
		out[j] = ts
	}
	return out
}

// bestStump finds the single split minimizing squared residual error.
func bestStump(X [][]float64, residual []float64, candidates [][]float64) (stump, bool) {
	var (
		best     stump
		bestGain = math.Inf(-1)
		found    bool
	)
	total := 0.0
	for _, r := range residual {
		total += r
	}
	for j, ts := range candidates {
		for _, t := range ts {
			leftSum, leftN := 0.0, 0
			for i := range X {
				x := 0.0
				if j < len(X[i]) {
					x = X[i][j]
				}
				if x <= t {
					leftSum += residual[i]
					leftN++
				}
			}
			rightN := len(X) - leftN
			if leftN == 0 || rightN == 0 {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(leftN) + rightSum*rightSum/float64(rightN)
			if gain > bestGain {
				bestGain = gain
				best = stump{
					feature:   j,
					threshold: t,
					left:      leftSum / float64(leftN),
					right:     rightSum / float64(rightN),
				}
				found = true
			}
		}
	}
	return best, found
}
