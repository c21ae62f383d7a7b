package inference

import "fmt"

type member struct {
	model  Model
	weight float64
}

// Ensemble blends member probabilities with fixed weights and reports
// member agreement for quality scoring.
type Ensemble struct {
	members []member
}

// NewEnsemble builds an ensemble from parallel model/weight slices.
// Weights are normalized; non-positive weights drop the member.
func NewEnsemble(ms []Model, weights []float64) (*Ensemble, error) {
	if len(ms) == 0 || len(ms) != len(weights) {
		return nil, fmt.Errorf("ensemble: %d models, %d weights", len(ms), len(weights))
	}
	total := 0.0
	kept := make([]member, 0, len(ms))
	for i, m := range ms {
		if weights[i] <= 0 {
			continue
		}
		kept = append(kept, member{model: m, weight: weights[i]})
		total += weights[i]
	}
	if len(kept) == 0 || total <= 0 {
		return nil, fmt.Errorf("ensemble: no positively weighted members")
	}
	for i := range kept {
		kept[i].weight /= total
	}
	return &Ensemble{members: kept}, nil
}

// Fit trains every trainable member on the same dataset.
func (e *Ensemble) Fit(X [][]float64, y []float64) error {
	for _, m := range e.members {
		if err := m.model.Fit(X, y); err != nil {
			return fmt.Errorf("fit %s: %w", m.model.Name(), err)
		}
	}
	return nil
}

// Predict returns the blended P(up) and the fraction of members whose
// directional vote matches the blend.
func (e *Ensemble) Predict(features []float64) (proba float64, agreement float64) {
	if len(e.members) == 0 {
		return 0.5, 0
	}
	probs := make([]float64, len(e.members))
	for i, m := range e.members {
		probs[i] = m.model.Predict(features)
		proba += m.weight * probs[i]
	}
	up := proba >= 0.5
	agree := 0
	for _, p := range probs {
		if (p >= 0.5) == up {
			agree++
		}
	}
	agreement = float64(agree) / float64(len(probs))
	return proba, agreement
}

// Members lists member names for logging.
func (e *Ensemble) Members() []string {
	names := make([]string, len(e.members))
	for i, m := range e.members {
		names[i] = m.model.Name()
	}
	return names
}
