// Package scoring turns a feature vector into a churn probability. The
// classifier itself is external; backends implement Scorer and are injected
// wherever a prediction is needed.
package scoring

import (
	"context"
	"fmt"
	"math"

	"churn-workers/internal/churn/features"
)

// Scorer returns P(churn) in [0, 1] for one vector.
type Scorer interface {
	Score(ctx context.Context, v features.Vector) (float64, error)
	Name() string
}

// ScoreFunc adapts a function to Scorer.
type ScoreFunc func(ctx context.Context, v features.Vector) (float64, error)

func (f ScoreFunc) Score(ctx context.Context, v features.Vector) (float64, error) {
	return f(ctx, v)
}

func (f ScoreFunc) Name() string { return "func" }

// CheckProbability rejects values a classifier must never return.
func CheckProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("classifier returned %v, want a probability in [0, 1]", p)
	}
	return nil
}

// RiskLevel buckets a probability for routing and alerting.
func RiskLevel(p float64) string {
	switch {
	case p >= 0.7:
		return "high"
	case p >= 0.4:
		return "medium"
	default:
		return "low"
	}
}
