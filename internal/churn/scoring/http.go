package scoring

import (
	"context"
	stderrors "errors"
	"fmt"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/common/errors"
	commonhttp "churn-workers/internal/common/http"
)

type predictRequest struct {
	Features []float64 `json:"features"`
}

type predictResponse struct {
	ChurnProbability *float64 `json:"churn_probability"`
}

// HTTPScorer posts the ordered vector to a model service:
// {"features":[f0..f18]} -> {"churn_probability": p}.
type HTTPScorer struct {
	client *commonhttp.Client
	url    string
}

func NewHTTPScorer(client *commonhttp.Client, url string) *HTTPScorer {
	return &HTTPScorer{client: client, url: url}
}

func (s *HTTPScorer) Name() string { return "http" }

func (s *HTTPScorer) CacheID() string { return "http:" + s.url }

func (s *HTTPScorer) Score(ctx context.Context, v features.Vector) (float64, error) {
	var resp predictResponse
	if err := s.client.PostJSON(ctx, s.url, predictRequest{Features: v.Slice()}, &resp); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return 0, errors.NewScoringTimeoutError(s.Name())
		}
		return 0, errors.NewScoringUnavailableError(s.Name(), err)
	}
	if resp.ChurnProbability == nil {
		return 0, errors.NewScoringUnavailableError(s.Name(), fmt.Errorf("response has no churn_probability"))
	}
	if err := CheckProbability(*resp.ChurnProbability); err != nil {
		return 0, errors.NewScoringUnavailableError(s.Name(), err)
	}
	return *resp.ChurnProbability, nil
}
