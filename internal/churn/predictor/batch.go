package predictor

import (
	"context"
	"fmt"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/store"
	"churn-workers/internal/common/errors"
	"churn-workers/internal/common/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultIDColumn is the customer identifier column of the telco dataset.
const DefaultIDColumn = "customerID"

type BatchRequest struct {
	Rows   []map[string]string
	Mode   features.Mode
	Policy features.FailurePolicy
	Source string
	// IDColumn names the column carrying the customer ID.
	IDColumn string
}

// RowOutcome is the result for one input row. Probability is nil when the
// row was not scored. Err carries the encoding or scoring failure; a
// zero-filled row has both a probability and an error.
type RowOutcome struct {
	Index       int
	CustomerID  string
	Probability *float64
	Warnings    []features.Warning
	Err         *errors.StandardError
}

type BatchReport struct {
	Rows   []RowOutcome
	Scored int
	Failed int
}

// FailedRows returns the outcomes that carry an error.
func (r *BatchReport) FailedRows() []RowOutcome {
	var out []RowOutcome
	for _, row := range r.Rows {
		if row.Err != nil {
			out = append(out, row)
		}
	}
	return out
}

// PredictBatch encodes and scores every row independently. A bad row never
// aborts the batch or shifts its neighbours; the report is in input order.
// Only context cancellation fails the call as a whole.
func (s *Service) PredictBatch(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	policy := req.Policy
	if policy == "" {
		policy = s.policy
	}
	idColumn := req.IDColumn
	if idColumn == "" {
		idColumn = DefaultIDColumn
	}
	source := req.Source
	if source == "" {
		source = SourceCSV
	}

	ctx, span := s.tracer.Start(ctx, "predictor.PredictBatch", trace.WithAttributes(
		attribute.String("churn.source", source),
		attribute.String("churn.mode", string(req.Mode)),
		attribute.Int("churn.rows", len(req.Rows)),
	))
	defer span.End()

	encoded, err := features.EncodeBatch(ctx, req.Rows, features.BatchOptions{
		Mode:        req.Mode,
		Policy:      policy,
		Parallelism: s.parallelism,
	})
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Rows: make([]RowOutcome, len(encoded))}
	preds := make([]*store.Prediction, len(encoded))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, res := range encoded {
		i, res := i, res
		out := &report.Rows[i]
		out.Index = res.Index
		out.CustomerID = req.Rows[i][idColumn]
		out.Warnings = res.Warnings

		if res.Err != nil {
			s.countEncodingFailure(res.Err)
			out.Err = Normalize(res.Err)
		} else {
			s.logWarnings(out.CustomerID, i, res.Warnings)
		}
		if !res.Included {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := s.score(gctx, res.Vector)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if out.Err == nil {
					out.Err = err
					return nil
				}
				// The encoding failure stays the row's error; the scoring
				// failure is appended so neither is lost.
				out.Err.Details = fmt.Sprintf("%s; scoring failed: %s: %s", out.Err.Details, err.Code, err.Details)
				return nil
			}
			out.Probability = &p
			// Zero-filled rows are scored but their vectors are not real
			// customers, so they are not recorded.
			if res.Err == nil {
				preds[i] = s.newPrediction(out.CustomerID, source, p, features.Encoding{Vector: res.Vector, Warnings: res.Warnings})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var recorded []*store.Prediction
	for i, row := range report.Rows {
		switch {
		case row.Probability != nil:
			report.Scored++
			metrics.BatchRows.WithLabelValues("scored").Inc()
		case !encoded[i].Included:
			metrics.BatchRows.WithLabelValues("excluded").Inc()
		}
		if row.Err != nil {
			report.Failed++
			metrics.BatchRows.WithLabelValues("failed").Inc()
		}
		if preds[i] != nil {
			recorded = append(recorded, preds[i])
		}
	}
	s.record(ctx, recorded)

	span.SetAttributes(
		attribute.Int("churn.scored", report.Scored),
		attribute.Int("churn.failed", report.Failed),
	)
	return report, nil
}
