// Package predictor turns customer records into stored predictions. The Zeebe
// workers, the HTTP API and the CLI all go through it.
package predictor

import (
	"context"
	stderrors "errors"
	"runtime"
	"time"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/scoring"
	"churn-workers/internal/churn/store"
	"churn-workers/internal/common/errors"
	"churn-workers/internal/common/logger"
	"churn-workers/internal/common/metrics"
	"churn-workers/internal/common/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "churn-workers/predictor"

// Prediction sources.
const (
	SourceAPI    = "api"
	SourceWorker = "worker"
	SourceCSV    = "csv"
	SourceCLI    = "cli"
)

// Store persists predictions.
type Store interface {
	Save(ctx context.Context, p *store.Prediction) error
	SaveBatch(ctx context.Context, ps []*store.Prediction) error
}

// Indexer mirrors predictions into a search index.
type Indexer interface {
	Index(ctx context.Context, p *store.Prediction) error
}

// Alerter notifies about high-risk customers.
type Alerter interface {
	Notify(ctx context.Context, p *store.Prediction) (bool, error)
}

type Service struct {
	scorer      scoring.Scorer
	store       Store
	indexer     Indexer
	alerter     Alerter
	obs         *observability.Observability
	tracer      trace.Tracer
	logger      logger.Logger
	parallelism int
	policy      features.FailurePolicy
}

type Option func(*Service)

func WithStore(s Store) Option { return func(svc *Service) { svc.store = s } }
func WithIndexer(i Indexer) Option { return func(svc *Service) { svc.indexer = i } }
func WithAlerter(a Alerter) Option { return func(svc *Service) { svc.alerter = a } }
func WithObservability(o *observability.Observability) Option {
	return func(svc *Service) { svc.obs = o }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(svc *Service) { svc.tracer = t } }

// WithParallelism bounds concurrent encodes and classifier calls per batch.
func WithParallelism(n int) Option { return func(svc *Service) { svc.parallelism = n } }

// WithFailurePolicy sets the default batch failure policy.
func WithFailurePolicy(p features.FailurePolicy) Option {
	return func(svc *Service) { svc.policy = p }
}

func NewService(scorer scoring.Scorer, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		scorer:      scorer,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
		parallelism: runtime.GOMAXPROCS(0),
		policy:      features.PolicyExclude,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism <= 0 {
		s.parallelism = runtime.GOMAXPROCS(0)
	}
	return s
}

// Request is one customer to score. Encoded takes precedence over Record.
type Request struct {
	CustomerID string
	Source     string
	Record     features.RawRecord
	Encoded    features.EncodedRow
}

func (r Request) encode() (features.Encoding, error) {
	switch {
	case r.Encoded != nil:
		return features.EncodePreEncoded(r.Encoded)
	case r.Record != nil:
		return features.Encode(r.Record)
	default:
		return features.Encoding{}, errors.NewInvalidInputError("request carries no customer or features")
	}
}

// PredictOne encodes and scores a single customer and records the result.
// Encoding errors are returned as non-retryable *errors.StandardError, and
// classifier errors as SCORING_UNAVAILABLE or SCORING_TIMEOUT.
func (s *Service) PredictOne(ctx context.Context, req Request) (*store.Prediction, error) {
	ctx, span := s.tracer.Start(ctx, "predictor.PredictOne", trace.WithAttributes(
		attribute.String("churn.source", req.Source),
		attribute.String("churn.customer_id", req.CustomerID),
	))
	defer span.End()

	enc, err := req.encode()
	if err != nil {
		s.countEncodingFailure(err)
		return nil, spanError(span, Normalize(err))
	}
	s.logWarnings(req.CustomerID, -1, enc.Warnings)
	span.SetAttributes(attribute.Int("churn.warnings", len(enc.Warnings)))

	p, scoreErr := s.score(ctx, enc.Vector)
	if scoreErr != nil {
		return nil, spanError(span, scoreErr)
	}

	pred := s.newPrediction(req.CustomerID, req.Source, p, enc)
	span.SetAttributes(
		attribute.Float64("churn.probability", p),
		attribute.String("churn.risk_level", pred.RiskLevel),
	)
	s.record(ctx, []*store.Prediction{pred})
	return pred, nil
}

func spanError(span trace.Span, err *errors.StandardError) *errors.StandardError {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(err.Code))
	return err
}

func (s *Service) newPrediction(customerID, source string, p float64, enc features.Encoding) *store.Prediction {
	if source == "" {
		source = SourceAPI
	}
	return &store.Prediction{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Source:      source,
		Probability: p,
		RiskLevel:   scoring.RiskLevel(p),
		Features:    enc.Vector,
		Warnings:    enc.Warnings,
		CreatedAt:   time.Now().UTC(),
	}
}

func (s *Service) score(ctx context.Context, v features.Vector) (float64, *errors.StandardError) {
	backend := s.scorer.Name()
	ctx, span := s.tracer.Start(ctx, "scoring.Score", trace.WithAttributes(attribute.String("churn.backend", backend)))
	defer span.End()

	start := time.Now()
	p, err := s.scorer.Score(ctx, v)
	metrics.ScoringDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	if err == nil {
		err = scoring.CheckProbability(p)
	}
	if err != nil {
		metrics.ScoringErrors.WithLabelValues(backend).Inc()
		var stdErr *errors.StandardError
		switch {
		case stderrors.As(err, &stdErr):
		case stderrors.Is(err, context.DeadlineExceeded):
			stdErr = errors.NewScoringTimeoutError(backend)
		default:
			stdErr = errors.NewScoringUnavailableError(backend, err)
		}
		return 0, spanError(span, stdErr)
	}
	return p, nil
}

// record pushes predictions to every configured sink. Sink failures are
// logged and counted; they never fail the prediction.
func (s *Service) record(ctx context.Context, preds []*store.Prediction) {
	if len(preds) == 0 {
		return
	}

	for _, p := range preds {
		metrics.PredictionsTotal.WithLabelValues(p.Source, p.RiskLevel).Inc()
		s.obs.RecordProbability(ctx, p.Source, p.Probability)
	}

	if s.store != nil {
		var err error
		if len(preds) == 1 {
			err = s.store.Save(ctx, preds[0])
		} else {
			err = s.store.SaveBatch(ctx, preds)
		}
		if err != nil {
			s.sinkFailed("store", errors.NewPredictionStoreFailedError(err), len(preds))
		}
	}

	for _, p := range preds {
		if s.indexer != nil {
			if err := s.indexer.Index(ctx, p); err != nil {
				s.sinkFailed("index", errors.NewSearchIndexFailedError(err), 1)
			}
		}
		if s.alerter != nil {
			sent, err := s.alerter.Notify(ctx, p)
			if err != nil {
				s.sinkFailed("alert", errors.NewAlertPublishFailedError(err), 1)
			} else if sent {
				s.logger.Info("High churn risk alert published", map[string]interface{}{
					"predictionId":     p.ID.String(),
					"customerId":       p.CustomerID,
					"churnProbability": p.Probability,
				})
			}
		}
	}
}

func (s *Service) sinkFailed(sink string, stdErr *errors.StandardError, n int) {
	metrics.SinkFailures.WithLabelValues(sink).Add(float64(n))
	s.logger.Error("Prediction sink failed", map[string]interface{}{
		"sink":      sink,
		"errorCode": string(stdErr.Code),
		"details":   stdErr.Details,
		"count":     n,
	})
}

func (s *Service) countEncodingFailure(err error) {
	var encErr *features.EncodingError
	if stderrors.As(err, &encErr) {
		metrics.EncodingFailures.WithLabelValues(string(encErr.Kind)).Inc()
	}
}

func (s *Service) logWarnings(customerID string, row int, warnings []features.Warning) {
	if len(warnings) == 0 {
		return
	}
	for _, w := range warnings {
		metrics.EncodingWarnings.WithLabelValues(string(w.Kind)).Inc()
	}
	fields := map[string]interface{}{"warnings": warnings}
	if customerID != "" {
		fields["customerId"] = customerID
	}
	if row >= 0 {
		fields["row"] = row
	}
	s.logger.Warn("Encoded with substitutions", fields)
}
