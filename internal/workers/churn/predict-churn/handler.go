// internal/workers/churn/predict-churn/handler.go
package predictchurn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/predictor"
	"churn-workers/internal/common/camunda"
	"churn-workers/internal/common/errors"
	"churn-workers/internal/common/logger"
	"churn-workers/internal/common/metrics"
	"churn-workers/internal/common/observability"
	"churn-workers/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "predict-churn"

var schema = validation.MustCompile(inputSchema)

type Handler struct {
	config     *Config
	service    *predictor.Service
	logger     logger.Logger
	errHandler *errors.ErrorHandler
	obs        *observability.Observability
}

func NewHandler(config *Config, service *predictor.Service, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		service:    service,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
		obs:        obs,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.run(ctx, job.Variables)
	if err != nil {
		bpmnErr := h.errHandler.HandleJobError(ctx, client, job, err)
		h.observe(ctx, start, "failed", bpmnErr.Code)
		return
	}

	if err := camunda.CompleteJob(ctx, client, job, output); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		h.observe(ctx, start, "failed", "COMPLETE_FAILED")
		return
	}
	h.observe(ctx, start, "completed", "")
}

func (h *Handler) observe(ctx context.Context, start time.Time, status, code string) {
	elapsed := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(elapsed.Seconds())
	if status == "completed" {
		metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	} else {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, code).Inc()
	}
	h.obs.RecordJobProcessed(ctx, TaskType, status)
	h.obs.RecordJobDuration(ctx, TaskType, elapsed, status)
}

func (h *Handler) run(ctx context.Context, variables string) (*Output, error) {
	input, err := ParseInput(variables)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, input)
}

// ParseInput decodes and schema-checks job variables.
func ParseInput(variables string) (*Input, error) {
	if res := schema.ValidateJSON([]byte(variables)); !res.Valid {
		return nil, errors.NewInvalidInputError(res.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

// Execute scores one customer. Pre-encoded features win when both are given.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}

	req := predictor.Request{CustomerID: input.CustomerID, Source: predictor.SourceWorker}
	switch {
	case input.Features != nil:
		req.Encoded = features.RowFromValues(input.Features)
	case input.Customer != nil:
		req.Record = features.RecordFromValues(input.Customer)
	default:
		return nil, errors.NewInvalidInputError("one of customer or features is required")
	}

	pred, err := h.service.PredictOne(ctx, req)
	if err != nil {
		return nil, err
	}

	warnings := pred.Warnings
	if warnings == nil {
		warnings = []features.Warning{}
	}
	return &Output{
		PredictionID:     pred.ID.String(),
		ChurnProbability: pred.Probability,
		RiskLevel:        pred.RiskLevel,
		Features:         pred.Features.Map(),
		Warnings:         warnings,
	}, nil
}
