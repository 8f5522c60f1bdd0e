// internal/workers/churn/score-batch/handler.go
package scorebatch

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

const TaskType = "score-churn-batch"

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

	h.logger.Info("batch scored", map[string]interface{}{
		"jobKey": job.Key,
		"rows":   len(output.Results),
		"scored": output.Scored,
		"failed": output.Failed,
	})
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

// Execute scores every record. Per-row failures are reported in the output
// and do not fail the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.NewInvalidInputError("input cannot be nil")
	}
	if h.config.MaxRows > 0 && len(input.Records) > h.config.MaxRows {
		return nil, errors.NewInvalidInputError(
			fmt.Sprintf("batch has %d records, limit is %d", len(input.Records), h.config.MaxRows))
	}

	mode := features.ModeRaw
	if input.Mode != "" {
		m, err := features.ParseMode(input.Mode)
		if err != nil {
			return nil, errors.NewInvalidInputError(err.Error())
		}
		mode = m
	}
	var policy features.FailurePolicy
	if input.FailurePolicy != "" {
		p, err := features.ParsePolicy(input.FailurePolicy)
		if err != nil {
			return nil, errors.NewInvalidInputError(err.Error())
		}
		policy = p
	}

	rows := make([]map[string]string, len(input.Records))
	for i, rec := range input.Records {
		if mode == features.ModeEncoded {
			rows[i] = features.RowFromValues(rec)
		} else {
			rows[i] = features.RecordFromValues(rec)
		}
		if id, ok := rows[i]["customerId"]; ok && input.IDColumn == "" {
			rows[i][predictor.DefaultIDColumn] = id
		}
	}

	report, err := h.service.PredictBatch(ctx, predictor.BatchRequest{
		Rows:     rows,
		Mode:     mode,
		Policy:   policy,
		Source:   predictor.SourceWorker,
		IDColumn: input.IDColumn,
	})
	if err != nil {
		return nil, errors.NewTimeoutError(TaskType, err)
	}

	out := &Output{
		Results: make([]RowResult, len(report.Rows)),
		Scored:  report.Scored,
		Failed:  report.Failed,
	}
	for i, row := range report.Rows {
		res := RowResult{
			Index:            row.Index,
			CustomerID:       row.CustomerID,
			ChurnProbability: row.Probability,
		}
		if row.Err != nil {
			res.Error = row.Err.Details
			if res.Error == "" {
				res.Error = row.Err.Message
			}
			res.ErrorCode = string(row.Err.Code)
		}
		out.Results[i] = res
	}
	return out, nil
}
