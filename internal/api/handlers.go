package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"churn-workers/internal/churn/csvio"
	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/predictor"
	"churn-workers/internal/churn/store"
	"churn-workers/internal/common/errors"
	"churn-workers/internal/common/validation"

	"github.com/go-chi/chi/v5"
)

const (
	csvFilename        = "churn_predictions.csv"
	headerFailedRows   = "X-Failed-Rows"
	headerScoredRows   = "X-Scored-Rows"
	headerIgnoredCols  = "X-Ignored-Columns"
	predictInputSchema = `{
  "type": "object",
  "properties": {
    "customerId": {"type": "string"},
    "customer":   {"type": "object"},
    "features":   {"type": "object"}
  },
  "anyOf": [
    {"required": ["customer"]},
    {"required": ["features"]}
  ]
}`
)

var predictSchema = validation.MustCompile(predictInputSchema)

type predictRequest struct {
	CustomerID string                 `json:"customerId,omitempty"`
	Customer   map[string]interface{} `json:"customer,omitempty"`
	Features   map[string]interface{} `json:"features,omitempty"`
}

type predictResponse struct {
	PredictionID     string             `json:"predictionId"`
	CustomerID       string             `json:"customerId,omitempty"`
	ChurnProbability float64            `json:"churnProbability"`
	RiskLevel        string             `json:"riskLevel"`
	Features         map[string]float64 `json:"features"`
	Warnings         []features.Warning `json:"warnings"`
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"size":     features.Size,
		"features": features.Canonical,
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
		return
	}
	if res := predictSchema.ValidateJSON(body); !res.Valid {
		respondStandardError(w, errors.NewInvalidInputError(res.Error()))
		return
	}
	var req predictRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	preq := predictor.Request{CustomerID: req.CustomerID, Source: predictor.SourceAPI}
	if req.Features != nil {
		preq.Encoded = features.RowFromValues(req.Features)
	} else {
		preq.Record = features.RecordFromValues(req.Customer)
	}

	pred, err := s.service.PredictOne(r.Context(), preq)
	if err != nil {
		respondStandardError(w, errors.Normalize(err))
		return
	}

	warnings := pred.Warnings
	if warnings == nil {
		warnings = []features.Warning{}
	}
	respondJSON(w, http.StatusOK, predictResponse{
		PredictionID:     pred.ID.String(),
		CustomerID:       pred.CustomerID,
		ChurnProbability: pred.Probability,
		RiskLevel:        pred.RiskLevel,
		Features:         pred.Features.Map(),
		Warnings:         warnings,
	})
}

// handlePredictCSV scores an uploaded CSV and returns it with the probability
// column appended. Rows that failed are listed in X-Failed-Rows (0-based data
// row indices); the response is still 200.
func (s *Server) handlePredictCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	policy := features.FailurePolicy("")
	if p := q.Get("policy"); p != "" {
		parsed, err := features.ParsePolicy(p)
		if err != nil {
			respondStandardError(w, errors.NewInvalidInputError(err.Error()))
			return
		}
		policy = parsed
	}
	withErrors, _ := strconv.ParseBool(q.Get("errors"))

	table, err := csvio.Read(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return
		}
		respondStandardError(w, errors.NewInvalidInputError(err.Error()))
		return
	}

	mode, err := csvio.ResolveMode(q.Get("mode"), table.Header)
	if err != nil {
		respondStandardError(w, invalidModeError(err))
		return
	}

	idColumn := q.Get("idColumn")
	if idColumn == "" {
		idColumn = predictor.DefaultIDColumn
	}
	ignored := features.IgnoredColumns(mode, table.Header, idColumn)
	if len(ignored) > 0 {
		s.logger.Info("csv columns ignored by the encoder", map[string]interface{}{
			"mode":    string(mode),
			"columns": ignored,
		})
	}

	report, err := s.service.PredictBatch(r.Context(), predictor.BatchRequest{
		Rows:     table.Rows,
		Mode:     mode,
		Policy:   policy,
		Source:   predictor.SourceCSV,
		IDColumn: idColumn,
	})
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "batch scoring aborted", err)
		return
	}

	results := make([]csvio.Result, len(report.Rows))
	failed := make([]string, 0, report.Failed)
	for i, row := range report.Rows {
		results[i].Probability = row.Probability
		if row.Err != nil {
			results[i].Err = fmt.Errorf("%s: %s", row.Err.Code, row.Err.Details)
			failed = append(failed, strconv.Itoa(row.Index))
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", csvFilename))
	w.Header().Set(headerScoredRows, strconv.Itoa(report.Scored))
	if len(failed) > 0 {
		w.Header().Set(headerFailedRows, strings.Join(failed, ","))
	}
	if len(ignored) > 0 {
		w.Header().Set(headerIgnoredCols, strings.Join(ignored, ","))
	}
	w.WriteHeader(http.StatusOK)
	if err := csvio.Write(w, table, results, withErrors); err != nil {
		s.logger.Error("failed to write csv response", map[string]interface{}{"error": err.Error()})
	}
}

// invalidModeError keeps encoder errors intact and marks everything else as
// bad input.
func invalidModeError(err error) *errors.StandardError {
	var encErr *features.EncodingError
	if stderrors.As(err, &encErr) {
		return predictor.NewEncodingError(encErr)
	}
	return errors.NewInvalidInputError(err.Error())
}

func (s *Server) handleLatestPrediction(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		respondError(w, http.StatusNotImplemented, "prediction store disabled", nil)
		return
	}
	customerID := chi.URLParam(r, "customerId")

	pred, err := s.lookup.Latest(r.Context(), customerID)
	if stderrors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no prediction for customer", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load prediction", err)
		return
	}

	respondJSON(w, http.StatusOK, predictResponse{
		PredictionID:     pred.ID.String(),
		CustomerID:       pred.CustomerID,
		ChurnProbability: pred.Probability,
		RiskLevel:        pred.RiskLevel,
		Features:         pred.Features.Map(),
		Warnings:         pred.Warnings,
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func respondStandardError(w http.ResponseWriter, stdErr *errors.StandardError) {
	respondJSON(w, statusFor(stdErr.Code), stdErr)
}

func statusFor(code errors.ErrorCode) int {
	switch errors.GetErrorCategory(code) {
	case "ENCODING":
		return http.StatusUnprocessableEntity
	case "VALIDATION":
		return http.StatusBadRequest
	}
	switch code {
	case errors.ErrCodeScoringUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeScoringTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
