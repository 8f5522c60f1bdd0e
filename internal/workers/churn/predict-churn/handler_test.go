// internal/workers/churn/predict-churn/handler_test.go
package predictchurn

import (
	"context"
	"errors"
	"testing"
	"time"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/predictor"
	"churn-workers/internal/churn/scoring"
	commonerrors "churn-workers/internal/common/errors"
	"churn-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{Timeout: 5 * time.Second}
}

func newTestHandler(t *testing.T, fn scoring.ScoreFunc) *Handler {
	svc := predictor.NewService(fn, logger.NewTestLogger(t))
	return NewHandler(createTestConfig(), svc, nil, logger.NewTestLogger(t))
}

func constantScorer(p float64) scoring.ScoreFunc {
	return func(ctx context.Context, v features.Vector) (float64, error) {
		return p, nil
	}
}

const customerJSON = `{
  "customerId": "7590-VHVEG",
  "customer": {
    "gender": "Female",
    "SeniorCitizen": 0,
    "partner": "Yes",
    "dependents": "No",
    "tenure": 1,
    "phoneService": "Yes",
    "paperlessBilling": "Yes",
    "monthlyCharges": 29.85,
    "totalCharges": "29.85",
    "multipleLines": "No",
    "internetService": "DSL",
    "paymentMethod": "Electronic check"
  }
}`

// ==========================
// Input Parsing
// ==========================

func TestParseInput(t *testing.T) {
	t.Run("customer payload", func(t *testing.T) {
		input, err := ParseInput(customerJSON)
		require.NoError(t, err)
		assert.Equal(t, "7590-VHVEG", input.CustomerID)
		assert.Equal(t, "Female", input.Customer["gender"])
		assert.Nil(t, input.Features)
	})

	t.Run("neither customer nor features", func(t *testing.T) {
		_, err := ParseInput(`{"customerId":"x"}`)
		require.Error(t, err)
		assert.Equal(t, commonerrors.ErrCodeInvalidInput, commonerrors.Normalize(err).Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseInput(`{"customer":`)
		require.Error(t, err)
		assert.Equal(t, commonerrors.ErrCodeInvalidInput, commonerrors.Normalize(err).Code)
	})

	t.Run("customer must be an object", func(t *testing.T) {
		_, err := ParseInput(`{"customer":"Female"}`)
		require.Error(t, err)
	})
}

// ==========================
// Execute
// ==========================

func TestExecute_RawCustomer(t *testing.T) {
	var got features.Vector
	h := newTestHandler(t, func(ctx context.Context, v features.Vector) (float64, error) {
		got = v
		return 0.82, nil
	})

	input, err := ParseInput(customerJSON)
	require.NoError(t, err)

	out, err := h.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 0.82, out.ChurnProbability)
	assert.Equal(t, "high", out.RiskLevel)
	assert.NotEmpty(t, out.PredictionID)
	assert.Empty(t, out.Warnings)
	assert.NotNil(t, out.Warnings)
	assert.Len(t, out.Features, features.Size)
	assert.Equal(t, 1.0, got[features.SlotTenure])
	assert.Equal(t, 0.0, got[features.SlotInternetFiberOptic])
	assert.Equal(t, 0.0, got[features.SlotInternetNo])
	assert.Equal(t, 1.0, got[features.SlotPaymentElectronicCheck])
}

func TestExecute_PreEncodedFeatures(t *testing.T) {
	values := map[string]interface{}{}
	for _, col := range features.Columns() {
		values[col] = 0
	}
	values["tenure"] = 12

	h := newTestHandler(t, constantScorer(0.1))
	out, err := h.Execute(context.Background(), &Input{Features: values})
	require.NoError(t, err)

	assert.Equal(t, "low", out.RiskLevel)
	assert.Equal(t, 12.0, out.Features["tenure"])
}

func TestExecute_MissingFeatureColumns(t *testing.T) {
	h := newTestHandler(t, constantScorer(0.5))
	_, err := h.Execute(context.Background(), &Input{Features: map[string]interface{}{"tenure": 3}})
	require.Error(t, err)

	stdErr := commonerrors.Normalize(err)
	assert.Equal(t, commonerrors.ErrCodeMissingFeatureColumn, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}

func TestExecute_UnknownCategory(t *testing.T) {
	input, err := ParseInput(customerJSON)
	require.NoError(t, err)
	input.Customer["gender"] = "Unknown"

	h := newTestHandler(t, constantScorer(0.5))
	_, err = h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.Equal(t, commonerrors.ErrCodeUnknownCategory, commonerrors.Normalize(err).Code)
}

func TestExecute_ScoringUnavailableIsRetryable(t *testing.T) {
	h := newTestHandler(t, func(ctx context.Context, v features.Vector) (float64, error) {
		return 0, errors.New("connection refused")
	})

	input, err := ParseInput(customerJSON)
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), input)
	require.Error(t, err)
	stdErr := commonerrors.Normalize(err)
	assert.Equal(t, commonerrors.ErrCodeScoringUnavailable, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestExecute_NilInput(t *testing.T) {
	h := newTestHandler(t, constantScorer(0.5))
	_, err := h.Execute(context.Background(), nil)
	assert.Error(t, err)
}
