package predictor

import (
	stderrors "errors"
	"time"

	"churn-workers/internal/churn/features"
	"churn-workers/internal/common/errors"
)

// NewEncodingError converts an encoder failure. Encoding failures are data
// problems and never retried.
func NewEncodingError(err *features.EncodingError) *errors.StandardError {
	code := errors.ErrCodeInvalidInput
	msg := "Customer record could not be encoded"
	switch err.Kind {
	case features.KindMissingField:
		code, msg = errors.ErrCodeMissingField, "Required customer field missing"
	case features.KindUnknownCategory:
		code, msg = errors.ErrCodeUnknownCategory, "Categorical value outside its domain"
	case features.KindMissingFeatureColumn:
		code, msg = errors.ErrCodeMissingFeatureColumn, "Pre-encoded row is missing feature columns"
	}
	return &errors.StandardError{
		Code:      code,
		Message:   msg,
		Details:   err.Error(),
		Retryable: false,
		Metadata:  map[string]interface{}{"fields": err.Fields},
		Timestamp: time.Now().UTC(),
	}
}

// Normalize is errors.Normalize plus encoder failures.
func Normalize(err error) *errors.StandardError {
	var encErr *features.EncodingError
	if stderrors.As(err, &encErr) {
		return NewEncodingError(encErr)
	}
	return errors.Normalize(err)
}
