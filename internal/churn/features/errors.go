package features

import (
	"fmt"
	"strings"
)

// Kind classifies encoding problems.
type Kind string

const (
	KindMissingField           Kind = "MISSING_FIELD"
	KindUnknownCategory        Kind = "UNKNOWN_CATEGORY"
	KindNumericCoercionFailure Kind = "NUMERIC_COERCION_FAILURE"
	KindMissingFeatureColumn   Kind = "MISSING_FEATURE_COLUMN"
)

// EncodingError is returned when a record cannot be encoded at all.
type EncodingError struct {
	Kind   Kind
	Fields []string
	Value  string
}

func (e *EncodingError) Error() string {
	switch e.Kind {
	case KindMissingField:
		return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Fields, ", "))
	case KindMissingFeatureColumn:
		return fmt.Sprintf("missing required feature column(s): %s", strings.Join(e.Fields, ", "))
	case KindUnknownCategory:
		return fmt.Sprintf("unknown value %q for %s", e.Value, strings.Join(e.Fields, ", "))
	default:
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Fields, ", "))
	}
}

// Warning is a non-fatal problem resolved by the encoder.
type Warning struct {
	Kind  Kind   `json:"kind"`
	Field string `json:"field"`
	Value string `json:"value"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s=%q", w.Kind, w.Field, w.Value)
}
