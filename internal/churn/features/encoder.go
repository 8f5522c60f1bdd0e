package features

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Encoding is the result of encoding one record.
type Encoding struct {
	Vector   Vector    `json:"vector"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Encode maps a raw record to its feature vector.
//
// It fails when a required column is absent or when a closed categorical
// column (gender, the Yes/No columns, SeniorCitizen) holds a value outside its
// domain. Unknown InternetService / PaymentMethod values and numbers that do
// not parse resolve to 0 and are reported as warnings.
func Encode(rec RawRecord) (Encoding, error) {
	var missing []string
	for _, col := range RawColumns {
		if _, ok := rec[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return Encoding{}, &EncodingError{Kind: KindMissingField, Fields: missing}
	}

	var (
		v        Vector
		warnings []Warning
	)

	for _, m := range binaryTable {
		raw := strings.TrimSpace(rec[m.column])
		f, ok := m.values[raw]
		if !ok {
			return Encoding{}, &EncodingError{Kind: KindUnknownCategory, Fields: []string{m.column}, Value: raw}
		}
		v[m.slot] = f
	}

	senior, ok, w := coerce(ColSeniorCitizen, rec[ColSeniorCitizen])
	if ok && senior != 0 && senior != 1 {
		return Encoding{}, &EncodingError{
			Kind:   KindUnknownCategory,
			Fields: []string{ColSeniorCitizen},
			Value:  strings.TrimSpace(rec[ColSeniorCitizen]),
		}
	}
	if !ok {
		warnings = append(warnings, w)
	}
	v[SlotSeniorCitizen] = senior

	for _, n := range numericTable {
		f, ok, w := coerce(n.column, rec[n.column])
		if !ok {
			warnings = append(warnings, w)
		}
		v[n.slot] = f
	}

	for _, m := range oneHotTable {
		raw := strings.TrimSpace(rec[m.column])
		if slot, ok := m.slots[raw]; ok {
			v[slot] = 1
			continue
		}
		if !m.known(raw) {
			warnings = append(warnings, Warning{Kind: KindUnknownCategory, Field: m.column, Value: raw})
		}
	}

	derive(&v)
	if !finite(v[SlotChargeRatio]) {
		warnings = append(warnings, Warning{
			Kind:  KindNumericCoercionFailure,
			Field: Canonical[SlotChargeRatio].Column,
			Value: strconv.FormatFloat(v[SlotChargeRatio], 'g', -1, 64),
		})
		v[SlotChargeRatio] = 0
	}

	return Encoding{Vector: v, Warnings: warnings}, nil
}

// EncodePreEncoded selects the 19 feature columns of an already encoded row
// and returns them in canonical order. Derived columns are taken as given.
// Each column may be named by its training column name or its API key.
func EncodePreEncoded(row EncodedRow) (Encoding, error) {
	var (
		v        Vector
		warnings []Warning
		missing  []string
	)

	for i, f := range Canonical {
		raw, ok := row[f.Column]
		if !ok {
			raw, ok = row[f.Key]
		}
		if !ok {
			missing = append(missing, f.Column)
			continue
		}
		val, ok, w := coerce(f.Column, raw)
		if !ok {
			warnings = append(warnings, w)
		}
		v[i] = val
	}
	if len(missing) > 0 {
		return Encoding{}, &EncodingError{Kind: KindMissingFeatureColumn, Fields: missing}
	}

	return Encoding{Vector: v, Warnings: warnings}, nil
}

// MissingFeatureColumns reports which of the 19 feature columns a header lacks.
func MissingFeatureColumns(header []string) []string {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	var missing []string
	for _, f := range Canonical {
		_, byColumn := have[f.Column]
		_, byKey := have[f.Key]
		if !byColumn && !byKey {
			missing = append(missing, f.Column)
		}
	}
	return missing
}

// IgnoredColumns returns the header columns the encoder for mode never reads,
// sorted. Columns named in keep, such as an ID column, are left out.
func IgnoredColumns(mode Mode, header []string, keep ...string) []string {
	known := make(map[string]struct{}, len(Canonical)*2+len(keep))
	if mode == ModeEncoded {
		for _, f := range Canonical {
			known[f.Column] = struct{}{}
			known[f.Key] = struct{}{}
		}
	} else {
		for _, c := range RawColumns {
			known[c] = struct{}{}
		}
	}
	for _, k := range keep {
		known[k] = struct{}{}
	}
	var out []string
	for _, h := range header {
		if _, ok := known[h]; !ok {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

// coerce parses a numeric cell. Blank, unparseable and non-finite values
// become 0 with a warning.
func coerce(field, raw string) (float64, bool, Warning) {
	s := strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(f) {
		return 0, false, Warning{Kind: KindNumericCoercionFailure, Field: field, Value: s}
	}
	return f, true, Warning{}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
