// Package csvio reads customer CSV files for batch scoring and writes them
// back with a probability column appended.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"churn-workers/internal/churn/features"
)

const (
	ProbabilityColumn = "Churn Probability"
	ErrorColumn       = "Error"
)

// Table is a parsed CSV: the header, the raw cells and each row keyed by
// header name.
type Table struct {
	Header  []string
	Records [][]string
	Rows    []map[string]string
}

// Read parses a CSV with a header row. Ragged rows are accepted; cells past
// the header are ignored and missing cells are left out of the row map.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := &Table{Header: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if isBlank(rec) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		t.Records = append(t.Records, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// DetectMode picks encoded when the header carries every feature column.
func DetectMode(header []string) features.Mode {
	if len(features.MissingFeatureColumns(header)) == 0 {
		return features.ModeEncoded
	}
	return features.ModeRaw
}

// ResolveMode turns a requested mode ("auto", "" or an explicit mode) into a
// concrete one. An explicit encoded mode fails up front, listing every
// missing feature column.
func ResolveMode(requested string, header []string) (features.Mode, error) {
	if requested == "" || requested == "auto" {
		return DetectMode(header), nil
	}
	mode, err := features.ParseMode(requested)
	if err != nil {
		return "", err
	}
	if mode == features.ModeEncoded {
		if missing := features.MissingFeatureColumns(header); len(missing) > 0 {
			return "", &features.EncodingError{Kind: features.KindMissingFeatureColumn, Fields: missing}
		}
	}
	return mode, nil
}

// Result is the outcome written for one row. A nil Probability leaves the
// cell empty.
type Result struct {
	Probability *float64
	Err         error
}

// Write emits the input columns unchanged followed by the probability
// column, and an error column when withErrors is set. results must be in
// row order and as long as t.Rows.
func Write(w io.Writer, t *Table, results []Result, withErrors bool) error {
	if len(results) != len(t.Records) {
		return fmt.Errorf("have %d results for %d rows", len(results), len(t.Records))
	}

	cw := csv.NewWriter(w)
	header := append(append([]string{}, t.Header...), ProbabilityColumn)
	if withErrors {
		header = append(header, ErrorColumn)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, rec := range t.Records {
		out := make([]string, 0, len(header))
		out = append(out, rec...)
		for len(out) < len(t.Header) {
			out = append(out, "")
		}
		out = out[:len(t.Header)]

		cell := ""
		if p := results[i].Probability; p != nil {
			cell = strconv.FormatFloat(*p, 'f', -1, 64)
		}
		out = append(out, cell)

		if withErrors {
			msg := ""
			if results[i].Err != nil {
				msg = results[i].Err.Error()
			}
			out = append(out, msg)
		}
		if err := cw.Write(out); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
