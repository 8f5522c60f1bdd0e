package features

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Mode selects how a row is interpreted.
type Mode string

const (
	ModeRaw     Mode = "raw"
	ModeEncoded Mode = "encoded"
)

// ParseMode accepts "raw" and "encoded" (also "preprocessed").
func ParseMode(s string) (Mode, error) {
	switch s {
	case "raw":
		return ModeRaw, nil
	case "encoded", "preprocessed", "pre-encoded":
		return ModeEncoded, nil
	default:
		return "", fmt.Errorf("unknown input mode %q", s)
	}
}

// FailurePolicy decides what happens to a row that fails to encode.
type FailurePolicy string

const (
	// PolicyExclude drops failed rows from the scored output.
	PolicyExclude FailurePolicy = "exclude"
	// PolicyZeroFill keeps failed rows with an all-zero vector.
	PolicyZeroFill FailurePolicy = "zero-fill"
)

// ParsePolicy validates a failure policy name.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case PolicyExclude, PolicyZeroFill:
		return FailurePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// BatchOptions configures EncodeBatch.
type BatchOptions struct {
	Mode        Mode
	Policy      FailurePolicy
	Parallelism int
}

// RowResult is the outcome for one input row.
type RowResult struct {
	Index    int
	Vector   Vector
	Warnings []Warning
	Err      error
	// Included reports whether the row should be scored.
	Included bool
}

// EncodeBatch encodes rows independently. A failing row never aborts the
// batch; its error is kept on its own result. Results are in input order.
func EncodeBatch(ctx context.Context, rows []map[string]string, opts BatchOptions) ([]RowResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModeRaw
	}
	if opts.Policy == "" {
		opts.Policy = PolicyExclude
	}
	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]RowResult, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = encodeRow(i, rows[i], opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func encodeRow(i int, row map[string]string, opts BatchOptions) RowResult {
	var (
		enc Encoding
		err error
	)
	switch opts.Mode {
	case ModeEncoded:
		enc, err = EncodePreEncoded(EncodedRow(row))
	default:
		enc, err = Encode(RawRecord(row))
	}

	res := RowResult{Index: i, Vector: enc.Vector, Warnings: enc.Warnings, Err: err, Included: true}
	if err != nil {
		res.Vector = Vector{}
		res.Included = opts.Policy == PolicyZeroFill
	}
	return res
}

// Failed returns the results that carry an error.
func Failed(results []RowResult) []RowResult {
	var out []RowResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
