// cmd/churn-score/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"churn-workers/internal/churn/csvio"
	"churn-workers/internal/churn/features"
	"churn-workers/internal/churn/predictor"
	"churn-workers/internal/churn/scoring"
	"churn-workers/internal/common/config"
	"churn-workers/internal/common/logger"
)

type options struct {
	in          string
	out         string
	mode        string
	policy      string
	modelPath   string
	serviceURL  string
	timeoutMS   int
	parallelism int
	withErrors  bool
	logLevel    string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewStructured(opts.logLevel, "console")
	failed, err := run(ctx, opts, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d row(s) could not be scored\n", failed)
	}
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("churn-score", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.in, "in", "", "Input CSV file (- for stdin)")
	fs.StringVar(&o.out, "out", "churn_predictions.csv", "Output CSV file (- for stdout)")
	fs.StringVar(&o.mode, "mode", "auto", "Input mode: auto, raw or encoded")
	fs.StringVar(&o.policy, "policy", string(features.PolicyExclude), "Failed row policy: exclude or zero-fill")
	fs.StringVar(&o.modelPath, "model", "", "Path to a logistic model artifact")
	fs.StringVar(&o.serviceURL, "service-url", "", "URL of a remote scoring service")
	fs.IntVar(&o.timeoutMS, "timeout", 5000, "Scoring timeout in milliseconds")
	fs.IntVar(&o.parallelism, "parallelism", 0, "Concurrent rows (0 = GOMAXPROCS)")
	fs.BoolVar(&o.withErrors, "errors", false, "Append an Error column")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.in == "" {
		return nil, fmt.Errorf("-in is required")
	}
	if (o.modelPath == "") == (o.serviceURL == "") {
		return nil, fmt.Errorf("exactly one of -model or -service-url is required")
	}
	if _, err := features.ParsePolicy(o.policy); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *options) scoringConfig() config.ScoringConfig {
	cfg := config.ScoringConfig{
		Timeout:    o.timeoutMS,
		MaxRetries: 3,
	}
	if o.modelPath != "" {
		cfg.Backend = "model"
		cfg.ModelPath = o.modelPath
	} else {
		cfg.Backend = "http"
		cfg.ServiceURL = o.serviceURL
	}
	return cfg
}

// run scores the input file and returns the number of failed rows.
func run(ctx context.Context, o *options, log logger.Logger) (int, error) {
	scorer, err := scoring.New(o.scoringConfig(), nil, log)
	if err != nil {
		return 0, err
	}

	in, err := openInput(o.in)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	table, err := csvio.Read(in)
	if err != nil {
		return 0, err
	}
	mode, err := csvio.ResolveMode(o.mode, table.Header)
	if err != nil {
		return 0, err
	}

	if ignored := features.IgnoredColumns(mode, table.Header, predictor.DefaultIDColumn); len(ignored) > 0 {
		log.Info("columns ignored by the encoder", map[string]interface{}{"columns": ignored})
	}

	svc := predictor.NewService(scorer, log, predictor.WithParallelism(o.parallelism))
	report, err := svc.PredictBatch(ctx, predictor.BatchRequest{
		Rows:   table.Rows,
		Mode:   mode,
		Policy: features.FailurePolicy(o.policy),
		Source: predictor.SourceCLI,
	})
	if err != nil {
		return 0, err
	}

	results := make([]csvio.Result, len(report.Rows))
	for i, row := range report.Rows {
		results[i].Probability = row.Probability
		if row.Err != nil {
			results[i].Err = row.Err
			log.Warn("row not scored", map[string]interface{}{
				"row":   row.Index,
				"code":  string(row.Err.Code),
				"error": row.Err.Details,
			})
		}
	}

	out, err := openOutput(o.out)
	if err != nil {
		return 0, err
	}
	if err := csvio.Write(out, table, results, o.withErrors); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	log.Info("scoring finished", map[string]interface{}{
		"mode":   string(mode),
		"rows":   len(report.Rows),
		"scored": report.Scored,
		"failed": report.Failed,
	})
	return report.Failed, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}
