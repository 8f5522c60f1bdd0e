package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracerProvider_Sampling(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  int
	}{
		{"always", 1, 1},
		{"above one is clamped", 3, 1},
		{"never", 0, 0},
		{"negative is clamped", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := tracetest.NewSpanRecorder()
			tp := newTracerProvider("test", tt.ratio, sdktrace.WithSpanProcessor(sr))
			defer func() { _ = tp.Shutdown(context.Background()) }()

			_, span := tp.Tracer("test").Start(context.Background(), "op")
			span.End()
			assert.Len(t, sr.Ended(), tt.want)
		})
	}
}

func TestTracing_NilShutdown(t *testing.T) {
	var tr *Tracing
	assert.NotPanics(t, tr.Shutdown)
}
