package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ivlev/scene2video/internal/engine"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type captureMetrics struct {
	frames   metric.Int64Counter
	lag      metric.Float64Histogram
	sessions metric.Int64Counter
}

// newCaptureMetrics uses the global provider, a no-op unless the process
// installed one.
func newCaptureMetrics() (*captureMetrics, error) {
	m := meter()
	var (
		cm  captureMetrics
		err error
	)

	cm.frames, err = m.Int64Counter(
		"capture.frames.encoded",
		metric.WithDescription("Frames submitted to the muxer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}

	cm.lag, err = m.Float64Histogram(
		"capture.frame.lag",
		metric.WithDescription("How far a frame started behind its ideal wall time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lag histogram: %w", err)
	}

	cm.sessions, err = m.Int64Counter(
		"capture.sessions",
		metric.WithDescription("Capture sessions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sessions counter: %w", err)
	}

	return &cm, nil
}

func (cm *captureMetrics) session(outcome string) {
	cm.sessions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
