package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const embeddingsInstrumentationName = "github.com/fyrsmithlabs/bellaqa/internal/embeddings"

// Purpose tells index builds apart from live questions in the metrics.
type Purpose string

const (
	// PurposeIndexing marks chunk batches embedded while building an index.
	PurposeIndexing Purpose = "indexing"
	// PurposeQuery marks a question embedded at ask time.
	PurposeQuery Purpose = "query"
)

// Failure stages of a provider call.
const (
	stageRateLimit = "rate_limit"
	stageProvider  = "provider"
	stageResponse  = "response"
)

// call describes one upstream embedding request.
type call struct {
	purpose Purpose
	model   string
	texts   int
	wait    time.Duration // blocked on the rate limiter
	elapsed time.Duration // provider round trip, excluding wait
	stage   string        // set when the call failed
}

// Metrics records embedding calls split by purpose, so a slow index build
// and slow question latency show up as separate series.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	wait     metric.Float64Histogram
	texts    metric.Int64Counter
	failures metric.Int64Counter
}

// NewMetrics registers the embedding instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(embeddingsInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"bellaqa.embedding.request.duration",
		metric.WithDescription("Provider round trip per embedding request, by model and purpose."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn("failed to create embedding duration histogram", zap.Error(err))
	}

	m.wait, err = m.meter.Float64Histogram(
		"bellaqa.embedding.rate_limit.wait",
		metric.WithDescription("Time an embedding request waited for the rate limiter."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create rate limit wait histogram", zap.Error(err))
	}

	m.texts, err = m.meter.Int64Counter(
		"bellaqa.embedding.texts",
		metric.WithDescription("Texts sent for embedding: chunks while indexing, questions while answering."),
		metric.WithUnit("{text}"),
	)
	if err != nil {
		m.logger.Warn("failed to create embedded texts counter", zap.Error(err))
	}

	m.failures, err = m.meter.Int64Counter(
		"bellaqa.embedding.failures",
		metric.WithDescription("Failed embedding requests by purpose and failing stage."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create embedding failures counter", zap.Error(err))
	}
}

func (m *Metrics) record(ctx context.Context, c call) {
	base := []attribute.KeyValue{
		attribute.String("model", c.model),
		attribute.String("purpose", string(c.purpose)),
	}
	attrs := metric.WithAttributes(base...)

	if m.wait != nil {
		m.wait.Record(ctx, c.wait.Seconds(), attrs)
	}
	if c.stage != "" {
		if m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(append(base, attribute.String("stage", c.stage))...))
		}
		if c.stage == stageRateLimit {
			return
		}
	}
	if m.duration != nil {
		m.duration.Record(ctx, c.elapsed.Seconds(), attrs)
	}
	if c.stage == "" && m.texts != nil {
		m.texts.Add(ctx, int64(c.texts), attrs)
	}
}
