package blobcorex

import (
	"github.com/storagekit/blobcorex/contrib/buildversion"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	buildVersion string = buildversion.GetVersion("github.com/storagekit/blobcorex")
	meter               = otel.Meter("github.com/storagekit/blobcorex",
		metric.WithInstrumentationVersion(buildVersion))
	tracer = otel.Tracer("github.com/storagekit/blobcorex")
)

var (
	// queryDurations tracks the time from submitting a query until its output
	// stream reaches a terminal state.
	queryDurations, _ = meter.Float64Histogram("blobcorex.query.duration",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60))

	queryBytesRelayed, _ = meter.Int64Counter("blobcorex.query.bytes_relayed",
		metric.WithUnit("By"))

	queryFrames, _ = meter.Int64Counter("blobcorex.query.frames")
)
