package blobcorex

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/storagekit/blobcorex/blobqueryx"
	"github.com/storagekit/blobcorex/contrib/atomiccowcache"
)

type queryTelemKey struct {
	serverAddress string
	containerName string
	outcome       string
}

type queryTelem struct {
	attribsCache *atomiccowcache.Cache[queryTelemKey, attribute.Set]
}

func newQueryTelem() *queryTelem {
	return &queryTelem{
		attribsCache: atomiccowcache.NewCache(
			func(k queryTelemKey) attribute.Set {
				return attribute.NewSet(
					semconv.ServerAddress(k.serverAddress),
					attribute.String("blob.container", k.containerName),
					attribute.String("blob.query.outcome", k.outcome),
				)
			}),
	}
}

type queryTelemOp struct {
	parent *queryTelem

	ctx           context.Context
	startTime     time.Time
	containerName string
	span          trace.Span

	serverAddress atomic.String
	ended         atomic.Bool
}

func (t *queryTelem) BeginQuery(ctx context.Context, opts *blobqueryx.QueryOptions) (context.Context, *queryTelemOp) {
	ctx, span := tracer.Start(ctx, "blob/query",
		trace.WithSpanKind(trace.SpanKindClient))
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("blob.container", opts.ContainerName),
			attribute.String("blob.name", opts.BlobName),
			semconv.DBQueryText(opts.Expression))
	}

	return ctx, &queryTelemOp{
		parent:        t,
		ctx:           ctx,
		startTime:     time.Now(),
		containerName: opts.ContainerName,
		span:          span,
	}
}

// MarkEndpoint records the endpoint an attempt is sent to.
func (op *queryTelemOp) MarkEndpoint(endpoint string) {
	host, err := getHostFromUri(endpoint)
	if err != nil {
		return
	}

	op.serverAddress.Store(host)
	if op.span.IsRecording() {
		hostname, port, err := net.SplitHostPort(host)
		if err != nil {
			op.span.SetAttributes(semconv.ServerAddress(host))
			return
		}

		portNum, _ := strconv.Atoi(port)
		op.span.SetAttributes(
			semconv.ServerAddress(hostname),
			semconv.ServerPort(portNum))
	}
}

// SessionEnded is called when the output stream of the query reaches a
// terminal state.
func (op *queryTelemOp) SessionEnded(stats blobqueryx.SessionStats, err error) {
	if op.span.IsRecording() {
		op.span.SetAttributes(
			attribute.Int64("blob.query.bytes_relayed", int64(stats.BytesRelayed)),
			attribute.Int64("blob.query.bytes_scanned", int64(stats.BytesScanned)),
			attribute.Int64("blob.query.frames", int64(stats.FramesRead)),
			attribute.Int64("blob.query.errors", int64(stats.ErrorsSeen)))
	}

	attribs := op.attribs(err)
	queryBytesRelayed.Add(op.ctx, int64(stats.BytesRelayed), metric.WithAttributeSet(attribs))
	queryFrames.Add(op.ctx, int64(stats.FramesRead), metric.WithAttributeSet(attribs))

	op.End(err)
}

func (op *queryTelemOp) attribs(err error) attribute.Set {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}

	return op.parent.attribsCache.Get(queryTelemKey{
		serverAddress: op.serverAddress.Load(),
		containerName: op.containerName,
		outcome:       outcome,
	})
}

// End finishes the span.  Only the first call has any effect.
func (op *queryTelemOp) End(err error) {
	if !op.ended.CompareAndSwap(false, true) {
		return
	}

	if err != nil {
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
	}
	op.span.End()

	// a cancelled query says nothing about how long queries take
	if op.ctx.Err() == nil {
		dtimeSecs := float64(time.Since(op.startTime)) / float64(time.Second)
		queryDurations.Record(op.ctx, dtimeSecs, metric.WithAttributeSet(op.attribs(err)))
	}
}
