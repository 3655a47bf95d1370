package leakcheck

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"runtime/debug"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/exp/slices"
)

var httpTrackingEnabled atomic.Bool

var (
	trackedBodiesLock sync.Mutex
	trackedBodies     []*trackedBody
)

func EnableHttpResponseTracking() {
	httpTrackingEnabled.Store(true)
}

// WrapHttpResponse registers the body of resp so that it is reported as
// leaked if it is neither read to the end nor closed.  It is a no-op unless
// tracking was enabled.
func WrapHttpResponse(resp *http.Response) *http.Response {
	if !httpTrackingEnabled.Load() {
		return resp
	}

	body := &trackedBody{
		parent:     resp.Body,
		stackTrace: debug.Stack(),
	}
	if resp.Request != nil {
		body.method = resp.Request.Method
		body.path = resp.Request.URL.Path
	}

	trackedBodiesLock.Lock()
	trackedBodies = append(trackedBodies, body)
	trackedBodiesLock.Unlock()

	resp.Body = body
	return resp
}

func untrackBody(b *trackedBody) {
	trackedBodiesLock.Lock()
	trackedBodies = slices.DeleteFunc(trackedBodies, func(other *trackedBody) bool {
		return other == b
	})
	trackedBodiesLock.Unlock()
}

// LeakedHttpResponseCount returns the number of tracked bodies still open.
func LeakedHttpResponseCount() int {
	trackedBodiesLock.Lock()
	defer trackedBodiesLock.Unlock()
	return len(trackedBodies)
}

func ReportLeakedHttpResponses() bool {
	trackedBodiesLock.Lock()
	leaked := slices.Clone(trackedBodies)
	trackedBodiesLock.Unlock()

	if len(leaked) == 0 {
		log.Printf("No leaked http responses")
		return true
	}

	log.Printf("Found %d leaked http responses", len(leaked))
	for _, body := range leaked {
		log.Printf("Leaked http response for %s %s, opened at: %s", body.method, body.path, body.stackTrace)
	}

	return false
}

type trackedBody struct {
	parent     io.ReadCloser
	method     string
	path       string
	stackTrace []byte
}

func (b *trackedBody) Read(p []byte) (int, error) {
	n, err := b.parent.Read(p)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		untrackBody(b)
	}
	return n, err
}

func (b *trackedBody) Close() error {
	untrackBody(b)
	return b.parent.Close()
}

var _ io.ReadCloser = (*trackedBody)(nil)
