package blobqueryx

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type SessionState int32

const (
	SessionStateSubmitted SessionState = iota
	SessionStateStreaming
	SessionStateCompleted
	SessionStateAborted
)

func (s SessionState) String() string {
	switch s {
	case SessionStateSubmitted:
		return "submitted"
	case SessionStateStreaming:
		return "streaming"
	case SessionStateCompleted:
		return "completed"
	case SessionStateAborted:
		return "aborted"
	}
	return "unknown"
}

type SessionStats struct {
	State        SessionState
	BytesRelayed uint64
	BytesScanned uint64
	FramesRead   uint64
	ErrorsSeen   uint64
}

type queryReaderOptions struct {
	Logger           *zap.Logger
	ProgressReceiver ProgressReceiver
	ErrorReceiver    ErrorReceiver
	WrapError        func(err error) error
	OnFinish         func(stats SessionStats, err error)
}

// QueryReader is the output stream of a single query.  Each Read pulls only
// as many frames from the response as are needed to return some data,
// dispatching progress and error frames to the receivers on the way.
//
// Close may be called from another goroutine to unblock a pending Read.  Stats
// may be called from any goroutine.
type QueryReader struct {
	logger           *zap.Logger
	body             io.ReadCloser
	frames           *FrameReader
	progressReceiver ProgressReceiver
	errorReceiver    ErrorReceiver
	wrapError        func(err error) error
	onFinish         func(stats SessionStats, err error)

	lock         sync.Mutex
	pending      []byte
	lastProgress uint64
	err          error

	closed       atomic.Bool
	state        atomic.Int32
	bytesRelayed atomic.Uint64
	bytesScanned atomic.Uint64
	framesRead   atomic.Uint64
	errorsSeen   atomic.Uint64
}

var _ io.ReadCloser = (*QueryReader)(nil)

func newQueryReader(body io.ReadCloser, opts *queryReaderOptions) *QueryReader {
	r := &QueryReader{
		logger:           opts.Logger,
		body:             body,
		frames:           NewFrameReader(body),
		progressReceiver: opts.ProgressReceiver,
		errorReceiver:    opts.ErrorReceiver,
		wrapError:        opts.WrapError,
		onFinish:         opts.OnFinish,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	r.state.Store(int32(SessionStateStreaming))
	return r
}

func (r *QueryReader) State() SessionState {
	return SessionState(r.state.Load())
}

func (r *QueryReader) Stats() SessionStats {
	return SessionStats{
		State:        r.State(),
		BytesRelayed: r.bytesRelayed.Load(),
		BytesScanned: r.bytesScanned.Load(),
		FramesRead:   r.framesRead.Load(),
		ErrorsSeen:   r.errorsSeen.Load(),
	}
}

// prime reads frames until data is available or the session has finished.
func (r *QueryReader) prime() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	for len(r.pending) == 0 && r.State() == SessionStateStreaming {
		err := r.advance()
		if err != nil {
			r.abort(r.abortCause(err))
		}
	}

	if r.State() == SessionStateAborted {
		return r.err
	}

	return nil
}

func (r *QueryReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	for len(r.pending) == 0 {
		switch r.State() {
		case SessionStateCompleted:
			return 0, io.EOF
		case SessionStateAborted:
			return 0, r.err
		}

		err := r.advance()
		if err != nil {
			r.abort(r.abortCause(err))
			return 0, r.err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	if len(r.pending) == 0 {
		r.pending = nil
	}
	r.bytesRelayed.Add(uint64(n))

	return n, nil
}

// Close releases the response.  Closing a query which has not finished
// aborts it, later reads fail with ErrStreamClosed.
func (r *QueryReader) Close() error {
	if r.State() != SessionStateStreaming {
		return nil
	}

	// closing the body first unblocks any Read waiting on the response
	r.closed.Store(true)
	_ = r.body.Close()

	r.lock.Lock()
	defer r.lock.Unlock()

	r.abort(ErrStreamClosed)

	return nil
}

// abortCause reports a read that failed because the stream was closed
// under it as ErrStreamClosed rather than as the body's own error.
func (r *QueryReader) abortCause(err error) error {
	if r.closed.Load() {
		return ErrStreamClosed
	}
	return err
}

func (r *QueryReader) advance() error {
	frame, err := r.frames.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &DecodeError{Message: "frame read after end of stream"}
		}
		return err
	}
	r.framesRead.Inc()

	switch frame.Type {
	case FrameTypeData:
		r.pending = frame.Data

	case FrameTypeProgress:
		return r.dispatchProgress(frame.BytesScanned)

	case FrameTypeError:
		return r.dispatchError(frame.Error)

	case FrameTypeEnd:
		err := r.dispatchProgress(frame.TotalBytes)
		if err != nil {
			return err
		}

		r.complete()
	}

	return nil
}

func (r *QueryReader) dispatchProgress(bytesScanned uint64) error {
	if bytesScanned < r.lastProgress {
		return &DecodeError{
			Message: fmt.Sprintf("progress went backwards from %d to %d", r.lastProgress, bytesScanned),
		}
	}
	r.lastProgress = bytesScanned
	r.bytesScanned.Store(bytesScanned)

	if r.progressReceiver != nil {
		r.progressReceiver.OnProgress(bytesScanned)
	}

	return nil
}

func (r *QueryReader) dispatchError(queryErr QueryError) error {
	r.errorsSeen.Inc()

	if queryErr.IsFatal {
		r.logger.Debug("fatal error reported by query",
			zap.String("name", queryErr.Name),
			zap.String("description", queryErr.Description),
			zap.Uint64("position", queryErr.Position))
	} else {
		r.logger.Debug("non-fatal error reported by query",
			zap.String("name", queryErr.Name),
			zap.Uint64("position", queryErr.Position))
	}

	if r.errorReceiver != nil {
		r.errorReceiver.OnError(queryErr)
	}

	if queryErr.IsFatal {
		return &FatalQueryError{QueryError: queryErr}
	}

	return nil
}

func (r *QueryReader) complete() {
	if !r.state.CompareAndSwap(int32(SessionStateStreaming), int32(SessionStateCompleted)) {
		return
	}
	_ = r.body.Close()

	r.logger.Debug("query stream completed",
		zap.Uint64("bytesRelayed", r.bytesRelayed.Load()),
		zap.Uint64("bytesScanned", r.bytesScanned.Load()))

	if r.onFinish != nil {
		r.onFinish(r.Stats(), nil)
	}
}

// abort must be called with lock held.
func (r *QueryReader) abort(cause error) {
	if r.State() != SessionStateStreaming {
		return
	}

	var err error = &abortedError{Cause: cause}
	if r.wrapError != nil {
		err = r.wrapError(err)
	}

	if !r.state.CompareAndSwap(int32(SessionStateStreaming), int32(SessionStateAborted)) {
		return
	}
	r.err = err
	r.pending = nil
	r.frames.Release()
	_ = r.body.Close()

	r.logger.Debug("query stream aborted",
		zap.Error(cause),
		zap.Uint64("bytesRelayed", r.bytesRelayed.Load()))

	if r.onFinish != nil {
		r.onFinish(r.Stats(), err)
	}
}
