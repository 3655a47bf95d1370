package blobcorex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagekit/blobcorex/blobhttpx"
)

type testRetryController struct {
	shouldRetry func(err error) (time.Duration, bool)
}

func (c *testRetryController) ShouldRetry(err error) (time.Duration, bool) {
	return c.shouldRetry(err)
}

type testRetryManager struct {
	controller RetryController
}

func (m *testRetryManager) NewRetryController() RetryController {
	return m.controller
}

func TestOrchestrateRetriesDeadlinesInOp(t *testing.T) {
	testErrMsg := "this is a message that always errors"

	retryCount := 0
	mockMgr := &testRetryManager{
		controller: &testRetryController{
			shouldRetry: func(err error) (time.Duration, bool) {
				retryCount++
				return 0, true
			},
		},
	}

	// need to have enough time to call the function once at least
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(10*time.Millisecond))

	fnCalls := 0
	_, err := OrchestrateRetries(ctx, mockMgr, func() (int, error) {
		fnCalls++

		// first call returns a real error
		if fnCalls == 1 {
			return 0, errors.New(testErrMsg)
		}

		// next call deadlines
		<-ctx.Done()
		return 1, ctx.Err()
	})
	cancel()

	require.Equal(t, 1, retryCount)
	require.Equal(t, 2, fnCalls)

	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, testErrMsg)
}

func TestOrchestrateRetriesDeadlinesInWait(t *testing.T) {
	testErrMsg := "this is a message that always errors"

	retryCount := 0
	mockMgr := &testRetryManager{
		controller: &testRetryController{
			shouldRetry: func(err error) (time.Duration, bool) {
				retryCount++
				return 1 * time.Second, true
			},
		},
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now())

	fnCalls := 0
	_, err := OrchestrateRetries(ctx, mockMgr, func() (int, error) {
		fnCalls++
		return 0, errors.New(testErrMsg)
	})
	cancel()

	require.Equal(t, 1, retryCount)
	require.Equal(t, 1, fnCalls)

	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, testErrMsg)
}

func TestRetryManagerDefaultClassification(t *testing.T) {
	testCases := []struct {
		name  string
		err   error
		retry bool
	}{
		{"ServerBusy", &blobhttpx.RequestFailedError{Cause: blobhttpx.ErrServerBusy, StatusCode: 503}, true},
		{"InternalError", &blobhttpx.RequestFailedError{Cause: blobhttpx.ErrInternalServerError, StatusCode: 500}, true},
		{"ConnectError", &blobhttpx.ConnectError{Cause: errors.New("connection refused")}, true},
		{"BlobNotFound", &blobhttpx.RequestFailedError{Cause: blobhttpx.ErrBlobNotFound, StatusCode: 404}, false},
		{"Other", errors.New("boom"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, retry := NewRetryManagerDefault().NewRetryController().ShouldRetry(tc.err)
			assert.Equal(t, tc.retry, retry)
		})
	}
}

func TestRetryManagerDefaultGivesUp(t *testing.T) {
	ctrl := NewRetryManagerDefault().NewRetryController()
	busy := &blobhttpx.RequestFailedError{Cause: blobhttpx.ErrServerBusy, StatusCode: 503}

	var waits []time.Duration
	for {
		wait, retry := ctrl.ShouldRetry(busy)
		if !retry {
			break
		}
		waits = append(waits, wait)
	}

	require.Len(t, waits, 10)
	assert.Equal(t, 10*time.Millisecond, waits[0])
	assert.Equal(t, 500*time.Millisecond, waits[9])
}

func TestOrchestrateRetriesRecovers(t *testing.T) {
	fnCalls := 0
	res, err := OrchestrateRetries(context.Background(), NewRetryManagerDefault(), func() (string, error) {
		fnCalls++
		if fnCalls < 3 {
			return "", &blobhttpx.ConnectError{Cause: errors.New("connection reset")}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, fnCalls)

	fnCalls = 0
	err = OrchestrateNoResponseRetries(context.Background(), NewRetryManagerFastFail(), func() error {
		fnCalls++
		return &blobhttpx.ConnectError{Cause: errors.New("connection reset")}
	})
	assert.ErrorIs(t, err, blobhttpx.ErrConnectError)
	assert.Equal(t, 1, fnCalls)
}
