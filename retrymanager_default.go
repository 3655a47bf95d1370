package blobcorex

import (
	"errors"
	"time"

	"github.com/storagekit/blobcorex/blobhttpx"
)

type RetryManagerDefault struct {
	calc       BackoffCalculator
	maxRetries uint32
}

func NewRetryManagerDefault() *RetryManagerDefault {
	return &RetryManagerDefault{
		calc:       ExponentialBackoff(10*time.Millisecond, 500*time.Millisecond, 2),
		maxRetries: 10,
	}
}

func (m *RetryManagerDefault) NewRetryController() RetryController {
	return &retryControllerDefault{
		parent: m,
	}
}

type retryControllerDefault struct {
	parent     *RetryManagerDefault
	retryCount uint32
}

func (rc *retryControllerDefault) isRetriableError(err error) bool {
	return errors.Is(err, blobhttpx.ErrServerBusy) ||
		errors.Is(err, blobhttpx.ErrInternalServerError) ||
		errors.Is(err, blobhttpx.ErrConnectError)
}

func (rc *retryControllerDefault) ShouldRetry(err error) (time.Duration, bool) {
	if !rc.isRetriableError(err) {
		return 0, false
	}

	if rc.retryCount >= rc.parent.maxRetries {
		return 0, false
	}

	calc := rc.parent.calc

	// calculate the retry time for this attempt
	retryTime := calc(rc.retryCount)

	// increment the retry count
	rc.retryCount++

	return retryTime, true
}
