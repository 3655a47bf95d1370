package blobcorex

import (
	"errors"
	"fmt"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/blobqueryx"
)

var (
	ErrRequestFailed         = blobhttpx.ErrRequestFailed
	ErrBlobNotFound          = blobhttpx.ErrBlobNotFound
	ErrContainerNotFound     = blobhttpx.ErrContainerNotFound
	ErrContainerExists       = blobhttpx.ErrContainerExists
	ErrConditionNotMet       = blobhttpx.ErrConditionNotMet
	ErrLeaseConditionFailed  = blobhttpx.ErrLeaseConditionFailed
	ErrLeaseAlreadyPresent   = blobhttpx.ErrLeaseAlreadyPresent
	ErrInvalidQuery          = blobhttpx.ErrInvalidQuery
	ErrConnectError          = blobhttpx.ErrConnectError
	ErrAuthenticationFailure = blobhttpx.ErrAuthenticationFailure
	ErrServerBusy            = blobhttpx.ErrServerBusy
	ErrInternalServerError   = blobhttpx.ErrInternalServerError

	ErrQueryAborted    = blobqueryx.ErrQueryAborted
	ErrFatalQueryError = blobqueryx.ErrFatalQueryError
	ErrDecodeFailure   = blobqueryx.ErrDecodeFailure
	ErrStreamClosed    = blobqueryx.ErrStreamClosed
)

var (
	ErrServiceNotAvailable = errors.New("service not available")
	ErrAgentClosed         = errors.New("agent closed")
	ErrInvalidArgument     = errors.New("invalid argument")
)

type retrierDeadlineError struct {
	Cause      error
	RetryCause error
}

func (e retrierDeadlineError) Error() string {
	if e.RetryCause != nil {
		return fmt.Sprintf("timed out during retrying: %s (retry cause: %s)", e.Cause, e.RetryCause)
	} else {
		return fmt.Sprintf("timed out during retrying: %s", e.Cause)
	}
}

func (e retrierDeadlineError) Unwrap() error {
	return e.Cause
}

type invalidArgumentError struct {
	Message string
}

func (e invalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func (e invalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}
