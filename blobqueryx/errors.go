package blobqueryx

import (
	"errors"
	"fmt"

	"github.com/storagekit/blobcorex/blobhttpx"
)

var (
	ErrRequestFailed         = blobhttpx.ErrRequestFailed
	ErrBlobNotFound          = blobhttpx.ErrBlobNotFound
	ErrContainerNotFound     = blobhttpx.ErrContainerNotFound
	ErrConditionNotMet       = blobhttpx.ErrConditionNotMet
	ErrLeaseConditionFailed  = blobhttpx.ErrLeaseConditionFailed
	ErrAuthenticationFailure = blobhttpx.ErrAuthenticationFailure
	ErrInvalidQuery          = blobhttpx.ErrInvalidQuery
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDecodeFailure   = errors.New("query response decode failure")
	ErrFatalQueryError = errors.New("fatal query error")
	ErrQueryAborted    = errors.New("query aborted")
	ErrStreamClosed    = errors.New("query stream closed")
)

// Error wraps every failure returned by a query, adding the request context.
type Error struct {
	Cause error

	StatusCode      int
	Endpoint        string
	ContainerName   string
	BlobName        string
	Expression      string
	ClientRequestID string
}

func (e Error) Error() string {
	return fmt.Sprintf("blob query error: %s", e.Cause.Error())
}

func (e Error) Unwrap() error {
	return e.Cause
}

type InvalidArgumentError struct {
	Message string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidArgument, e.Message)
}

func (e InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// DecodeError is returned when the response stream is not a well formed
// sequence of frames.  It is always fatal to the query.
type DecodeError struct {
	Message string
	Cause   error
}

func (e DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", ErrDecodeFailure, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrDecodeFailure, e.Message)
}

func (e DecodeError) Unwrap() error {
	return e.Cause
}

func (e DecodeError) Is(target error) bool {
	return target == ErrDecodeFailure
}

// FatalQueryError is a service reported error which terminated the query.
type FatalQueryError struct {
	QueryError
}

func (e FatalQueryError) Error() string {
	return fmt.Sprintf("%s: %s: %s (position: %d)",
		ErrFatalQueryError, e.Name, e.Description, e.Position)
}

func (e FatalQueryError) Unwrap() error {
	return ErrFatalQueryError
}

type abortedError struct {
	Cause error
}

func (e abortedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrQueryAborted, e.Cause)
}

func (e abortedError) Unwrap() error {
	return e.Cause
}

func (e abortedError) Is(target error) bool {
	return target == ErrQueryAborted
}
