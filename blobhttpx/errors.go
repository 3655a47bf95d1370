package blobhttpx

import (
	"errors"
	"fmt"
)

var (
	ErrConnectError = errors.New("http connect failed")

	ErrRequestFailed         = errors.New("request failed")
	ErrBlobNotFound          = errors.New("blob not found")
	ErrContainerNotFound     = errors.New("container not found")
	ErrContainerExists       = errors.New("container already exists")
	ErrConditionNotMet       = errors.New("condition not met")
	ErrLeaseConditionFailed  = errors.New("lease condition failed")
	ErrLeaseAlreadyPresent   = errors.New("lease already present")
	ErrAuthenticationFailure = errors.New("authentication failure")
	ErrInvalidQuery          = errors.New("invalid query")
	ErrServerBusy            = errors.New("server busy")
	ErrInternalServerError   = errors.New("internal server error")
)

type ConnectError struct {
	Cause error
}

func (e ConnectError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConnectError, e.Cause)
}

func (e ConnectError) Unwrap() error {
	return ErrConnectError
}

// RequestFailedError is a non-success response from the storage service.  It
// always matches ErrRequestFailed, and additionally unwraps to a more specific
// sentinel when the service error code is recognised.
type RequestFailedError struct {
	Cause      error
	StatusCode int
	ErrorCode  string
	Message    string
	RequestID  string
}

func (e RequestFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: %s (status: %d, code: %s)",
			e.Cause, e.StatusCode, e.ErrorCode)
	}

	return fmt.Sprintf("request failed: %s (status: %d, code: %s, msg: %s)",
		e.Cause, e.StatusCode, e.ErrorCode, e.Message)
}

func (e RequestFailedError) Unwrap() error {
	return e.Cause
}

func (e RequestFailedError) Is(target error) bool {
	return target == ErrRequestFailed
}

func errorFromCode(statusCode int, errorCode string) error {
	switch errorCode {
	case "BlobNotFound":
		return ErrBlobNotFound
	case "ContainerNotFound":
		return ErrContainerNotFound
	case "ContainerAlreadyExists":
		return ErrContainerExists
	case "ConditionNotMet", "TargetConditionNotMet":
		return ErrConditionNotMet
	case "LeaseIdMismatchWithBlobOperation", "LeaseNotPresentWithBlobOperation",
		"LeaseIdMissing", "LeaseIdMismatchWithLeaseOperation", "LeaseNotPresentWithLeaseOperation":
		return ErrLeaseConditionFailed
	case "LeaseAlreadyPresent":
		return ErrLeaseAlreadyPresent
	case "AuthenticationFailed", "AuthorizationFailure", "AuthorizationPermissionMismatch":
		return ErrAuthenticationFailure
	case "InvalidQueryText", "InvalidQueryExpression", "InvalidXmlDocument", "InvalidInput":
		return ErrInvalidQuery
	case "ServerBusy", "OperationTimedOut":
		return ErrServerBusy
	case "InternalError":
		return ErrInternalServerError
	}

	switch {
	case statusCode == 404:
		return ErrBlobNotFound
	case statusCode == 412 || statusCode == 304:
		return ErrConditionNotMet
	case statusCode == 401 || statusCode == 403:
		return ErrAuthenticationFailure
	case statusCode == 503:
		return ErrServerBusy
	case statusCode >= 500:
		return ErrInternalServerError
	}

	return errors.New("unexpected service error")
}
