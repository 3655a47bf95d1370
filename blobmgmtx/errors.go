package blobmgmtx

import (
	"fmt"

	"github.com/storagekit/blobcorex/blobhttpx"
)

var (
	ErrRequestFailed        = blobhttpx.ErrRequestFailed
	ErrBlobNotFound         = blobhttpx.ErrBlobNotFound
	ErrContainerNotFound    = blobhttpx.ErrContainerNotFound
	ErrContainerExists      = blobhttpx.ErrContainerExists
	ErrConditionNotMet      = blobhttpx.ErrConditionNotMet
	ErrLeaseConditionFailed = blobhttpx.ErrLeaseConditionFailed
	ErrLeaseAlreadyPresent  = blobhttpx.ErrLeaseAlreadyPresent
)

type ServerError struct {
	Cause         error
	StatusCode    int
	ContainerName string
	BlobName      string
}

func (e ServerError) Error() string {
	return fmt.Sprintf("server error: %s (status: %d)", e.Cause.Error(), e.StatusCode)
}

func (e ServerError) Unwrap() error {
	return e.Cause
}
