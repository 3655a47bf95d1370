package blobqueryx

import (
	"net/http"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/zaputils"
	"go.uber.org/zap"
)

type queryRespReaderOptions struct {
	Logger           *zap.Logger
	ProgressReceiver ProgressReceiver
	ErrorReceiver    ErrorReceiver
	OnSessionEnd     func(stats SessionStats, err error)
	WrapError        func(err error, statusCode int) error
}

func newQueryRespReader(resp *http.Response, opts *queryRespReaderOptions) (*QueryResult, error) {
	if resp.StatusCode != http.StatusOK {
		svcErr := blobhttpx.DecodeServiceError(resp)

		opts.Logger.Debug("blob query request failed",
			zap.Int("statusCode", svcErr.StatusCode),
			zap.String("errorCode", svcErr.ErrorCode),
			zaputils.RequestID("requestId", svcErr.RequestID))

		return nil, opts.WrapError(svcErr, resp.StatusCode)
	}

	metadata := parseResponseMetadata(resp.Header)

	reader := newQueryReader(resp.Body, &queryReaderOptions{
		Logger:           opts.Logger,
		ProgressReceiver: opts.ProgressReceiver,
		ErrorReceiver:    opts.ErrorReceiver,
		OnFinish:         opts.OnSessionEnd,
		WrapError: func(err error) error {
			return opts.WrapError(err, resp.StatusCode)
		},
	})

	err := reader.prime()
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Reader:   reader,
		Metadata: metadata,
	}, nil
}
