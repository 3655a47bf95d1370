package blobqueryx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/zaputils"
	"go.uber.org/zap"
)

type Query struct {
	Logger     *zap.Logger
	Transport  http.RoundTripper
	UserAgent  string
	Endpoint   string
	Credential blobhttpx.Credential

	// OnSessionEnd, when set, is called once for every query stream which
	// reaches a terminal state.
	OnSessionEnd func(stats SessionStats, err error)
}

func (h Query) NewRequest(
	ctx context.Context,
	method, path string,
	query url.Values,
	clientRequestID string,
	contentType string, body io.Reader,
) (*http.Request, error) {
	return blobhttpx.RequestBuilder{
		UserAgent:       h.UserAgent,
		Endpoint:        h.Endpoint,
		Credential:      h.Credential,
		ClientRequestID: clientRequestID,
	}.NewRequest(ctx, method, path, query, contentType, body)
}

func (h Query) Execute(
	ctx context.Context,
	method, path string,
	query url.Values,
	clientRequestID string,
	conditions *RequestConditions,
	contentType string, body io.Reader,
) (*http.Response, error) {
	req, err := h.NewRequest(ctx, method, path, query, clientRequestID, contentType, body)
	if err != nil {
		return nil, err
	}

	conditions.ApplyToRequest(req)

	return blobhttpx.Client{
		Transport: h.Transport,
	}.Do(req)
}

// Query submits a quick query and returns its output stream.  The response is
// read until the first byte of output is available, so failures which the
// service reports before producing any output are returned from here rather
// than from the first Read.
func (h Query) Query(ctx context.Context, opts *QueryOptions) (*QueryResult, error) {
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clientRequestID := opts.ClientRequestID
	if clientRequestID == "" {
		clientRequestID = uuid.NewString()
	}

	wrapError := func(err error, statusCode int) error {
		return &Error{
			Cause:           err,
			StatusCode:      statusCode,
			Endpoint:        h.Endpoint,
			ContainerName:   opts.ContainerName,
			BlobName:        opts.BlobName,
			Expression:      opts.Expression,
			ClientRequestID: clientRequestID,
		}
	}

	err := opts.Validate()
	if err != nil {
		return nil, wrapError(err, 0)
	}

	query, err := opts.encodeQueryParams()
	if err != nil {
		return nil, wrapError(err, 0)
	}

	reqBytes, err := opts.encodeToXml()
	if err != nil {
		return nil, wrapError(err, 0)
	}

	logger.Debug("submitting blob query",
		zaputils.BlobPath("blob", opts.ContainerName, opts.BlobName, opts.Snapshot),
		zaputils.RequestID("clientRequestId", clientRequestID))

	resp, err := h.Execute(
		ctx, "POST", blobhttpx.EscapePath(opts.ContainerName, opts.BlobName), query,
		clientRequestID, opts.Conditions,
		"application/xml", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, wrapError(err, 0)
	}

	return newQueryRespReader(resp, &queryRespReaderOptions{
		Logger:           logger,
		ProgressReceiver: opts.ProgressReceiver,
		ErrorReceiver:    opts.ErrorReceiver,
		OnSessionEnd:     h.OnSessionEnd,
		WrapError:        wrapError,
	})
}
