package blobhttpx

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServiceVersion is the REST API version sent with every request.
const ServiceVersion = "2020-10-02"

type RequestBuilder struct {
	UserAgent       string
	Endpoint        string
	Credential      Credential
	ClientRequestID string
}

func (h RequestBuilder) NewRequest(
	ctx context.Context,
	method, path string,
	query url.Values,
	contentType string,
	body io.Reader,
) (*http.Request, error) {
	uri := strings.TrimSuffix(h.Endpoint, "/") + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}

	clientRequestID := h.ClientRequestID
	if clientRequestID == "" {
		clientRequestID = uuid.NewString()
	}

	req.Header.Set("x-ms-version", ServiceVersion)
	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("x-ms-client-request-id", clientRequestID)

	if h.Credential != nil {
		h.Credential.applyToRequest(req)
	}

	return req, nil
}

// EscapePath builds an escaped /container/blob request path.
func EscapePath(containerName, blobName string) string {
	if blobName == "" {
		return "/" + url.PathEscape(containerName)
	}

	segments := strings.Split(blobName, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return "/" + url.PathEscape(containerName) + "/" + strings.Join(segments, "/")
}
