package blobmgmtx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	querystring "github.com/google/go-querystring/query"
	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/zaputils"
	"go.uber.org/zap"
)

// Management stages and inspects the blobs which queries run against.
type Management struct {
	Logger     *zap.Logger
	Transport  http.RoundTripper
	UserAgent  string
	Endpoint   string
	Credential blobhttpx.Credential
}

func (h Management) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h Management) NewRequest(
	ctx context.Context,
	method, path string,
	query url.Values,
	contentType string, body io.Reader,
) (*http.Request, error) {
	return blobhttpx.RequestBuilder{
		UserAgent:  h.UserAgent,
		Endpoint:   h.Endpoint,
		Credential: h.Credential,
	}.NewRequest(ctx, method, path, query, contentType, body)
}

func (h Management) Execute(
	ctx context.Context,
	method, path string,
	query url.Values,
	header http.Header,
	conditions *blobhttpx.RequestConditions,
	contentType string, body io.Reader,
) (*http.Response, error) {
	req, err := h.NewRequest(ctx, method, path, query, contentType, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	conditions.ApplyToRequest(req)

	return blobhttpx.Client{
		Transport: h.Transport,
	}.Do(req)
}

func (h Management) decodeError(resp *http.Response, containerName, blobName string) error {
	svcErr := blobhttpx.DecodeServiceError(resp)

	h.logger().Debug("blob management request failed",
		zap.String("method", resp.Request.Method),
		zaputils.BlobPath("blob", containerName, blobName, ""),
		zap.Int("statusCode", svcErr.StatusCode),
		zap.String("errorCode", svcErr.ErrorCode))

	return &ServerError{
		Cause:         svcErr,
		StatusCode:    resp.StatusCode,
		ContainerName: containerName,
		BlobName:      blobName,
	}
}

type containerParams struct {
	Restype string `url:"restype"`
	Timeout int    `url:"timeout,omitempty"`
}

type CreateContainerOptions struct {
	ContainerName string
}

func (h Management) CreateContainer(ctx context.Context, opts *CreateContainerOptions) error {
	if opts.ContainerName == "" {
		return errors.New("must specify container name when creating a container")
	}

	query, err := querystring.Values(containerParams{Restype: "container"})
	if err != nil {
		return err
	}

	resp, err := h.Execute(ctx, "PUT", blobhttpx.EscapePath(opts.ContainerName, ""), query, nil, nil, "", nil)
	if err != nil {
		return err
	}

	if resp.StatusCode != 201 {
		return h.decodeError(resp, opts.ContainerName, "")
	}

	blobhttpx.DiscardAndClose(resp.Body)
	return nil
}

type DeleteContainerOptions struct {
	ContainerName string
}

func (h Management) DeleteContainer(ctx context.Context, opts *DeleteContainerOptions) error {
	if opts.ContainerName == "" {
		return errors.New("must specify container name when deleting a container")
	}

	query, err := querystring.Values(containerParams{Restype: "container"})
	if err != nil {
		return err
	}

	resp, err := h.Execute(ctx, "DELETE", blobhttpx.EscapePath(opts.ContainerName, ""), query, nil, nil, "", nil)
	if err != nil {
		return err
	}

	if resp.StatusCode != 202 {
		return h.decodeError(resp, opts.ContainerName, "")
	}

	blobhttpx.DiscardAndClose(resp.Body)
	return nil
}

type UploadBlobOptions struct {
	ContainerName string
	BlobName      string
	Data          []byte
	ContentType   string
	Tags          map[string]string
	Conditions    *blobhttpx.RequestConditions
}

type UploadBlobResponse struct {
	ETag         string
	LastModified time.Time
}

func (h Management) UploadBlob(ctx context.Context, opts *UploadBlobOptions) (*UploadBlobResponse, error) {
	if opts.ContainerName == "" || opts.BlobName == "" {
		return nil, errors.New("must specify container and blob name when uploading a blob")
	}

	header := http.Header{}
	header.Set("x-ms-blob-type", "BlockBlob")
	if opts.ContentType != "" {
		header.Set("x-ms-blob-content-type", opts.ContentType)
	}
	if len(opts.Tags) > 0 {
		tags := url.Values{}
		for k, v := range opts.Tags {
			tags.Set(k, v)
		}
		header.Set("x-ms-tags", tags.Encode())
	}

	resp, err := h.Execute(ctx, "PUT", blobhttpx.EscapePath(opts.ContainerName, opts.BlobName),
		nil, header, opts.Conditions, "application/octet-stream", bytes.NewReader(opts.Data))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 201 {
		return nil, h.decodeError(resp, opts.ContainerName, opts.BlobName)
	}

	blobhttpx.DiscardAndClose(resp.Body)

	lastModified, _ := http.ParseTime(resp.Header.Get("Last-Modified"))
	return &UploadBlobResponse{
		ETag:         resp.Header.Get("ETag"),
		LastModified: lastModified,
	}, nil
}

type DeleteBlobOptions struct {
	ContainerName string
	BlobName      string
	Conditions    *blobhttpx.RequestConditions
}

func (h Management) DeleteBlob(ctx context.Context, opts *DeleteBlobOptions) error {
	if opts.ContainerName == "" || opts.BlobName == "" {
		return errors.New("must specify container and blob name when deleting a blob")
	}

	resp, err := h.Execute(ctx, "DELETE", blobhttpx.EscapePath(opts.ContainerName, opts.BlobName),
		nil, nil, opts.Conditions, "", nil)
	if err != nil {
		return err
	}

	if resp.StatusCode != 202 {
		return h.decodeError(resp, opts.ContainerName, opts.BlobName)
	}

	blobhttpx.DiscardAndClose(resp.Body)
	return nil
}

type compParams struct {
	Comp string `url:"comp"`
}

type CreateSnapshotOptions struct {
	ContainerName string
	BlobName      string
}

type CreateSnapshotResponse struct {
	Snapshot string
	ETag     string
}

func (h Management) CreateSnapshot(ctx context.Context, opts *CreateSnapshotOptions) (*CreateSnapshotResponse, error) {
	if opts.ContainerName == "" || opts.BlobName == "" {
		return nil, errors.New("must specify container and blob name when creating a snapshot")
	}

	query, err := querystring.Values(compParams{Comp: "snapshot"})
	if err != nil {
		return nil, err
	}

	resp, err := h.Execute(ctx, "PUT", blobhttpx.EscapePath(opts.ContainerName, opts.BlobName),
		query, nil, nil, "", nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 201 {
		return nil, h.decodeError(resp, opts.ContainerName, opts.BlobName)
	}

	blobhttpx.DiscardAndClose(resp.Body)

	return &CreateSnapshotResponse{
		Snapshot: resp.Header.Get("x-ms-snapshot"),
		ETag:     resp.Header.Get("ETag"),
	}, nil
}

type AcquireLeaseOptions struct {
	ContainerName string
	BlobName      string
	// Duration of the lease, zero or negative for an infinite lease.
	Duration        time.Duration
	ProposedLeaseID string
}

func (h Management) AcquireLease(ctx context.Context, opts *AcquireLeaseOptions) (string, error) {
	if opts.ContainerName == "" || opts.BlobName == "" {
		return "", errors.New("must specify container and blob name when acquiring a lease")
	}

	query, err := querystring.Values(compParams{Comp: "lease"})
	if err != nil {
		return "", err
	}

	duration := -1
	if opts.Duration > 0 {
		duration = int(opts.Duration / time.Second)
	}

	header := http.Header{}
	header.Set("x-ms-lease-action", "acquire")
	header.Set("x-ms-lease-duration", strconv.Itoa(duration))
	if opts.ProposedLeaseID != "" {
		header.Set("x-ms-proposed-lease-id", opts.ProposedLeaseID)
	}

	resp, err := h.Execute(ctx, "PUT", blobhttpx.EscapePath(opts.ContainerName, opts.BlobName),
		query, header, nil, "", nil)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != 201 {
		return "", h.decodeError(resp, opts.ContainerName, opts.BlobName)
	}

	blobhttpx.DiscardAndClose(resp.Body)
	return resp.Header.Get("x-ms-lease-id"), nil
}

type ReleaseLeaseOptions struct {
	ContainerName string
	BlobName      string
	LeaseID       string
}

func (h Management) ReleaseLease(ctx context.Context, opts *ReleaseLeaseOptions) error {
	if opts.ContainerName == "" || opts.BlobName == "" || opts.LeaseID == "" {
		return errors.New("must specify container, blob and lease id when releasing a lease")
	}

	query, err := querystring.Values(compParams{Comp: "lease"})
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("x-ms-lease-action", "release")
	header.Set("x-ms-lease-id", opts.LeaseID)

	resp, err := h.Execute(ctx, "PUT", blobhttpx.EscapePath(opts.ContainerName, opts.BlobName),
		query, header, nil, "", nil)
	if err != nil {
		return err
	}

	if resp.StatusCode != 200 {
		return h.decodeError(resp, opts.ContainerName, opts.BlobName)
	}

	blobhttpx.DiscardAndClose(resp.Body)
	return nil
}

type snapshotParams struct {
	Snapshot string `url:"snapshot,omitempty"`
}

type GetBlobPropertiesOptions struct {
	ContainerName string
	BlobName      string
	Snapshot      string
	Conditions    *blobhttpx.RequestConditions
}

type BlobProperties struct {
	ETag          string
	LastModified  time.Time
	ContentType   string
	ContentLength int64
	LeaseState    string
	LeaseStatus   string
	LeaseDuration string
	TagCount      int
}

func (h Management) GetBlobProperties(ctx context.Context, opts *GetBlobPropertiesOptions) (*BlobProperties, error) {
	if opts.ContainerName == "" || opts.BlobName == "" {
		return nil, errors.New("must specify container and blob name when fetching blob properties")
	}

	query, err := querystring.Values(snapshotParams{Snapshot: opts.Snapshot})
	if err != nil {
		return nil, err
	}

	resp, err := h.Execute(ctx, "HEAD", blobhttpx.EscapePath(opts.ContainerName, opts.BlobName),
		query, nil, opts.Conditions, "", nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != 200 {
		return nil, h.decodeError(resp, opts.ContainerName, opts.BlobName)
	}

	blobhttpx.DiscardAndClose(resp.Body)

	lastModified, _ := http.ParseTime(resp.Header.Get("Last-Modified"))
	tagCount, _ := strconv.Atoi(resp.Header.Get("x-ms-tag-count"))

	return &BlobProperties{
		ETag:          resp.Header.Get("ETag"),
		LastModified:  lastModified,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		LeaseState:    resp.Header.Get("x-ms-lease-state"),
		LeaseStatus:   resp.Header.Get("x-ms-lease-status"),
		LeaseDuration: resp.Header.Get("x-ms-lease-duration"),
		TagCount:      tagCount,
	}, nil
}
