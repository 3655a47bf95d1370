package blobcorex

import (
	"context"
	"net/http"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/blobmgmtx"
	"go.uber.org/zap"
)

type MgmtComponent struct {
	baseHttpComponent

	logger  *zap.Logger
	retries RetryManager
}

type MgmtComponentConfig struct {
	HttpRoundTripper http.RoundTripper
	Endpoints        []string
	Credential       blobhttpx.Credential
}

type MgmtComponentOptions struct {
	Logger    *zap.Logger
	UserAgent string
}

func OrchestrateSimpleMgmtCall[ReqT any, RespT any](
	ctx context.Context,
	w *MgmtComponent,
	execFn func(o blobmgmtx.Management, ctx context.Context, req ReqT) (RespT, error),
	req ReqT,
) (RespT, error) {
	return OrchestrateRetries(ctx, w.retries, func() (RespT, error) {
		return orchestrateHttpEndpoint(&w.baseHttpComponent,
			func(roundTripper http.RoundTripper, endpoint string, credential blobhttpx.Credential) (RespT, error) {
				return execFn(blobmgmtx.Management{
					Logger:     w.logger,
					Transport:  roundTripper,
					UserAgent:  w.userAgent,
					Endpoint:   endpoint,
					Credential: credential,
				}, ctx, req)
			})
	})
}

func OrchestrateNoResMgmtCall[ReqT any](
	ctx context.Context,
	w *MgmtComponent,
	execFn func(o blobmgmtx.Management, ctx context.Context, req ReqT) error,
	req ReqT,
) error {
	_, err := OrchestrateSimpleMgmtCall(ctx, w,
		func(o blobmgmtx.Management, ctx context.Context, req ReqT) (struct{}, error) {
			return struct{}{}, execFn(o, ctx, req)
		}, req)
	return err
}

func NewMgmtComponent(retries RetryManager, config *MgmtComponentConfig, opts *MgmtComponentOptions) *MgmtComponent {
	return &MgmtComponent{
		baseHttpComponent: baseHttpComponent{
			userAgent: opts.UserAgent,
			state: &baseHttpComponentState{
				httpRoundTripper: config.HttpRoundTripper,
				endpoints:        config.Endpoints,
				credential:       config.Credential,
			},
		},
		logger:  loggerOrNop(opts.Logger),
		retries: retries,
	}
}

func (w *MgmtComponent) Reconfigure(config *MgmtComponentConfig) error {
	w.updateState(baseHttpComponentState{
		httpRoundTripper: config.HttpRoundTripper,
		endpoints:        config.Endpoints,
		credential:       config.Credential,
	})
	return nil
}

type CreateContainerOptions = blobmgmtx.CreateContainerOptions

func (w *MgmtComponent) CreateContainer(ctx context.Context, opts *CreateContainerOptions) error {
	return OrchestrateNoResMgmtCall(ctx, w, blobmgmtx.Management.CreateContainer, opts)
}

type DeleteContainerOptions = blobmgmtx.DeleteContainerOptions

func (w *MgmtComponent) DeleteContainer(ctx context.Context, opts *DeleteContainerOptions) error {
	return OrchestrateNoResMgmtCall(ctx, w, blobmgmtx.Management.DeleteContainer, opts)
}

type UploadBlobOptions = blobmgmtx.UploadBlobOptions
type UploadBlobResponse = blobmgmtx.UploadBlobResponse

func (w *MgmtComponent) UploadBlob(ctx context.Context, opts *UploadBlobOptions) (*UploadBlobResponse, error) {
	return OrchestrateSimpleMgmtCall(ctx, w, blobmgmtx.Management.UploadBlob, opts)
}

type DeleteBlobOptions = blobmgmtx.DeleteBlobOptions

func (w *MgmtComponent) DeleteBlob(ctx context.Context, opts *DeleteBlobOptions) error {
	return OrchestrateNoResMgmtCall(ctx, w, blobmgmtx.Management.DeleteBlob, opts)
}

type CreateSnapshotOptions = blobmgmtx.CreateSnapshotOptions
type CreateSnapshotResponse = blobmgmtx.CreateSnapshotResponse

func (w *MgmtComponent) CreateSnapshot(ctx context.Context, opts *CreateSnapshotOptions) (*CreateSnapshotResponse, error) {
	return OrchestrateSimpleMgmtCall(ctx, w, blobmgmtx.Management.CreateSnapshot, opts)
}

type AcquireLeaseOptions = blobmgmtx.AcquireLeaseOptions

func (w *MgmtComponent) AcquireLease(ctx context.Context, opts *AcquireLeaseOptions) (string, error) {
	return OrchestrateSimpleMgmtCall(ctx, w, blobmgmtx.Management.AcquireLease, opts)
}

type ReleaseLeaseOptions = blobmgmtx.ReleaseLeaseOptions

func (w *MgmtComponent) ReleaseLease(ctx context.Context, opts *ReleaseLeaseOptions) error {
	return OrchestrateNoResMgmtCall(ctx, w, blobmgmtx.Management.ReleaseLease, opts)
}

type GetBlobPropertiesOptions = blobmgmtx.GetBlobPropertiesOptions
type BlobProperties = blobmgmtx.BlobProperties

func (w *MgmtComponent) GetBlobProperties(ctx context.Context, opts *GetBlobPropertiesOptions) (*BlobProperties, error) {
	return OrchestrateSimpleMgmtCall(ctx, w, blobmgmtx.Management.GetBlobProperties, opts)
}
