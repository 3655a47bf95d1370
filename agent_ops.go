package blobcorex

import "context"

func (agent *Agent) Query(ctx context.Context, opts *QueryOptions) (*QueryResult, error) {
	if err := agent.checkOpen(); err != nil {
		return nil, err
	}
	return agent.query.Query(ctx, opts)
}

func (agent *Agent) CreateContainer(ctx context.Context, opts *CreateContainerOptions) error {
	if err := agent.checkOpen(); err != nil {
		return err
	}
	return agent.mgmt.CreateContainer(ctx, opts)
}

func (agent *Agent) DeleteContainer(ctx context.Context, opts *DeleteContainerOptions) error {
	if err := agent.checkOpen(); err != nil {
		return err
	}
	return agent.mgmt.DeleteContainer(ctx, opts)
}

func (agent *Agent) UploadBlob(ctx context.Context, opts *UploadBlobOptions) (*UploadBlobResponse, error) {
	if err := agent.checkOpen(); err != nil {
		return nil, err
	}
	return agent.mgmt.UploadBlob(ctx, opts)
}

func (agent *Agent) DeleteBlob(ctx context.Context, opts *DeleteBlobOptions) error {
	if err := agent.checkOpen(); err != nil {
		return err
	}
	return agent.mgmt.DeleteBlob(ctx, opts)
}

func (agent *Agent) CreateSnapshot(ctx context.Context, opts *CreateSnapshotOptions) (*CreateSnapshotResponse, error) {
	if err := agent.checkOpen(); err != nil {
		return nil, err
	}
	return agent.mgmt.CreateSnapshot(ctx, opts)
}

func (agent *Agent) AcquireLease(ctx context.Context, opts *AcquireLeaseOptions) (string, error) {
	if err := agent.checkOpen(); err != nil {
		return "", err
	}
	return agent.mgmt.AcquireLease(ctx, opts)
}

func (agent *Agent) ReleaseLease(ctx context.Context, opts *ReleaseLeaseOptions) error {
	if err := agent.checkOpen(); err != nil {
		return err
	}
	return agent.mgmt.ReleaseLease(ctx, opts)
}

func (agent *Agent) GetBlobProperties(ctx context.Context, opts *GetBlobPropertiesOptions) (*BlobProperties, error) {
	if err := agent.checkOpen(); err != nil {
		return nil, err
	}
	return agent.mgmt.GetBlobProperties(ctx, opts)
}
