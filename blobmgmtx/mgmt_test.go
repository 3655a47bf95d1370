package blobmgmtx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/testutils"
)

func TestMain(m *testing.M) {
	testutils.SetupTests(m)
}

func getMgmt(t *testing.T) *Management {
	svc := testutils.GetTestService(t)

	return &Management{
		Logger:     testutils.MakeTestLogger(t),
		Transport:  svc.Transport,
		UserAgent:  "blobcorex test",
		Endpoint:   svc.Endpoint,
		Credential: svc.Credential,
	}
}

func TestMgmtContainerLifecycle(t *testing.T) {
	ctx := context.Background()
	mgmt := getMgmt(t)
	containerName := testutils.NewContainerName(t)

	err := mgmt.CreateContainer(ctx, &CreateContainerOptions{ContainerName: containerName})
	require.NoError(t, err)

	err = mgmt.CreateContainer(ctx, &CreateContainerOptions{ContainerName: containerName})
	assert.ErrorIs(t, err, ErrContainerExists)
	assert.ErrorIs(t, err, ErrRequestFailed)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, 409, serverErr.StatusCode)
	assert.Equal(t, containerName, serverErr.ContainerName)

	err = mgmt.DeleteContainer(ctx, &DeleteContainerOptions{ContainerName: containerName})
	require.NoError(t, err)

	err = mgmt.DeleteContainer(ctx, &DeleteContainerOptions{ContainerName: containerName})
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestMgmtBlobLifecycle(t *testing.T) {
	ctx := context.Background()
	mgmt := getMgmt(t)
	containerName := testutils.NewContainerName(t)

	require.NoError(t, mgmt.CreateContainer(ctx, &CreateContainerOptions{ContainerName: containerName}))
	t.Cleanup(func() {
		_ = mgmt.DeleteContainer(context.Background(), &DeleteContainerOptions{ContainerName: containerName})
	})

	data := testutils.CreateDataStream(1024)
	uploaded, err := mgmt.UploadBlob(ctx, &UploadBlobOptions{
		ContainerName: containerName,
		BlobName:      "dir/rows.csv",
		Data:          data,
		ContentType:   "text/csv",
		Tags:          map[string]string{"project": "alpha"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, uploaded.ETag)
	assert.False(t, uploaded.LastModified.IsZero())

	props, err := mgmt.GetBlobProperties(ctx, &GetBlobPropertiesOptions{
		ContainerName: containerName,
		BlobName:      "dir/rows.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, uploaded.ETag, props.ETag)
	assert.Equal(t, "text/csv", props.ContentType)
	assert.Equal(t, int64(len(data)), props.ContentLength)
	assert.Equal(t, "available", props.LeaseState)
	assert.Equal(t, 1, props.TagCount)

	_, err = mgmt.GetBlobProperties(ctx, &GetBlobPropertiesOptions{
		ContainerName: containerName,
		BlobName:      "dir/rows.csv",
		Conditions:    &blobhttpx.RequestConditions{IfMatch: `"garbage"`},
	})
	assert.ErrorIs(t, err, ErrConditionNotMet)

	err = mgmt.DeleteBlob(ctx, &DeleteBlobOptions{
		ContainerName: containerName,
		BlobName:      "dir/rows.csv",
	})
	require.NoError(t, err)

	_, err = mgmt.GetBlobProperties(ctx, &GetBlobPropertiesOptions{
		ContainerName: containerName,
		BlobName:      "dir/rows.csv",
	})
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestMgmtSnapshots(t *testing.T) {
	ctx := context.Background()
	mgmt := getMgmt(t)
	containerName := testutils.NewContainerName(t)

	require.NoError(t, mgmt.CreateContainer(ctx, &CreateContainerOptions{ContainerName: containerName}))
	t.Cleanup(func() {
		_ = mgmt.DeleteContainer(context.Background(), &DeleteContainerOptions{ContainerName: containerName})
	})

	first, err := mgmt.UploadBlob(ctx, &UploadBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Data:          []byte("1,2\n"),
	})
	require.NoError(t, err)

	snapshot, err := mgmt.CreateSnapshot(ctx, &CreateSnapshotOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	})
	require.NoError(t, err)
	require.NotEmpty(t, snapshot.Snapshot)

	_, err = mgmt.UploadBlob(ctx, &UploadBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Data:          []byte("3,4,5\n"),
	})
	require.NoError(t, err)

	props, err := mgmt.GetBlobProperties(ctx, &GetBlobPropertiesOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Snapshot:      snapshot.Snapshot,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ETag, props.ETag)
	assert.Equal(t, int64(4), props.ContentLength)
}

func TestMgmtLeases(t *testing.T) {
	testutils.SkipIfUnsupportedFeature(t, testutils.TestFeatureLeases)

	ctx := context.Background()
	mgmt := getMgmt(t)
	containerName := testutils.NewContainerName(t)

	require.NoError(t, mgmt.CreateContainer(ctx, &CreateContainerOptions{ContainerName: containerName}))
	t.Cleanup(func() {
		_ = mgmt.DeleteContainer(context.Background(), &DeleteContainerOptions{ContainerName: containerName})
	})

	_, err := mgmt.UploadBlob(ctx, &UploadBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Data:          []byte("1,2\n"),
	})
	require.NoError(t, err)

	leaseID, err := mgmt.AcquireLease(ctx, &AcquireLeaseOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Duration:      30 * time.Second,
	})
	require.NoError(t, err)
	require.NotEmpty(t, leaseID)

	_, err = mgmt.AcquireLease(ctx, &AcquireLeaseOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	})
	assert.ErrorIs(t, err, ErrLeaseAlreadyPresent)

	_, err = mgmt.UploadBlob(ctx, &UploadBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Data:          []byte("3,4\n"),
	})
	assert.ErrorIs(t, err, ErrLeaseConditionFailed)

	_, err = mgmt.UploadBlob(ctx, &UploadBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Data:          []byte("3,4\n"),
		Conditions:    &blobhttpx.RequestConditions{LeaseID: leaseID},
	})
	require.NoError(t, err)

	props, err := mgmt.GetBlobProperties(ctx, &GetBlobPropertiesOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "leased", props.LeaseState)
	assert.Equal(t, "fixed", props.LeaseDuration)

	err = mgmt.ReleaseLease(ctx, &ReleaseLeaseOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		LeaseID:       leaseID,
	})
	require.NoError(t, err)

	err = mgmt.DeleteBlob(ctx, &DeleteBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	})
	require.NoError(t, err)
}

func TestMgmtInvalidArguments(t *testing.T) {
	mgmt := &Management{Endpoint: "http://127.0.0.1:1"}
	ctx := context.Background()

	assert.Error(t, mgmt.CreateContainer(ctx, &CreateContainerOptions{}))
	assert.Error(t, mgmt.ReleaseLease(ctx, &ReleaseLeaseOptions{ContainerName: "c", BlobName: "b"}))

	_, err := mgmt.UploadBlob(ctx, &UploadBlobOptions{ContainerName: "c"})
	assert.Error(t, err)
}
