package blobcorex

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/atomic"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/blobqueryx"
	"github.com/storagekit/blobcorex/contrib/localblobsvc"
	"github.com/storagekit/blobcorex/testutils"
)

func createTestAgent(t *testing.T, svc *testutils.TestService, roundTripper http.RoundTripper) *Agent {
	if roundTripper == nil {
		roundTripper = svc.Transport
	}

	agent, err := CreateAgent(context.Background(), AgentOptions{
		Logger:           testutils.MakeTestLogger(t),
		Endpoints:        []string{svc.Endpoint},
		Credential:       svc.Credential,
		HttpRoundTripper: roundTripper,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, agent.Close())
	})

	return agent
}

func stageTestBlob(t *testing.T, agent *Agent, data []byte) string {
	ctx := context.Background()
	containerName := testutils.NewContainerName(t)

	require.NoError(t, agent.CreateContainer(ctx, &CreateContainerOptions{ContainerName: containerName}))
	t.Cleanup(func() {
		_ = agent.DeleteContainer(context.Background(), &DeleteContainerOptions{ContainerName: containerName})
	})

	_, err := agent.UploadBlob(ctx, &UploadBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Data:          data,
		ContentType:   "text/csv",
	})
	require.NoError(t, err)

	return containerName
}

func TestAgentQuery(t *testing.T) {
	svc := testutils.GetTestService(t)
	agent := createTestAgent(t, svc, nil)
	containerName := stageTestBlob(t, agent, testutils.CreateDataStream(1024))

	var progress []uint64
	res, err := agent.Query(context.Background(), &QueryOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Expression:    "SELECT _2 from BlobStorage WHERE _1 > 250;",
		ProgressReceiver: blobqueryx.ProgressReceiverFunc(func(bytesScanned uint64) {
			progress = append(progress, bytesScanned)
		}),
	})
	require.NoError(t, err)

	out, err := io.ReadAll(res.Reader)
	require.NoError(t, err)
	require.NoError(t, res.Reader.Close())

	assert.Equal(t, strings.Repeat("400\n", 32), string(out))
	assert.Equal(t, []uint64{1024, 1024}, progress)
}

func TestAgentQueryBlobNotFound(t *testing.T) {
	svc := testutils.GetTestService(t)
	agent := createTestAgent(t, svc, nil)
	containerName := stageTestBlob(t, agent, testutils.CreateDataStream(1024))

	_, err := agent.Query(context.Background(), &QueryOptions{
		ContainerName: containerName,
		BlobName:      "missing.csv",
		Expression:    "SELECT * from BlobStorage",
	})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestAgentMgmtOps(t *testing.T) {
	ctx := context.Background()
	svc := testutils.GetTestService(t)
	agent := createTestAgent(t, svc, nil)
	containerName := stageTestBlob(t, agent, []byte("1,2\n"))

	snapshot, err := agent.CreateSnapshot(ctx, &CreateSnapshotOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot.Snapshot)

	leaseID, err := agent.AcquireLease(ctx, &AcquireLeaseOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	})
	require.NoError(t, err)

	props, err := agent.GetBlobProperties(ctx, &GetBlobPropertiesOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "leased", props.LeaseState)

	require.NoError(t, agent.ReleaseLease(ctx, &ReleaseLeaseOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		LeaseID:       leaseID,
	}))

	require.NoError(t, agent.DeleteBlob(ctx, &DeleteBlobOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
	}))
}

// busyRoundTripper answers the first failures requests with ServerBusy.
type busyRoundTripper struct {
	parent   http.RoundTripper
	failures atomic.Int32
	calls    atomic.Int32
}

func (rt *busyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.calls.Inc()

	if rt.failures.Dec() >= 0 {
		if req.Body != nil {
			_ = req.Body.Close()
		}

		header := http.Header{}
		header.Set("x-ms-error-code", "ServerBusy")
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     header,
			Body:       io.NopCloser(strings.NewReader("")),
			Request:    req,
		}, nil
	}

	return rt.parent.RoundTrip(req)
}

func TestAgentQueryRetriesServerBusy(t *testing.T) {
	svc := testutils.StartLocalService(t, nil)
	containerName := testutils.NewContainerName(t)
	require.NoError(t, svc.Local.Store().CreateContainer(containerName))
	_, err := svc.Local.Store().PutBlob(containerName, "rows.csv", testutils.CreateDataStream(1024), "", nil, nil)
	require.NoError(t, err)

	roundTripper := &busyRoundTripper{parent: svc.Transport}
	roundTripper.failures.Store(2)
	agent := createTestAgent(t, svc, roundTripper)

	res, err := agent.Query(context.Background(), &QueryOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Expression:    "SELECT * from BlobStorage",
	})
	require.NoError(t, err)

	out, err := io.ReadAll(res.Reader)
	require.NoError(t, err)
	assert.Len(t, out, 1024)
	assert.Equal(t, int32(3), roundTripper.calls.Load())
}

func TestAgentQueryDoesNotRetryFatalErrors(t *testing.T) {
	svc := testutils.StartLocalService(t, nil)
	containerName := testutils.NewContainerName(t)
	require.NoError(t, svc.Local.Store().CreateContainer(containerName))
	_, err := svc.Local.Store().PutBlob(containerName, "rows.csv", testutils.CreateDataStream(1024), "", nil, nil)
	require.NoError(t, err)

	roundTripper := &busyRoundTripper{parent: svc.Transport}
	agent := createTestAgent(t, svc, roundTripper)

	_, err = agent.Query(context.Background(), &QueryOptions{
		ContainerName:          containerName,
		BlobName:               "rows.csv",
		Expression:             "SELECT * from BlobStorage",
		InputTextConfiguration: &JsonTextConfiguration{},
	})
	assert.ErrorIs(t, err, ErrFatalQueryError)
	assert.Equal(t, int32(1), roundTripper.calls.Load())
}

func TestAgentEndpointFailover(t *testing.T) {
	svc := testutils.StartLocalService(t, nil)
	containerName := testutils.NewContainerName(t)

	agent, err := CreateAgent(context.Background(), AgentOptions{
		Logger:           testutils.MakeTestLogger(t),
		Endpoints:        []string{"http://127.0.0.1:1", svc.Endpoint},
		HttpRoundTripper: svc.Transport,
		RetryManager:     NewRetryManagerFastFail(),
	})
	require.NoError(t, err)
	defer func() { _ = agent.Close() }()

	for i := 0; i < 5; i++ {
		err := agent.CreateContainer(context.Background(), &CreateContainerOptions{
			ContainerName: containerName + "-" + string(rune('a'+i)),
		})
		require.NoError(t, err)
	}
}

func TestAgentReconfigureCredential(t *testing.T) {
	svc := testutils.StartLocalService(t, &localblobsvc.ServerOptions{SasSignature: "rotated"})

	agent, err := CreateAgent(context.Background(), AgentOptions{
		Endpoints:        []string{svc.Endpoint},
		Credential:       blobhttpx.SasCredential{Token: "sig=stale"},
		HttpRoundTripper: svc.Transport,
		RetryManager:     NewRetryManagerFastFail(),
	})
	require.NoError(t, err)
	defer func() { _ = agent.Close() }()

	containerName := testutils.NewContainerName(t)
	err = agent.CreateContainer(context.Background(), &CreateContainerOptions{ContainerName: containerName})
	assert.ErrorIs(t, err, ErrAuthenticationFailure)

	require.NoError(t, agent.Reconfigure(&AgentReconfigureOptions{
		Endpoints:  []string{svc.Endpoint},
		Credential: svc.Credential,
	}))

	err = agent.CreateContainer(context.Background(), &CreateContainerOptions{ContainerName: containerName})
	require.NoError(t, err)
}

func TestAgentClose(t *testing.T) {
	agent, err := CreateAgent(context.Background(), AgentOptions{
		Endpoints: []string{"http://127.0.0.1:10000/devstoreaccount1"},
	})
	require.NoError(t, err)

	require.NoError(t, agent.Close())
	require.NoError(t, agent.Close())

	_, err = agent.Query(context.Background(), &QueryOptions{})
	assert.ErrorIs(t, err, ErrAgentClosed)

	err = agent.Reconfigure(&AgentReconfigureOptions{Endpoints: []string{"http://127.0.0.1:10000"}})
	assert.ErrorIs(t, err, ErrAgentClosed)
}

func TestCreateAgentInvalidOptions(t *testing.T) {
	_, err := CreateAgent(context.Background(), AgentOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = CreateAgent(context.Background(), AgentOptions{Endpoints: []string{"http://[::1"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAgentReconfigureInvalidOptions(t *testing.T) {
	agent, err := CreateAgent(context.Background(), AgentOptions{
		Endpoints: []string{"http://127.0.0.1:10000/devstoreaccount1"},
	})
	require.NoError(t, err)
	defer func() { _ = agent.Close() }()

	err = agent.Reconfigure(&AgentReconfigureOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = agent.Reconfigure(&AgentReconfigureOptions{
		Endpoints: []string{"http://127.0.0.1:10000/devstoreaccount1", "http://[::1"},
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// the rejected endpoints were not applied
	_, endpoint, _, err := agent.query.SelectEndpoint(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1", endpoint)
}

func TestAgentOptionsFromConnStr(t *testing.T) {
	opts, err := AgentOptionsFromConnStr("UseDevelopmentStorage=true")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://127.0.0.1:10000/devstoreaccount1"}, opts.Endpoints)
	assert.Nil(t, opts.Credential)

	opts, err = AgentOptionsFromConnStr(
		"BlobEndpoint=https://acct.blob.example.net/;SharedAccessSignature=sv=2020-10-02&sig=abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acct.blob.example.net"}, opts.Endpoints)
	assert.Equal(t, blobhttpx.SasCredential{Token: "sv=2020-10-02&sig=abc"}, opts.Credential)

	_, err = AgentOptionsFromConnStr("garbage")
	assert.Error(t, err)
}

func TestAgentQueryTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	svc := testutils.StartLocalService(t, nil)
	agent := createTestAgent(t, svc, nil)
	containerName := stageTestBlob(t, agent, testutils.CreateDataStream(1024))

	res, err := agent.Query(context.Background(), &QueryOptions{
		ContainerName: containerName,
		BlobName:      "rows.csv",
		Expression:    "SELECT * from BlobStorage",
	})
	require.NoError(t, err)

	_, err = io.ReadAll(res.Reader)
	require.NoError(t, err)

	var querySpan sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "blob/query" {
			querySpan = span
		}
	}
	require.NotNil(t, querySpan)

	attribs := map[string]int64{}
	for _, attrib := range querySpan.Attributes() {
		if strings.HasPrefix(string(attrib.Key), "blob.query.") {
			attribs[string(attrib.Key)] = attrib.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(1024), attribs["blob.query.bytes_relayed"])
	assert.Equal(t, int64(1024), attribs["blob.query.bytes_scanned"])
	assert.Equal(t, int64(3), attribs["blob.query.frames"])
}
