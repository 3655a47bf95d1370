package localblobsvc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doTestRequest(t *testing.T, h http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServerBlobLifecycle(t *testing.T) {
	srv := NewServer(nil)

	rec := doTestRequest(t, srv, "PUT", "/data?restype=container", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doTestRequest(t, srv, "PUT", "/data?restype=container", "", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ContainerAlreadyExists", rec.Header().Get("x-ms-error-code"))

	rec = doTestRequest(t, srv, "PUT", "/data/dir/rows.csv", "1,2\n", map[string]string{
		"x-ms-blob-type": "BlockBlob",
		"x-ms-tags":      "project=alpha",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	etag := rec.Header().Get("ETag")
	assert.NotEmpty(t, etag)

	rec = doTestRequest(t, srv, "GET", "/data/dir/rows.csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1,2\n", rec.Body.String())
	assert.Equal(t, etag, rec.Header().Get("ETag"))
	assert.Equal(t, "1", rec.Header().Get("x-ms-tag-count"))

	rec = doTestRequest(t, srv, "GET", "/data/dir/rows.csv", "", map[string]string{
		"x-ms-if-tags": `"project" = 'beta'`,
	})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = doTestRequest(t, srv, "DELETE", "/data/dir/rows.csv", "", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doTestRequest(t, srv, "HEAD", "/data/dir/rows.csv", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "BlobNotFound", rec.Header().Get("x-ms-error-code"))
}

func TestServerLeases(t *testing.T) {
	srv := NewServer(nil)
	require.NoError(t, srv.Store().CreateContainer("data"))
	_, err := srv.Store().PutBlob("data", "rows.csv", []byte("1\n"), "", nil, nil)
	require.NoError(t, err)

	rec := doTestRequest(t, srv, "PUT", "/data/rows.csv?comp=lease", "", map[string]string{
		"x-ms-lease-action":      "acquire",
		"x-ms-lease-duration":    "-1",
		"x-ms-proposed-lease-id": "a8a6e3b5-66f8-4a7f-9bdc-8e3a1b7ecf01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "a8a6e3b5-66f8-4a7f-9bdc-8e3a1b7ecf01", rec.Header().Get("x-ms-lease-id"))

	rec = doTestRequest(t, srv, "PUT", "/data/rows.csv", "2\n", map[string]string{
		"x-ms-blob-type": "BlockBlob",
	})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "LeaseIdMissing", rec.Header().Get("x-ms-error-code"))

	rec = doTestRequest(t, srv, "HEAD", "/data/rows.csv", "", map[string]string{
		"x-ms-lease-id": "00000000-0000-0000-0000-000000000000",
	})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "LeaseIdMismatchWithBlobOperation", rec.Header().Get("x-ms-error-code"))

	rec = doTestRequest(t, srv, "HEAD", "/data/rows.csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "leased", rec.Header().Get("x-ms-lease-state"))
	assert.Equal(t, "infinite", rec.Header().Get("x-ms-lease-duration"))

	rec = doTestRequest(t, srv, "PUT", "/data/rows.csv?comp=lease", "", map[string]string{
		"x-ms-lease-action": "release",
		"x-ms-lease-id":     "a8a6e3b5-66f8-4a7f-9bdc-8e3a1b7ecf01",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doTestRequest(t, srv, "HEAD", "/data/rows.csv", "", map[string]string{
		"x-ms-lease-id": "a8a6e3b5-66f8-4a7f-9bdc-8e3a1b7ecf01",
	})
	assert.Equal(t, "LeaseNotPresentWithBlobOperation", rec.Header().Get("x-ms-error-code"))
}

func TestServerConditions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore()
	store.Now = func() time.Time { return now }

	srv := NewServer(&ServerOptions{Store: store})
	require.NoError(t, store.CreateContainer("data"))
	props, err := store.PutBlob("data", "rows.csv", []byte("1\n"), "", nil, nil)
	require.NoError(t, err)

	before := now.Add(-time.Hour).Format(http.TimeFormat)
	after := now.Add(time.Hour).Format(http.TimeFormat)

	testCases := []struct {
		name   string
		header map[string]string
		status int
	}{
		{"IfMatch", map[string]string{"If-Match": props.ETag}, http.StatusOK},
		{"IfMatchWrong", map[string]string{"If-Match": `"0x1"`}, http.StatusPreconditionFailed},
		{"IfNoneMatch", map[string]string{"If-None-Match": `"0x1"`}, http.StatusOK},
		{"IfNoneMatchSame", map[string]string{"If-None-Match": props.ETag}, http.StatusPreconditionFailed},
		{"IfModifiedSince", map[string]string{"If-Modified-Since": before}, http.StatusOK},
		{"IfModifiedSinceLater", map[string]string{"If-Modified-Since": after}, http.StatusPreconditionFailed},
		{"IfUnmodifiedSince", map[string]string{"If-Unmodified-Since": after}, http.StatusOK},
		{"IfUnmodifiedSinceEarlier", map[string]string{"If-Unmodified-Since": before}, http.StatusPreconditionFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doTestRequest(t, srv, "HEAD", "/data/rows.csv", "", tc.header)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestServerSnapshots(t *testing.T) {
	srv := NewServer(nil)
	require.NoError(t, srv.Store().CreateContainer("data"))
	_, err := srv.Store().PutBlob("data", "rows.csv", []byte("old\n"), "", nil, nil)
	require.NoError(t, err)

	rec := doTestRequest(t, srv, "PUT", "/data/rows.csv?comp=snapshot", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	snapshot := rec.Header().Get("x-ms-snapshot")
	require.NotEmpty(t, snapshot)

	_, err = srv.Store().PutBlob("data", "rows.csv", []byte("new\n"), "", nil, nil)
	require.NoError(t, err)

	rec = doTestRequest(t, srv, "GET", "/data/rows.csv?snapshot="+snapshot, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "old\n", rec.Body.String())
}

func TestServerSasSignature(t *testing.T) {
	srv := NewServer(&ServerOptions{SasSignature: "secret"})

	rec := doTestRequest(t, srv, "PUT", "/data?restype=container", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AuthenticationFailed", rec.Header().Get("x-ms-error-code"))

	rec = doTestRequest(t, srv, "PUT", "/data?restype=container&sig=secret", "", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
