package testutils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/contrib/localblobsvc"
)

// TestService is the service a test runs against, either the emulator or
// the real service the tests were configured with.
type TestService struct {
	Endpoint   string
	Credential blobhttpx.Credential
	Transport  http.RoundTripper

	// Local is nil when running against a real service.
	Local *localblobsvc.Server
}

// StartLocalService runs the emulator for the lifetime of the test.
func StartLocalService(t *testing.T, opts *localblobsvc.ServerOptions) *TestService {
	local := localblobsvc.NewServer(opts)
	srv := httptest.NewServer(local)

	transport := &http.Transport{}
	t.Cleanup(func() {
		transport.CloseIdleConnections()
		srv.Close()
	})

	var credential blobhttpx.Credential
	if opts != nil && opts.SasSignature != "" {
		credential = blobhttpx.SasCredential{Token: "sv=" + blobhttpx.ServiceVersion + "&sig=" + opts.SasSignature}
	}

	return &TestService{
		Endpoint:   srv.URL,
		Credential: credential,
		Transport:  transport,
		Local:      local,
	}
}

// GetTestService returns the configured real service, or a fresh emulator.
func GetTestService(t *testing.T) *TestService {
	if TestOpts.Endpoint == "" {
		return StartLocalService(t, nil)
	}

	var credential blobhttpx.Credential
	if TestOpts.SasToken != "" {
		credential = blobhttpx.SasCredential{Token: TestOpts.SasToken}
	}

	return &TestService{
		Endpoint:   TestOpts.Endpoint,
		Credential: credential,
		Transport:  http.DefaultTransport,
	}
}
