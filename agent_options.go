package blobcorex

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/contrib/connstr"
)

type AgentOptions struct {
	Logger *zap.Logger

	// Endpoints are the blob service endpoints of the storage account, the
	// first being the primary.  Requests fail over to the others when a
	// connection cannot be made.
	Endpoints  []string
	Credential blobhttpx.Credential

	// HttpRoundTripper is used for all requests.  When nil the agent creates
	// its own transport and closes it with the agent.
	HttpRoundTripper http.RoundTripper
	UserAgent        string

	RetryManager RetryManager
}

type AgentReconfigureOptions struct {
	Endpoints  []string
	Credential blobhttpx.Credential
}

// AgentOptionsFromConnStr builds agent options from a storage connection
// string.
func AgentOptionsFromConnStr(connStr string) (*AgentOptions, error) {
	spec, err := connstr.Parse(connStr)
	if err != nil {
		return nil, err
	}

	opts := &AgentOptions{
		Endpoints: []string{spec.BlobEndpoint},
	}
	if spec.SasToken != "" {
		opts.Credential = blobhttpx.SasCredential{Token: spec.SasToken}
	}

	return opts, nil
}
