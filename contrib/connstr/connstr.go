// Package connstr parses storage account connection strings of the form
// "AccountName=acct;BlobEndpoint=https://...;SharedAccessSignature=sv=...".
package connstr

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidConnStr = errors.New("invalid connection string")

// Well known account settings.
const (
	KeyAccountName           = "AccountName"
	KeyAccountKey            = "AccountKey"
	KeyBlobEndpoint          = "BlobEndpoint"
	KeyDefaultProtocol       = "DefaultEndpointsProtocol"
	KeyEndpointSuffix        = "EndpointSuffix"
	KeySharedAccessSignature = "SharedAccessSignature"
	KeyUseDevelopmentStorage = "UseDevelopmentStorage"
)

const (
	defaultEndpointSuffix = "core.windows.net"
	developmentEndpoint   = "http://127.0.0.1:10000/devstoreaccount1"
)

type ParseError struct {
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConnStr, e.Message)
}

func (e ParseError) Unwrap() error {
	return ErrInvalidConnStr
}

// ConnSpec is a parsed connection string.  Options holds every setting,
// including the ones surfaced as fields.
type ConnSpec struct {
	AccountName  string
	BlobEndpoint string
	SasToken     string
	Options      map[string]string
}

func Parse(connStr string) (*ConnSpec, error) {
	options := make(map[string]string)

	for _, part := range strings.Split(connStr, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok || key == "" {
			return nil, &ParseError{Message: "malformed setting: " + part}
		}

		if _, exists := options[key]; exists {
			return nil, &ParseError{Message: "duplicate setting: " + key}
		}
		options[key] = value
	}

	if len(options) == 0 {
		return nil, &ParseError{Message: "no settings"}
	}

	spec := &ConnSpec{
		AccountName: options[KeyAccountName],
		SasToken:    strings.TrimPrefix(options[KeySharedAccessSignature], "?"),
		Options:     options,
	}

	if strings.EqualFold(options[KeyUseDevelopmentStorage], "true") {
		spec.BlobEndpoint = developmentEndpoint
		if spec.AccountName == "" {
			spec.AccountName = "devstoreaccount1"
		}
		return spec, nil
	}

	spec.BlobEndpoint = strings.TrimSuffix(options[KeyBlobEndpoint], "/")
	if spec.BlobEndpoint == "" {
		if spec.AccountName == "" {
			return nil, &ParseError{Message: "either " + KeyBlobEndpoint + " or " + KeyAccountName + " must be set"}
		}

		protocol := options[KeyDefaultProtocol]
		if protocol == "" {
			protocol = "https"
		}
		if protocol != "http" && protocol != "https" {
			return nil, &ParseError{Message: "unsupported protocol: " + protocol}
		}

		suffix := options[KeyEndpointSuffix]
		if suffix == "" {
			suffix = defaultEndpointSuffix
		}

		spec.BlobEndpoint = fmt.Sprintf("%s://%s.blob.%s", protocol, spec.AccountName, suffix)
	}

	if !strings.HasPrefix(spec.BlobEndpoint, "http://") && !strings.HasPrefix(spec.BlobEndpoint, "https://") {
		return nil, &ParseError{Message: "blob endpoint must be an http or https url"}
	}

	return spec, nil
}
