package blobhttpx

import (
	"net/http"
	"net/url"
	"strings"
)

type Credential interface {
	applyToRequest(req *http.Request)
}

// SasCredential authorizes requests with a shared access signature token.
type SasCredential struct {
	Token string
}

func (c SasCredential) applyToRequest(req *http.Request) {
	sasValues, err := url.ParseQuery(strings.TrimPrefix(c.Token, "?"))
	if err != nil {
		return
	}

	reqValues := req.URL.Query()
	for k, vs := range sasValues {
		// request parameters win over anything the token carries
		if reqValues.Has(k) {
			continue
		}
		for _, v := range vs {
			reqValues.Add(k, v)
		}
	}
	req.URL.RawQuery = reqValues.Encode()
}

type BearerTokenCredential struct {
	Token string
}

func (c BearerTokenCredential) applyToRequest(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
}
