package blobcorex

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/storagekit/blobcorex/blobhttpx"
)

type baseHttpComponent struct {
	userAgent string

	lock  sync.RWMutex
	state *baseHttpComponentState
}

type baseHttpComponentState struct {
	httpRoundTripper http.RoundTripper
	endpoints        []string
	credential       blobhttpx.Credential
}

func (c *baseHttpComponent) updateState(newState baseHttpComponentState) {
	c.lock.Lock()
	c.state = &newState
	c.lock.Unlock()
}

func filterStringsOut(strs []string, ignored []string) []string {
	return slices.DeleteFunc(slices.Clone(strs), func(s string) bool {
		return slices.Contains(ignored, s)
	})
}

func getHostFromUri(uri string) (string, error) {
	parsedUrl, err := url.Parse(uri)
	if err != nil {
		return "", err
	}

	return parsedUrl.Host, nil
}

func (c *baseHttpComponent) SelectEndpoint(ignoredEndpoints []string) (http.RoundTripper, string, blobhttpx.Credential, error) {
	c.lock.RLock()
	state := *c.state
	c.lock.RUnlock()

	// if there are no endpoints to query, we can't proceed
	if len(state.endpoints) == 0 {
		return nil, "", nil, nil
	}

	// remove all the endpoints we've already tried
	remainingEndpoints := filterStringsOut(state.endpoints, ignoredEndpoints)

	// if there are no more endpoints to try, we can't proceed
	if len(remainingEndpoints) == 0 {
		return nil, "", nil, nil
	}

	// pick a random endpoint to attempt
	endpoint := remainingEndpoints[rand.Intn(len(remainingEndpoints))]

	return state.httpRoundTripper, endpoint, state.credential, nil
}

// orchestrateHttpEndpoint runs fn against the component's endpoints, moving
// on to an untried endpoint when the connection could not be established.
func orchestrateHttpEndpoint[RespT any](
	c *baseHttpComponent,
	fn func(roundTripper http.RoundTripper, endpoint string, credential blobhttpx.Credential) (RespT, error),
) (RespT, error) {
	var recentEndpoints []string
	var lastErr error

	for {
		roundTripper, endpoint, credential, err := c.SelectEndpoint(recentEndpoints)
		if err != nil {
			var emptyResp RespT
			return emptyResp, err
		}

		if endpoint == "" {
			var emptyResp RespT
			if lastErr != nil {
				return emptyResp, lastErr
			}
			return emptyResp, ErrServiceNotAvailable
		}

		// mark the selected endpoint as having been tried
		recentEndpoints = append(recentEndpoints, endpoint)

		res, err := fn(roundTripper, endpoint, credential)
		if err != nil {
			if errors.Is(err, blobhttpx.ErrConnectError) {
				lastErr = err
				continue
			}

			var emptyResp RespT
			return emptyResp, err
		}

		return res, nil
	}
}
