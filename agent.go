package blobcorex

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

type Agent struct {
	logger *zap.Logger

	lock             sync.Mutex
	closed           bool
	ownedTransport   *http.Transport
	httpRoundTripper http.RoundTripper

	retries RetryManager
	query   *QueryComponent
	mgmt    *MgmtComponent
}

func CreateAgent(ctx context.Context, opts AgentOptions) (*Agent, error) {
	logger := loggerOrNop(opts.Logger)

	err := validateEndpoints(opts.Endpoints)
	if err != nil {
		return nil, err
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "blobcorex/" + buildVersion
	}

	retries := opts.RetryManager
	if retries == nil {
		retries = NewRetryManagerDefault()
	}

	agent := &Agent{
		logger:  logger,
		retries: retries,
	}

	roundTripper := opts.HttpRoundTripper
	if roundTripper == nil {
		agent.ownedTransport = http.DefaultTransport.(*http.Transport).Clone()
		roundTripper = agent.ownedTransport
	}
	agent.httpRoundTripper = roundTripper

	agent.query = NewQueryComponent(retries,
		&QueryComponentConfig{
			HttpRoundTripper: roundTripper,
			Endpoints:        opts.Endpoints,
			Credential:       opts.Credential,
		},
		&QueryComponentOptions{
			Logger:    logger.Named("query"),
			UserAgent: userAgent,
		})

	agent.mgmt = NewMgmtComponent(retries,
		&MgmtComponentConfig{
			HttpRoundTripper: roundTripper,
			Endpoints:        opts.Endpoints,
			Credential:       opts.Credential,
		},
		&MgmtComponentOptions{
			Logger:    logger.Named("mgmt"),
			UserAgent: userAgent,
		})

	logger.Debug("created agent",
		zap.Strings("endpoints", opts.Endpoints),
		zap.String("build-version", buildVersion))

	return agent, nil
}

// Reconfigure replaces the endpoints and credential used by new requests.
// Query streams which are already open are unaffected.
func (agent *Agent) Reconfigure(opts *AgentReconfigureOptions) error {
	agent.lock.Lock()
	defer agent.lock.Unlock()

	if agent.closed {
		return ErrAgentClosed
	}

	err := validateEndpoints(opts.Endpoints)
	if err != nil {
		return err
	}

	err = agent.query.Reconfigure(&QueryComponentConfig{
		HttpRoundTripper: agent.httpRoundTripper,
		Endpoints:        opts.Endpoints,
		Credential:       opts.Credential,
	})
	if err != nil {
		return err
	}

	return agent.mgmt.Reconfigure(&MgmtComponentConfig{
		HttpRoundTripper: agent.httpRoundTripper,
		Endpoints:        opts.Endpoints,
		Credential:       opts.Credential,
	})
}

func validateEndpoints(endpoints []string) error {
	if len(endpoints) == 0 {
		return invalidArgumentError{Message: "at least one endpoint must be specified"}
	}

	for _, endpoint := range endpoints {
		if _, err := getHostFromUri(endpoint); err != nil {
			return invalidArgumentError{Message: fmt.Sprintf("invalid endpoint %q: %s", endpoint, err)}
		}
	}

	return nil
}

func (agent *Agent) checkOpen() error {
	agent.lock.Lock()
	defer agent.lock.Unlock()

	if agent.closed {
		return ErrAgentClosed
	}
	return nil
}

// Close stops the agent from accepting requests.  Open query streams must
// still be closed by their owners.
func (agent *Agent) Close() error {
	agent.lock.Lock()
	defer agent.lock.Unlock()

	if agent.closed {
		return nil
	}
	agent.closed = true

	if agent.ownedTransport != nil {
		agent.ownedTransport.CloseIdleConnections()
	}

	agent.logger.Debug("closed agent")
	return nil
}
