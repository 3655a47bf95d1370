package blobcorex

import (
	"context"
	"net/http"

	"github.com/storagekit/blobcorex/blobhttpx"
	"github.com/storagekit/blobcorex/blobqueryx"
	"go.uber.org/zap"
)

type QueryOptions = blobqueryx.QueryOptions
type QueryResult = blobqueryx.QueryResult
type CsvTextConfiguration = blobqueryx.CsvTextConfiguration
type JsonTextConfiguration = blobqueryx.JsonTextConfiguration
type RequestConditions = blobqueryx.RequestConditions

type QueryComponent struct {
	baseHttpComponent

	logger  *zap.Logger
	retries RetryManager
	telem   *queryTelem
}

type QueryComponentConfig struct {
	HttpRoundTripper http.RoundTripper
	Endpoints        []string
	Credential       blobhttpx.Credential
}

type QueryComponentOptions struct {
	Logger    *zap.Logger
	UserAgent string
}

func NewQueryComponent(retries RetryManager, config *QueryComponentConfig, opts *QueryComponentOptions) *QueryComponent {
	return &QueryComponent{
		baseHttpComponent: baseHttpComponent{
			userAgent: opts.UserAgent,
			state: &baseHttpComponentState{
				httpRoundTripper: config.HttpRoundTripper,
				endpoints:        config.Endpoints,
				credential:       config.Credential,
			},
		},
		logger:  loggerOrNop(opts.Logger),
		retries: retries,
		telem:   newQueryTelem(),
	}
}

func (w *QueryComponent) Reconfigure(config *QueryComponentConfig) error {
	w.updateState(baseHttpComponentState{
		httpRoundTripper: config.HttpRoundTripper,
		endpoints:        config.Endpoints,
		credential:       config.Credential,
	})
	return nil
}

// Query submits a quick query.  Failures before the output stream starts are
// retried according to the retry manager, the stream itself is never
// restarted.
func (w *QueryComponent) Query(ctx context.Context, opts *QueryOptions) (*QueryResult, error) {
	ctx, op := w.telem.BeginQuery(ctx, opts)

	res, err := OrchestrateRetries(ctx, w.retries, func() (*QueryResult, error) {
		return orchestrateHttpEndpoint(&w.baseHttpComponent,
			func(roundTripper http.RoundTripper, endpoint string, credential blobhttpx.Credential) (*QueryResult, error) {
				op.MarkEndpoint(endpoint)

				return blobqueryx.Query{
					Logger:       w.logger,
					Transport:    roundTripper,
					UserAgent:    w.userAgent,
					Endpoint:     endpoint,
					Credential:   credential,
					OnSessionEnd: op.SessionEnded,
				}.Query(ctx, opts)
			})
	})
	if err != nil {
		op.End(err)
		return nil, err
	}

	return res, nil
}
