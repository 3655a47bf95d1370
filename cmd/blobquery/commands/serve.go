package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storagekit/blobcorex/contrib/localblobsvc"
)

type serveOptions struct {
	listen           string
	sasSignature     string
	codec            string
	progressInterval int
	maxDataFrameLen  int
	containers       []string
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local blob service",
		Long: `Run an in-memory blob service which supports the container, blob, lease
and query operations used by this tool.  Data is lost when it exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			logger, err := zap.NewDevelopment()
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			lis, err := net.Listen("tcp", opts.listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", opts.listen, err)
			}

			newStatusPrinters(cmd.ErrOrStderr()).info.Printfln("serving blobs on http://%s", lis.Addr())
			return runServer(ctx, lis, logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "127.0.0.1:10000", "address to listen on")
	cmd.Flags().StringVar(&opts.sasSignature, "sas-signature", "", "require this sig on every request")
	cmd.Flags().StringVar(&opts.codec, "codec", "null", "codec of query responses (null, deflate, snappy)")
	cmd.Flags().IntVar(&opts.progressInterval, "progress-interval", localblobsvc.DefaultProgressInterval, "bytes scanned between progress frames")
	cmd.Flags().IntVar(&opts.maxDataFrameLen, "max-frame-len", localblobsvc.DefaultMaxDataFrameLen, "largest data frame of query responses")
	cmd.Flags().StringSliceVar(&opts.containers, "container", nil, "containers to create at startup")

	return cmd
}

func runServer(ctx context.Context, lis net.Listener, logger *zap.Logger, opts *serveOptions) error {
	store := localblobsvc.NewStore()
	for _, name := range opts.containers {
		if err := store.CreateContainer(name); err != nil {
			return fmt.Errorf("failed to create container %s: %w", name, err)
		}
	}

	srv := &http.Server{
		Handler: localblobsvc.NewServer(&localblobsvc.ServerOptions{
			Logger:           logger,
			Store:            store,
			ProgressInterval: opts.progressInterval,
			MaxDataFrameLen:  opts.maxDataFrameLen,
			Codec:            opts.codec,
			SasSignature:     opts.sasSignature,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}
