package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/storagekit/blobcorex"
	"github.com/storagekit/blobcorex/blobhttpx"
)

// createAgent builds an agent from the connstr, endpoint and sas settings.
// An explicit endpoint or sas overrides what the connection string holds.
func createAgent(ctx context.Context) (*blobcorex.Agent, error) {
	opts := &blobcorex.AgentOptions{}

	if connStr := viper.GetString("connstr"); connStr != "" {
		parsed, err := blobcorex.AgentOptionsFromConnStr(connStr)
		if err != nil {
			return nil, fmt.Errorf("invalid connection string: %w", err)
		}
		opts = parsed
	}

	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		opts.Endpoints = []string{endpoint}
	}
	if sas := viper.GetString("sas"); sas != "" {
		opts.Credential = blobhttpx.SasCredential{Token: sas}
	}

	if len(opts.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoint configured, use --connstr or --endpoint")
	}

	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger

	return blobcorex.CreateAgent(ctx, *opts)
}

func newLogger() (*zap.Logger, error) {
	if !viper.GetBool("verbose") {
		return zap.NewNop(), nil
	}

	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}

// statusPrinters write decorated status lines, kept off the data stream.
type statusPrinters struct {
	info    *pterm.PrefixPrinter
	warning *pterm.PrefixPrinter
	success *pterm.PrefixPrinter
}

func newStatusPrinters(w io.Writer) *statusPrinters {
	return &statusPrinters{
		info:    pterm.Info.WithWriter(w),
		warning: pterm.Warning.WithWriter(w),
		success: pterm.Success.WithWriter(w),
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
