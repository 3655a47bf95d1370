package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/storagekit/blobcorex"
	"github.com/storagekit/blobcorex/blobqueryx"
)

// TextFormat is the yaml form of a text configuration.
type TextFormat struct {
	Format          string `yaml:"format"`
	ColumnSeparator string `yaml:"columnSeparator,omitempty"`
	FieldQuote      string `yaml:"fieldQuote,omitempty"`
	EscapeCharacter string `yaml:"escapeCharacter,omitempty"`
	RecordSeparator string `yaml:"recordSeparator,omitempty"`
	HasHeaders      bool   `yaml:"hasHeaders,omitempty"`
}

// QueryDefinition is a query saved to a file, passed with --file.
type QueryDefinition struct {
	Container  string      `yaml:"container"`
	Blob       string      `yaml:"blob"`
	Snapshot   string      `yaml:"snapshot,omitempty"`
	Expression string      `yaml:"expression"`
	Input      *TextFormat `yaml:"input,omitempty"`
	Output     *TextFormat `yaml:"output,omitempty"`
	LeaseID    string      `yaml:"leaseId,omitempty"`
}

func loadQueryDefinition(path string) (*QueryDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}

	var def QueryDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse query file: %w", err)
	}

	return &def, nil
}

func singleRune(name, value string) (rune, error) {
	if value == "" {
		return 0, nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", name, value)
	}
	r, _ := utf8.DecodeRuneInString(value)
	return r, nil
}

func (f *TextFormat) toTextConfiguration() (blobqueryx.TextConfiguration, error) {
	if f == nil {
		return nil, nil
	}

	switch f.Format {
	case "", "csv":
		cfg := &blobcorex.CsvTextConfiguration{HasHeaders: f.HasHeaders}

		var err error
		if cfg.ColumnSeparator, err = singleRune("column separator", f.ColumnSeparator); err != nil {
			return nil, err
		}
		if cfg.FieldQuote, err = singleRune("field quote", f.FieldQuote); err != nil {
			return nil, err
		}
		if cfg.EscapeCharacter, err = singleRune("escape character", f.EscapeCharacter); err != nil {
			return nil, err
		}
		if cfg.RecordSeparator, err = singleRune("record separator", f.RecordSeparator); err != nil {
			return nil, err
		}
		return cfg, nil
	case "json":
		recordSeparator, err := singleRune("record separator", f.RecordSeparator)
		if err != nil {
			return nil, err
		}
		return &blobcorex.JsonTextConfiguration{RecordSeparator: recordSeparator}, nil
	default:
		return nil, fmt.Errorf("unsupported text format: %s", f.Format)
	}
}

func (d *QueryDefinition) toQueryOptions() (*blobcorex.QueryOptions, error) {
	input, err := d.Input.toTextConfiguration()
	if err != nil {
		return nil, fmt.Errorf("invalid input format: %w", err)
	}

	output, err := d.Output.toTextConfiguration()
	if err != nil {
		return nil, fmt.Errorf("invalid output format: %w", err)
	}

	opts := &blobcorex.QueryOptions{
		ContainerName:           d.Container,
		BlobName:                d.Blob,
		Snapshot:                d.Snapshot,
		Expression:              d.Expression,
		InputTextConfiguration:  input,
		OutputTextConfiguration: output,
	}
	if d.LeaseID != "" {
		opts.Conditions = &blobcorex.RequestConditions{LeaseID: d.LeaseID}
	}

	return opts, nil
}

// NewQueryCommand creates the query command
func NewQueryCommand() *cobra.Command {
	var (
		file         string
		expression   string
		snapshot     string
		leaseID      string
		inputFormat  string
		outputFormat string
		hasHeaders   bool
		separator    string
		showProgress bool
		failOnError  bool
	)

	cmd := &cobra.Command{
		Use:   "query [CONTAINER BLOB]",
		Short: "Run a query against a blob",
		Long: `Run a quick query expression against a blob and stream the results to stdout.

The query can be given with flags or loaded from a yaml file with --file, in
which case flags that are set override the file.`,
		Args: cobra.MatchAll(cobra.MaximumNArgs(2), func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return fmt.Errorf("both CONTAINER and BLOB must be given")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			def := &QueryDefinition{}
			if file != "" {
				loaded, err := loadQueryDefinition(file)
				if err != nil {
					return err
				}
				def = loaded
			}

			if len(args) == 2 {
				def.Container, def.Blob = args[0], args[1]
			}
			if cmd.Flags().Changed("query") {
				def.Expression = expression
			}
			if cmd.Flags().Changed("snapshot") {
				def.Snapshot = snapshot
			}
			if cmd.Flags().Changed("lease-id") {
				def.LeaseID = leaseID
			}
			if cmd.Flags().Changed("input-format") || cmd.Flags().Changed("has-headers") || cmd.Flags().Changed("column-separator") {
				def.Input = &TextFormat{
					Format:          inputFormat,
					HasHeaders:      hasHeaders,
					ColumnSeparator: separator,
				}
			}
			if cmd.Flags().Changed("output-format") {
				def.Output = &TextFormat{Format: outputFormat}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runQuery(ctx, def, cmd.OutOrStdout(), cmd.ErrOrStderr(), showProgress, failOnError)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "yaml file holding the query definition")
	cmd.Flags().StringVarP(&expression, "query", "q", "", "query expression, e.g. \"SELECT * from BlobStorage\"")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "snapshot of the blob to query")
	cmd.Flags().StringVar(&leaseID, "lease-id", "", "lease the blob must hold")
	cmd.Flags().StringVar(&inputFormat, "input-format", "csv", "format of the blob (csv, json)")
	cmd.Flags().StringVar(&outputFormat, "output-format", "csv", "format of the results (csv, json)")
	cmd.Flags().BoolVar(&hasHeaders, "has-headers", false, "the first csv record of the blob holds column names")
	cmd.Flags().StringVar(&separator, "column-separator", "", "csv column separator of the blob")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "report bytes scanned as the query runs")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit with an error when any record is skipped")

	return cmd
}

func runQuery(ctx context.Context, def *QueryDefinition, stdout, stderr io.Writer, showProgress, failOnError bool) error {
	opts, err := def.toQueryOptions()
	if err != nil {
		return err
	}

	status := newStatusPrinters(stderr)

	skipped := 0
	opts.ErrorReceiver = blobqueryx.ErrorReceiverFunc(func(qerr blobqueryx.QueryError) {
		skipped++
		status.warning.Printfln("%s at position %d: %s", qerr.Name, qerr.Position, qerr.Description)
	})
	if showProgress {
		opts.ProgressReceiver = blobqueryx.ProgressReceiverFunc(func(bytesScanned uint64) {
			status.info.Printfln("scanned %s", formatBytes(bytesScanned))
		})
	}

	agent, err := createAgent(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = agent.Close()
	}()

	res, err := agent.Query(ctx, opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = res.Reader.Close()
	}()

	if _, err := io.Copy(stdout, res.Reader); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	stats := res.Reader.Stats()
	if showProgress {
		status.success.Printfln("scanned %s, returned %s", formatBytes(stats.BytesScanned), formatBytes(stats.BytesRelayed))
	}

	if failOnError && skipped > 0 {
		return fmt.Errorf("query skipped %d records", skipped)
	}

	return nil
}
