package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/storagekit/blobcorex"
)

type blobPropertiesInfo struct {
	ETag          string    `json:"etag" yaml:"etag"`
	LastModified  time.Time `json:"lastModified" yaml:"lastModified"`
	ContentType   string    `json:"contentType" yaml:"contentType"`
	ContentLength int64     `json:"contentLength" yaml:"contentLength"`
	LeaseState    string    `json:"leaseState" yaml:"leaseState"`
	LeaseStatus   string    `json:"leaseStatus,omitempty" yaml:"leaseStatus,omitempty"`
	LeaseDuration string    `json:"leaseDuration,omitempty" yaml:"leaseDuration,omitempty"`
	TagCount      int       `json:"tagCount" yaml:"tagCount"`
}

func writeProperties(w io.Writer, output string, props *blobcorex.BlobProperties) error {
	info := blobPropertiesInfo{
		ETag:          props.ETag,
		LastModified:  props.LastModified,
		ContentType:   props.ContentType,
		ContentLength: props.ContentLength,
		LeaseState:    props.LeaseState,
		LeaseStatus:   props.LeaseStatus,
		LeaseDuration: props.LeaseDuration,
		TagCount:      props.TagCount,
	}

	switch output {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer func() {
			_ = encoder.Close()
		}()
		return encoder.Encode(info)
	default:
		return pterm.DefaultTable.WithHasHeader().WithWriter(w).WithData(pterm.TableData{
			{"Property", "Value"},
			{"ETag", info.ETag},
			{"Last Modified", info.LastModified.Format(time.RFC1123)},
			{"Content Type", info.ContentType},
			{"Content Length", fmt.Sprintf("%d", info.ContentLength)},
			{"Lease State", info.LeaseState},
			{"Lease Duration", info.LeaseDuration},
			{"Tags", fmt.Sprintf("%d", info.TagCount)},
		}).Render()
	}
}

// NewPropertiesCommand creates the properties command
func NewPropertiesCommand() *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:     "properties CONTAINER BLOB",
		Aliases: []string{"props"},
		Short:   "Show blob properties",
		Long:    "Display the properties of a blob, or of one of its snapshots",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := createAgent(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = agent.Close()
			}()

			props, err := agent.GetBlobProperties(cmd.Context(), &blobcorex.GetBlobPropertiesOptions{
				ContainerName: args[0],
				BlobName:      args[1],
				Snapshot:      snapshot,
			})
			if err != nil {
				return fmt.Errorf("failed to get blob properties: %w", err)
			}

			return writeProperties(cmd.OutOrStdout(), viper.GetString("output"), props)
		},
	}

	cmd.Flags().StringVar(&snapshot, "snapshot", "", "snapshot of the blob")

	return cmd
}
