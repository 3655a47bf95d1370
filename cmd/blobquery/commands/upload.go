package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storagekit/blobcorex"
)

// NewUploadCommand creates the upload command
func NewUploadCommand() *cobra.Command {
	var (
		contentType     string
		tags            map[string]string
		createContainer bool
		leaseID         string
	)

	cmd := &cobra.Command{
		Use:   "upload CONTAINER BLOB FILE",
		Short: "Upload a file as a blob",
		Long:  "Upload a local file as a block blob, replacing any blob of the same name",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			containerName, blobName, path := args[0], args[1], args[2]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			agent, err := createAgent(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				_ = agent.Close()
			}()

			if createContainer {
				err := agent.CreateContainer(cmd.Context(), &blobcorex.CreateContainerOptions{
					ContainerName: containerName,
				})
				if err != nil && !errors.Is(err, blobcorex.ErrContainerExists) {
					return fmt.Errorf("failed to create container: %w", err)
				}
			}

			opts := &blobcorex.UploadBlobOptions{
				ContainerName: containerName,
				BlobName:      blobName,
				Data:          data,
				ContentType:   contentType,
				Tags:          tags,
			}
			if leaseID != "" {
				opts.Conditions = &blobcorex.RequestConditions{LeaseID: leaseID}
			}

			res, err := agent.UploadBlob(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}

			newStatusPrinters(cmd.ErrOrStderr()).success.Printfln(
				"uploaded %s to %s/%s (etag %s)", formatBytes(uint64(len(data))), containerName, blobName, res.ETag)
			return nil
		},
	}

	cmd.Flags().StringVar(&contentType, "content-type", "", "content type of the blob")
	cmd.Flags().StringToStringVar(&tags, "tag", nil, "index tags to set on the blob, e.g. --tag project=alpha")
	cmd.Flags().BoolVar(&createContainer, "create-container", false, "create the container if it does not exist")
	cmd.Flags().StringVar(&leaseID, "lease-id", "", "lease held on the blob being replaced")

	return cmd
}
