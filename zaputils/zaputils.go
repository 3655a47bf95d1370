package zaputils

import (
	"go.uber.org/zap"
)

func ContainerName(key string, val string) zap.Field {
	return zap.String(key, val)
}

func BlobName(key string, val string) zap.Field {
	return zap.String(key, val)
}

func RequestID(key string, val string) zap.Field {
	return zap.String(key, val)
}

type LoggableBlobPath struct {
	ContainerName string
	BlobName      string
	Snapshot      string
}

func (e LoggableBlobPath) String() string {
	path := e.ContainerName
	if e.BlobName != "" {
		path += "/" + e.BlobName
	}
	if e.Snapshot != "" {
		path += "@" + e.Snapshot
	}
	return path
}

func BlobPath(key string, container, blob, snapshot string) zap.Field {
	return zap.Stringer(key, LoggableBlobPath{
		ContainerName: container,
		BlobName:      blob,
		Snapshot:      snapshot,
	})
}

func ContainerPath(key string, container string) zap.Field {
	// we just reuse the same logic as above
	return BlobPath(key, container, "", "")
}
