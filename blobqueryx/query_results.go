package blobqueryx

import (
	"net/http"
	"time"
)

type QueryResult struct {
	Reader   *QueryReader
	Metadata ResponseMetadata
}

// ResponseMetadata holds the properties of the queried blob returned in the
// response headers.
type ResponseMetadata struct {
	ETag            string
	LastModified    time.Time
	ContentType     string
	RequestID       string
	ClientRequestID string
	Version         string
	BlobType        string
	LeaseState      string
	LeaseStatus     string
	LeaseDuration   string
	ServerEncrypted bool
	Date            time.Time
}

func parseHttpTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	parsed, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func parseResponseMetadata(header http.Header) ResponseMetadata {
	return ResponseMetadata{
		ETag:            header.Get("ETag"),
		LastModified:    parseHttpTime(header.Get("Last-Modified")),
		ContentType:     header.Get("Content-Type"),
		RequestID:       header.Get("x-ms-request-id"),
		ClientRequestID: header.Get("x-ms-client-request-id"),
		Version:         header.Get("x-ms-version"),
		BlobType:        header.Get("x-ms-blob-type"),
		LeaseState:      header.Get("x-ms-lease-state"),
		LeaseStatus:     header.Get("x-ms-lease-status"),
		LeaseDuration:   header.Get("x-ms-lease-duration"),
		ServerEncrypted: header.Get("x-ms-server-encrypted") == "true",
		Date:            parseHttpTime(header.Get("Date")),
	}
}
