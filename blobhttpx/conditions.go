package blobhttpx

import (
	"net/http"
	"time"
)

// RequestConditions are preconditions the target blob must satisfy for a
// request to proceed.
type RequestConditions struct {
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   *time.Time
	IfUnmodifiedSince *time.Time
	LeaseID           string
	TagConditions     string
}

func (c *RequestConditions) ApplyToRequest(req *http.Request) {
	if c == nil {
		return
	}

	if c.IfMatch != "" {
		req.Header.Set("If-Match", c.IfMatch)
	}
	if c.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", c.IfNoneMatch)
	}
	if c.IfModifiedSince != nil {
		req.Header.Set("If-Modified-Since", c.IfModifiedSince.UTC().Format(http.TimeFormat))
	}
	if c.IfUnmodifiedSince != nil {
		req.Header.Set("If-Unmodified-Since", c.IfUnmodifiedSince.UTC().Format(http.TimeFormat))
	}
	if c.LeaseID != "" {
		req.Header.Set("x-ms-lease-id", c.LeaseID)
	}
	if c.TagConditions != "" {
		req.Header.Set("x-ms-if-tags", c.TagConditions)
	}
}
