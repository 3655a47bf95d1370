package localblobsvc

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	tagConditionRegexp = regexp.MustCompile(`^\s*"([^"]+)"\s*=\s*'([^']*)'\s*$`)
	tagConjunctRegexp  = regexp.MustCompile(`(?i)\s+AND\s+`)
)

// matchesTags evaluates a conjunction of "key" = 'value' clauses.
func matchesTags(condition string, tags map[string]string) bool {
	for _, clause := range tagConjunctRegexp.Split(condition, -1) {
		m := tagConditionRegexp.FindStringSubmatch(clause)
		if m == nil {
			return false
		}

		if tags[m[1]] != m[2] {
			return false
		}
	}

	return true
}

// parseTags decodes the x-ms-tags header, a url encoded set of key=value
// pairs.
func parseTags(header string) (map[string]string, error) {
	if header == "" {
		return nil, nil
	}

	values, err := url.ParseQuery(header)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string, len(values))
	for k, vs := range values {
		tags[k] = vs[0]
	}
	return tags, nil
}

func parseConditionTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}

	t, err := http.ParseTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func etagMatches(condition, etag string) bool {
	for _, candidate := range strings.Split(condition, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// checkConditions applies the conditional headers of req to the current
// state of a blob.
func checkConditions(req *http.Request, view *BlobView) *serviceError {
	props := view.Properties

	if ifMatch := req.Header.Get("If-Match"); ifMatch != "" {
		if !etagMatches(ifMatch, props.ETag) {
			return errConditionNotMet
		}
	}

	if ifNoneMatch := req.Header.Get("If-None-Match"); ifNoneMatch != "" {
		if etagMatches(ifNoneMatch, props.ETag) {
			return errConditionNotMet
		}
	}

	if since, ok := parseConditionTime(req.Header.Get("If-Modified-Since")); ok {
		if !props.LastModified.After(since) {
			return errConditionNotMet
		}
	}

	if since, ok := parseConditionTime(req.Header.Get("If-Unmodified-Since")); ok {
		if props.LastModified.After(since) {
			return errConditionNotMet
		}
	}

	if tagCondition := req.Header.Get("x-ms-if-tags"); tagCondition != "" {
		if !matchesTags(tagCondition, props.Tags) {
			return errConditionNotMet
		}
	}

	if leaseID := req.Header.Get("x-ms-lease-id"); leaseID != "" {
		if !view.LeaseActive {
			return errLeaseNotPresent
		}
		if !strings.EqualFold(leaseID, view.LeaseID) {
			return errLeaseMismatch
		}
	}

	return nil
}

// checkWriteConditions is checkConditions plus the requirement that writes to
// a leased blob name the lease.
func checkWriteConditions(req *http.Request, view *BlobView) *serviceError {
	if view.LeaseActive && req.Header.Get("x-ms-lease-id") == "" {
		return errLeaseIdMissing
	}

	return checkConditions(req, view)
}
