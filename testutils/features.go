package testutils

import (
	"testing"

	"golang.org/x/exp/slices"
)

type TestFeature string

const (
	// TestFeatureLargeBlobs enables tests which upload and query blobs of
	// more than a hundred megabytes.
	TestFeatureLargeBlobs TestFeature = "large-blobs"
	TestFeatureLeases     TestFeature = "leases"
)

var AllTestFeatures = []TestFeature{
	TestFeatureLargeBlobs,
	TestFeatureLeases,
}

func SupportsFeature(feat TestFeature) bool {
	return slices.Contains(TestOpts.SupportedFeatures, feat)
}

func SkipIfUnsupportedFeature(t *testing.T, feat TestFeature) {
	if !SupportsFeature(feat) {
		t.Skipf("skipping unsupported feature (%s)", feat)
	}
}
