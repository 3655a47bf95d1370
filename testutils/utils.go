package testutils

import (
	"bytes"
	"flag"
	"log"
	"net/http"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/storagekit/blobcorex/contrib/connstr"
	"github.com/storagekit/blobcorex/contrib/leakcheck"
)

var TestOpts TestOptions

type TestOptions struct {
	// Endpoint and SasToken point at a real service.  When Endpoint is empty
	// tests run against an in-process emulator.
	Endpoint          string
	SasToken          string
	LongTest          bool
	SupportedFeatures []TestFeature
	RunName           string
	OriginalConnStr   string
}

func addSupportedFeature(feat TestFeature) {
	if !slices.Contains(TestOpts.SupportedFeatures, feat) {
		TestOpts.SupportedFeatures = append(TestOpts.SupportedFeatures, feat)
	}
}

func removeSupportedFeature(feat TestFeature) {
	featIdx := slices.Index(TestOpts.SupportedFeatures, feat)
	if featIdx >= 0 {
		TestOpts.SupportedFeatures = slices.Delete(TestOpts.SupportedFeatures, featIdx, featIdx+1)
	}
}

func envFlagString(envName, name, value, usage string) *string {
	envValue := os.Getenv(envName)
	if envValue != "" {
		value = envValue
	}
	return flag.String(name, value, usage)
}

var connStr = envFlagString("BLOBCONNSTR", "connstr", "",
	"Storage connection string to run tests against a real service")
var featsStr = envFlagString("BLOBFEAT", "features", "leases",
	"A comma-delimited list of features to test")

func SetupTests(m *testing.M) {
	initialGoroutineCount := runtime.NumGoroutine()
	flag.Parse()

	leakcheck.EnableAll()

	if *connStr != "" {
		spec, err := connstr.Parse(*connStr)
		if err != nil {
			panic("failed to parse connection string: " + err.Error())
		}

		TestOpts.Endpoint = spec.BlobEndpoint
		TestOpts.SasToken = spec.SasToken
		TestOpts.OriginalConnStr = *connStr
	}

	TestOpts.LongTest = !testing.Short()

	TestOpts.SupportedFeatures = []TestFeature{}
	for _, featStr := range strings.Split(*featsStr, ",") {
		featStr = strings.TrimSpace(featStr)
		if featStr == "" {
			continue
		}

		feat := TestFeature(strings.TrimLeft(featStr, "+-*"))
		if featStr == "*" {
			for _, feat := range AllTestFeatures {
				addSupportedFeature(feat)
			}
		} else if strings.HasPrefix(featStr, "-") {
			removeSupportedFeature(feat)
		} else {
			addSupportedFeature(feat)
		}
	}

	TestOpts.RunName = strings.ReplaceAll(uuid.NewString(), "-", "")[0:8]

	result := m.Run()

	// idle keep-alive connections hold goroutines open
	http.DefaultClient.CloseIdleConnections()
	if transport, ok := http.DefaultTransport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}

	if !leakcheck.ReportAll(initialGoroutineCount) {
		log.Printf("Failing tests due to leaked http responses")
		result = 1
	}

	os.Exit(result)
}

func SkipIfShortTest(t *testing.T) {
	if !TestOpts.LongTest {
		t.Skipf("skipping long test")
	}
}

func MakeTestLogger(t *testing.T) *zap.Logger {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return logger
}

// CreateDataStream returns at least size bytes of four column CSV made of
// whole "100,200,300,400\n300,400,500,600\n" pairs.
func CreateDataStream(size int) []byte {
	rowData := []byte("100,200,300,400\n300,400,500,600\n")

	count := (size + len(rowData) - 1) / len(rowData)
	return bytes.Repeat(rowData, count)
}

// NewContainerName returns a container name unique to this test run.
func NewContainerName(t *testing.T) string {
	return "test-" + TestOpts.RunName + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[0:8]
}
