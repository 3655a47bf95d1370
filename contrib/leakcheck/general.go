// Package leakcheck finds http response bodies and goroutines which tests
// forgot to clean up.
package leakcheck

func EnableAll() {
	EnableHttpResponseTracking()
}

// ReportAll reports leaked responses and goroutines.  Only leaked responses
// make it return false, goroutine leaks are logged.
func ReportAll(expectedGoroutines int) bool {
	passed := ReportLeakedHttpResponses()
	ReportLeakedGoroutines(expectedGoroutines)
	return passed
}
