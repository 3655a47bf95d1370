package leakcheck

import (
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"time"
)

// ReportLeakedGoroutines waits up to a second for the goroutine count to drop
// back to expected, dumping all goroutine stacks if it never does.  Idle
// keep-alive connections of an http.Transport count as goroutines, so callers
// should close them first.
func ReportLeakedGoroutines(expected int) bool {
	const cleanupPeriod = 1 * time.Second

	var count int
	deadline := time.Now().Add(cleanupPeriod)
	for {
		runtime.Gosched()

		count = runtime.NumGoroutine()
		if count <= expected || time.Now().After(deadline) {
			break
		}

		time.Sleep(10 * time.Millisecond)
	}

	if count > expected {
		log.Printf("Detected a goroutine leak (%d goroutines > %d expected)", count, expected)
		_ = pprof.Lookup("goroutine").WriteTo(os.Stdout, 1)
		return false
	}

	log.Printf("No goroutines appear to have leaked (%d goroutines, %d expected)", count, expected)
	return true
}
