package common

import "runtime"

// OptimalWorkerCount sizes the shared worker pool. Matching shards are
// CPU-bound, so one worker per core with one core left for the logger
// and the main goroutine.
func OptimalWorkerCount() int {
	count := runtime.NumCPU() - 1
	if count < 1 {
		count = 1
	}
	return count
}
