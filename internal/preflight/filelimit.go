package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the lowest open-file limit recidx runs with.
const MinFileDescriptors = 1024

// Descriptors held regardless of load: stdio, the snapshot and its temp
// file, the lock file, the refresh marker, the telemetry database with its
// WAL and shared-memory files, and the log file.
const baseDescriptors = 16

// Each fetch worker holds a connection or a file:// body, plus headroom for
// DNS and redirects.
const descriptorsPerWorker = 4

// estimatedDescriptors is the number of descriptors a refresh with the
// given fetch concurrency can hold at once.
func estimatedDescriptors(workers int) uint64 {
	return uint64(baseDescriptors + max(workers, 1)*descriptorsPerWorker)
}

// CheckFileDescriptors compares the soft open-file limit with the floor and
// with what a refresh using workers concurrent fetches needs.
func (c *Checker) CheckFileDescriptors(workers int) CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read open-file limit: %v", err)
		return result
	}
	return fileLimitResult(result, rLimit.Cur, rLimit.Max, workers)
}

func fileLimitResult(result CheckResult, soft, hard uint64, workers int) CheckResult {
	need := max(estimatedDescriptors(workers), MinFileDescriptors)
	result.Message = fmt.Sprintf("limit %d, refresh with %d fetch worker(s) uses about %d",
		soft, max(workers, 1), estimatedDescriptors(workers))

	if soft >= need {
		result.Status = StatusPass
		return result
	}

	result.Status = StatusFail
	if hard >= need {
		result.Details = fmt.Sprintf("raise the soft limit with 'ulimit -n %d' (hard limit %d)", need, hard)
	} else {
		result.Details = fmt.Sprintf("hard limit %d is below %d; raise it in the system limits configuration", hard, need)
	}
	return result
}
