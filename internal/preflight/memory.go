package preflight

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// bytesPerRecord approximates the in-memory cost of one indexed record
// including its email, address and variation entries.
const bytesPerRecord = 512

// CheckMemory compares available memory with the size of a full store.
// It only warns: the estimate is rough and the OS may still cope.
func (c *Checker) CheckMemory(maxRecords int) CheckResult {
	result := CheckResult{Name: "memory"}

	v, err := mem.VirtualMemory()
	if err != nil {
		result.Status = StatusWarn
		result.Message = "could not check memory"
		result.Details = err.Error()
		return result
	}

	need := uint64(max(maxRecords, 0)) * bytesPerRecord
	result.Message = fmt.Sprintf("%s available (store at capacity: ~%s)", formatBytes(v.Available), formatBytes(need))
	if v.Available < need {
		result.Status = StatusWarn
		result.Details = "lower store.max_records or free memory"
		return result
	}
	result.Status = StatusPass
	return result
}
