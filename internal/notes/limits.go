package notes

import (
	"fmt"

	"github.com/kuitang/notefold/internal/errs"
)

// DefaultStorageLimitBytes is the per-user content quota (40 MB).
const DefaultStorageLimitBytes int64 = 40 * 1024 * 1024

// Quota configures the storage gate.
type Quota struct {
	LimitBytes int64
	// EnforceOnUpdate also gates updates that grow content. Off by default:
	// only creation is gated.
	EnforceOnUpdate bool
}

// DefaultQuota gates creation only at DefaultStorageLimitBytes.
var DefaultQuota = Quota{LimitBytes: DefaultStorageLimitBytes}

// StorageUsageInfo contains information about a user's storage usage
type StorageUsageInfo struct {
	UsedBytes  int64   `json:"used_bytes"`
	LimitBytes int64   `json:"limit_bytes"`
	UsedMB     float64 `json:"used_mb"`
	LimitMB    float64 `json:"limit_mb"`
	Percentage float64 `json:"percentage"`
}

// CheckStorageLimit rejects adding newContentSize bytes when the total would
// exceed limit. A limit <= 0 means unlimited.
func CheckStorageLimit(currentSize, newContentSize, limit int64) error {
	if limit <= 0 {
		return nil
	}
	if currentSize+newContentSize > limit {
		return errs.New(errs.ResourceExhausted, fmt.Sprintf(
			"storage quota exceeded: %d of %d bytes used, note needs %d more",
			currentSize, limit, newContentSize))
	}
	return nil
}

// CheckStorageLimitForUpdate gates only growth; shrinking edits always pass.
func CheckStorageLimitForUpdate(currentTotalSize, oldContentSize, newContentSize, limit int64) error {
	delta := newContentSize - oldContentSize
	if delta <= 0 {
		return nil
	}
	return CheckStorageLimit(currentTotalSize, delta, limit)
}

// NewStorageUsageInfo creates a StorageUsageInfo from the given used bytes.
func NewStorageUsageInfo(usedBytes, limitBytes int64) StorageUsageInfo {
	usedMB := float64(usedBytes) / (1024 * 1024)
	limitMB := float64(limitBytes) / (1024 * 1024)
	percentage := float64(0)
	if limitBytes > 0 {
		percentage = float64(usedBytes) / float64(limitBytes) * 100
	}
	if percentage > 100 {
		percentage = 100
	}
	return StorageUsageInfo{
		UsedBytes:  usedBytes,
		LimitBytes: limitBytes,
		UsedMB:     usedMB,
		LimitMB:    limitMB,
		Percentage: percentage,
	}
}
