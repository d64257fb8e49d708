package notes

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"

	"github.com/kuitang/notefold/internal/errs"
	"github.com/kuitang/notefold/internal/testdb"
)

var testCounter atomic.Int64

type fataler interface {
	Fatalf(format string, args ...interface{})
}

func newTestService(t fataler, quota Quota) *Service {
	userID := fmt.Sprintf("notes-test-%d", testCounter.Add(1))
	userDB, err := testdb.NewUserDBInMemory(userID)
	if err != nil {
		t.Fatalf("failed to create in-memory database: %v", err)
	}
	return NewService(userDB, quota, nil)
}

// =============================================================================
// Property: CheckStorageLimit correctly enforces limit
// =============================================================================

func testCheckStorageLimit_Properties(t *rapid.T) {
	limit := rapid.Int64Range(1, DefaultStorageLimitBytes).Draw(t, "limit")
	currentSize := rapid.Int64Range(0, limit).Draw(t, "currentSize")
	newContentSize := rapid.Int64Range(0, limit).Draw(t, "newContentSize")

	err := CheckStorageLimit(currentSize, newContentSize, limit)

	if currentSize+newContentSize > limit {
		if !errs.Is(err, errs.ResourceExhausted) {
			t.Fatalf("expected resource_exhausted for %d + %d > %d, got %v", currentSize, newContentSize, limit, err)
		}
	} else if err != nil {
		t.Fatalf("expected no error within limit, got: %v", err)
	}
}

func TestCheckStorageLimit_Properties(t *testing.T) {
	rapid.Check(t, testCheckStorageLimit_Properties)
}

func FuzzCheckStorageLimit_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCheckStorageLimit_Properties))
}

func testCheckStorageLimit_UnlimitedWhenNonPositive_Properties(t *rapid.T) {
	limit := rapid.Int64Range(-10, 0).Draw(t, "limit")
	current := rapid.Int64Range(0, 1<<40).Draw(t, "current")
	add := rapid.Int64Range(0, 1<<40).Draw(t, "add")
	if err := CheckStorageLimit(current, add, limit); err != nil {
		t.Fatalf("limit %d should mean unlimited, got %v", limit, err)
	}
}

func TestCheckStorageLimit_UnlimitedWhenNonPositive_Properties(t *testing.T) {
	rapid.Check(t, testCheckStorageLimit_UnlimitedWhenNonPositive_Properties)
}

func FuzzCheckStorageLimit_UnlimitedWhenNonPositive_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCheckStorageLimit_UnlimitedWhenNonPositive_Properties))
}

// =============================================================================
// Property: CheckStorageLimitForUpdate allows shrinking content
// =============================================================================

func testCheckStorageLimitForUpdate_ShrinkAlways_Properties(t *rapid.T) {
	oldContentSize := rapid.Int64Range(100, 10000).Draw(t, "oldContentSize")
	newContentSize := rapid.Int64Range(0, oldContentSize).Draw(t, "newContentSize")
	currentTotalSize := rapid.Int64Range(oldContentSize, DefaultStorageLimitBytes+10000).Draw(t, "currentTotalSize")

	err := CheckStorageLimitForUpdate(currentTotalSize, oldContentSize, newContentSize, DefaultStorageLimitBytes)
	if err != nil {
		t.Fatalf("shrinking content should always succeed: old=%d, new=%d, total=%d, err=%v",
			oldContentSize, newContentSize, currentTotalSize, err)
	}
}

func TestCheckStorageLimitForUpdate_ShrinkAlways_Properties(t *testing.T) {
	rapid.Check(t, testCheckStorageLimitForUpdate_ShrinkAlways_Properties)
}

func FuzzCheckStorageLimitForUpdate_ShrinkAlways_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCheckStorageLimitForUpdate_ShrinkAlways_Properties))
}

// =============================================================================
// Property: CheckStorageLimitForUpdate enforces limit for growing content
// =============================================================================

func testCheckStorageLimitForUpdate_GrowEnforced_Properties(t *rapid.T) {
	oldContentSize := rapid.Int64Range(0, 10000).Draw(t, "oldContentSize")
	growAmount := rapid.Int64Range(1, 10000).Draw(t, "growAmount")
	newContentSize := oldContentSize + growAmount
	currentTotalSize := rapid.Int64Range(oldContentSize, DefaultStorageLimitBytes+10000).Draw(t, "currentTotalSize")

	err := CheckStorageLimitForUpdate(currentTotalSize, oldContentSize, newContentSize, DefaultStorageLimitBytes)

	if currentTotalSize+growAmount > DefaultStorageLimitBytes {
		if !errs.Is(err, errs.ResourceExhausted) {
			t.Fatalf("expected resource_exhausted when growth exceeds limit, got %v", err)
		}
	} else if err != nil {
		t.Fatalf("expected no error when growth stays within limit, got: %v", err)
	}
}

func TestCheckStorageLimitForUpdate_GrowEnforced_Properties(t *testing.T) {
	rapid.Check(t, testCheckStorageLimitForUpdate_GrowEnforced_Properties)
}

func FuzzCheckStorageLimitForUpdate_GrowEnforced_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testCheckStorageLimitForUpdate_GrowEnforced_Properties))
}

// =============================================================================
// Property: NewStorageUsageInfo produces valid output
// =============================================================================

func testNewStorageUsageInfo_Properties(t *rapid.T) {
	limit := rapid.Int64Range(0, DefaultStorageLimitBytes).Draw(t, "limit")
	usedBytes := rapid.Int64Range(0, DefaultStorageLimitBytes*2).Draw(t, "usedBytes")

	info := NewStorageUsageInfo(usedBytes, limit)

	if info.UsedBytes != usedBytes {
		t.Fatalf("UsedBytes mismatch: expected %d, got %d", usedBytes, info.UsedBytes)
	}
	if info.LimitBytes != limit {
		t.Fatalf("LimitBytes mismatch: expected %d, got %d", limit, info.LimitBytes)
	}
	if info.Percentage < 0 || info.Percentage > 100 {
		t.Fatalf("Percentage out of range: %f", info.Percentage)
	}
	if limit > 0 && usedBytes >= limit && info.Percentage != 100 {
		t.Fatalf("usage at or over the limit should report 100%%, got %f", info.Percentage)
	}

	expectedMB := float64(usedBytes) / (1024 * 1024)
	diff := info.UsedMB - expectedMB
	if diff > 0.001 || diff < -0.001 {
		t.Fatalf("UsedMB mismatch: expected %f, got %f", expectedMB, info.UsedMB)
	}
}

func TestNewStorageUsageInfo_Properties(t *testing.T) {
	rapid.Check(t, testNewStorageUsageInfo_Properties)
}

func FuzzNewStorageUsageInfo_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testNewStorageUsageInfo_Properties))
}

func TestDefaultStorageLimitIs40MB(t *testing.T) {
	if DefaultStorageLimitBytes != 40*1024*1024 {
		t.Fatalf("DefaultStorageLimitBytes should be 40MB, got %d", DefaultStorageLimitBytes)
	}
	if DefaultQuota.EnforceOnUpdate {
		t.Fatal("default quota must only gate creation")
	}
}

// =============================================================================
// Property: Storage usage tracks content bytes of non-trashed notes
// =============================================================================

func testStorageUsageTracking_Properties(t *rapid.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultQuota)

	numNotes := rapid.IntRange(1, 5).Draw(t, "numNotes")
	var expectedSize int64
	var noteIDs []string

	for i := 0; i < numNotes; i++ {
		title := rapid.StringMatching(`[A-Za-z]{5,20}`).Draw(t, fmt.Sprintf("title%d", i))
		content := rapid.StringMatching(`[A-Za-z0-9 é日]{0,100}`).Draw(t, fmt.Sprintf("content%d", i))

		note, err := svc.Create(ctx, CreateNoteParams{Title: title, Content: content})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		expectedSize += int64(len(content))
		noteIDs = append(noteIDs, note.ID)
	}

	usage, err := svc.StorageUsage(ctx)
	if err != nil {
		t.Fatalf("StorageUsage failed: %v", err)
	}
	if usage.UsedBytes != expectedSize {
		t.Fatalf("storage usage mismatch: expected %d bytes, got %d", expectedSize, usage.UsedBytes)
	}

	// Trashed notes stop counting.
	idx := rapid.IntRange(0, len(noteIDs)-1).Draw(t, "trashIdx")
	trashed, err := svc.Trash(ctx, noteIDs[idx])
	if err != nil {
		t.Fatalf("Trash failed: %v", err)
	}
	expectedSize -= int64(len(trashed.Content))

	usage, err = svc.StorageUsage(ctx)
	if err != nil {
		t.Fatalf("StorageUsage after trash failed: %v", err)
	}
	if usage.UsedBytes != expectedSize {
		t.Fatalf("storage usage after trash mismatch: expected %d bytes, got %d", expectedSize, usage.UsedBytes)
	}
}

func TestStorageUsageTracking_Properties(t *testing.T) {
	rapid.Check(t, testStorageUsageTracking_Properties)
}

func FuzzStorageUsageTracking_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testStorageUsageTracking_Properties))
}

// =============================================================================
// Property: creation is gated, updates are not unless configured
// =============================================================================

func testQuota_GatesCreateOnly_Properties(t *rapid.T) {
	ctx := context.Background()
	limit := rapid.Int64Range(10, 200).Draw(t, "limit")
	svc := newTestService(t, Quota{LimitBytes: limit})

	first := strings.Repeat("a", int(limit))
	note, err := svc.Create(ctx, CreateNoteParams{Title: "full", Content: first})
	if err != nil {
		t.Fatalf("filling the quota exactly should succeed: %v", err)
	}

	_, err = svc.Create(ctx, CreateNoteParams{Title: "one more", Content: "x"})
	if !errs.Is(err, errs.ResourceExhausted) {
		t.Fatalf("create past the quota should be resource_exhausted, got %v", err)
	}

	// Empty content adds nothing.
	if _, err := svc.Create(ctx, CreateNoteParams{Title: "empty"}); err != nil {
		t.Fatalf("empty note at a full quota should succeed: %v", err)
	}

	grown := first + strings.Repeat("b", rapid.IntRange(1, 100).Draw(t, "grow"))
	if _, err := svc.Update(ctx, note.ID, UpdateNoteParams{Content: &grown}); err != nil {
		t.Fatalf("update is not quota-gated by default: %v", err)
	}
}

func TestQuota_GatesCreateOnly_Properties(t *testing.T) {
	rapid.Check(t, testQuota_GatesCreateOnly_Properties)
}

func FuzzQuota_GatesCreateOnly_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testQuota_GatesCreateOnly_Properties))
}

func TestQuota_EnforceOnUpdate(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Quota{LimitBytes: 10, EnforceOnUpdate: true})

	note, err := svc.Create(ctx, CreateNoteParams{Title: "t", Content: "12345"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	grown := "12345678901"
	if _, err := svc.Update(ctx, note.ID, UpdateNoteParams{Content: &grown}); !errs.Is(err, errs.ResourceExhausted) {
		t.Fatalf("growing past the quota should fail with resource_exhausted, got %v", err)
	}

	shrunk := "1"
	if _, err := svc.Update(ctx, note.ID, UpdateNoteParams{Content: &shrunk}); err != nil {
		t.Fatalf("shrinking should always succeed: %v", err)
	}
}
