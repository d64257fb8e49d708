package notes

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// SnapshotThreshold is the change percentage above which an edit is
	// snapshotted.
	SnapshotThreshold = 20.0

	// MaxVersions is how many snapshots a note keeps. Oldest go first.
	MaxVersions = 20
)

// ChangePercentage is the share of characters inserted or deleted between
// old and new, relative to the longer of the two, in [0, 100].
func ChangePercentage(old, new string) float64 {
	longer := utf8.RuneCountInString(old)
	if n := utf8.RuneCountInString(new); n > longer {
		longer = n
	}
	if longer == 0 || old == new {
		return 0
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)

	changed := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			changed += utf8.RuneCountInString(d.Text)
		}
	}
	pct := float64(changed) / float64(longer) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ShouldSnapshot decides whether an update to newContent stores a version.
// last is nil when the note has no versions yet.
func ShouldSnapshot(last *string, newContent string) bool {
	if last == nil {
		return true
	}
	return ChangePercentage(*last, newContent) > SnapshotThreshold
}
