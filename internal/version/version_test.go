package version

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})
	Version, Commit, Date = version, commit, date
}

func TestInfoBanner(t *testing.T) {
	stamp(t, "1.2.3", "abc123456789def", "2026-02-01")

	want := fmt.Sprintf("smith 1.2.3 (abc12345, built 2026-02-01, %s/%s)",
		runtime.GOOS, runtime.GOARCH)
	assert.Equal(t, want, Info())
}

func TestInfoKeepsShortCommitWhole(t *testing.T) {
	stamp(t, "dev", "abc", "unknown")
	assert.Contains(t, Info(), "(abc,")
}

func TestUnstampedDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "none", Commit)
	assert.Equal(t, "unknown", Date)
}
