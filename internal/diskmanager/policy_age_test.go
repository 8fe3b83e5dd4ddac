package diskmanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/conf"
)

var testNow = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

// writeCapture creates root/rel with the given age
func writeCapture(t *testing.T, root, rel string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0o644))
	ts := testNow.Add(-age)
	require.NoError(t, os.Chtimes(path, ts, ts))
	return path
}

func TestListCaptures(t *testing.T) {
	root := t.TempDir()
	writeCapture(t, root, "tenant_1/ana/ana_2026-03-01_08-00-00.jpg", time.Hour)
	writeCapture(t, root, "tenant_2/bob/bob_2026-03-01_08-00-00.JPG", time.Hour)
	writeCapture(t, root, "tenant_1/ana/notes.txt", time.Hour)

	files, err := ListCaptures(root)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byTenant := map[string]CaptureFile{}
	for _, f := range files {
		byTenant[f.Tenant] = f
	}
	assert.Equal(t, "ana", byTenant["tenant_1"].Label)
	assert.Equal(t, "bob", byTenant["tenant_2"].Label)
	assert.Equal(t, int64(4), byTenant["tenant_1"].Size)
}

func TestListCapturesMissingRoot(t *testing.T) {
	files, err := ListCaptures(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestAgeBasedCleanup(t *testing.T) {
	root := t.TempDir()
	day := 24 * time.Hour

	expired := writeCapture(t, root, "tenant_1/ana/ana_old.jpg", 40*day)
	alone := writeCapture(t, root, "tenant_1/carl/carl_old.jpg", 31*day)
	fresh := writeCapture(t, root, "tenant_1/ana/ana_new.jpg", 2*day)
	other := writeCapture(t, root, "tenant_1/ana/readme.txt", 90*day)

	result, err := AgeBasedCleanup(context.Background(), root, 30, testNow)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 2, result.Deleted)
	assert.Equal(t, int64(8), result.BytesFreed)
	assert.False(t, result.LimitReached)

	assert.NoFileExists(t, expired)
	assert.NoFileExists(t, alone)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)

	// carl's directory is empty now, ana's still holds files
	assert.Equal(t, 1, result.DirsRemoved)
	assert.NoDirExists(t, filepath.Join(root, "tenant_1", "carl"))
	assert.DirExists(t, filepath.Join(root, "tenant_1", "ana"))
	assert.DirExists(t, root)
}

func TestAgeBasedCleanupPrunesTenantDir(t *testing.T) {
	root := t.TempDir()
	writeCapture(t, root, "tenant_9/zed/zed.jpg", 100*24*time.Hour)

	result, err := AgeBasedCleanup(context.Background(), root, 7, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 2, result.DirsRemoved)
	assert.NoDirExists(t, filepath.Join(root, "tenant_9"))
	assert.DirExists(t, root)
}

func TestAgeBasedCleanupDisabled(t *testing.T) {
	root := t.TempDir()
	old := writeCapture(t, root, "tenant_1/ana/ana.jpg", 1000*24*time.Hour)

	result, err := AgeBasedCleanup(context.Background(), root, 0, testNow)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	assert.FileExists(t, old)
}

func TestAgeBasedCleanupCancelled(t *testing.T) {
	root := t.TempDir()
	old := writeCapture(t, root, "tenant_1/ana/ana.jpg", 100*24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := AgeBasedCleanup(ctx, root, 1, testNow)
	require.NoError(t, err)
	assert.Zero(t, result.Deleted)
	assert.FileExists(t, old)
}

func TestRetentionRunNow(t *testing.T) {
	root := t.TempDir()
	old := writeCapture(t, root, "tenant_1/ana/ana.jpg", 10*24*time.Hour)

	settings := &conf.Settings{}
	settings.Main.Timezone = "UTC"
	settings.Captures.Root = root
	settings.Captures.RetentionDays = 5

	r, err := NewRetention(settings)
	require.NoError(t, err)
	defer r.Stop()
	r.now = func() time.Time { return testNow }

	result, err := r.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, result, r.Last())
	assert.NoFileExists(t, old)
}

func TestNewRetentionRejectsBadTime(t *testing.T) {
	settings := &conf.Settings{}
	settings.Captures.Root = t.TempDir()
	settings.Captures.CleanupAt = "25:99"

	_, err := NewRetention(settings)
	require.Error(t, err)
}

func TestDiskSpaceInfoUsedPercent(t *testing.T) {
	assert.InDelta(t, 25.0, DiskSpaceInfo{TotalBytes: 400, UsedBytes: 100}.UsedPercent(), 0.001)
	assert.Zero(t, DiskSpaceInfo{}.UsedPercent())
}
