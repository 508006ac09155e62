package pressure

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/container-tools/cgpress/pkg/units"
)

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestIOEngine_ZeroSize_PerformsNoWrites(t *testing.T) {
	dir := t.TempDir()
	logger := &recordingLogger{}
	engine := NewIOEngine(IOConfig{SizeBytes: 0, Dir: dir}, logger)

	engine.Run(context.Background())

	assert.Empty(t, dirEntries(t, dir))
	assert.True(t, logger.contains("skipped"))
}

func TestIOEngine_WritesExactByteCount(t *testing.T) {
	dir := t.TempDir()
	size := 5 * units.MiB
	engine := NewIOEngine(IOConfig{SizeBytes: size, Dir: dir}, &recordingLogger{})

	path, err := engine.writeFile(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size())

	engine.removeFile(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestIOEngine_PartialChunkSize(t *testing.T) {
	dir := t.TempDir()
	size := 2*units.MiB + 512*units.KiB
	engine := NewIOEngine(IOConfig{SizeBytes: size, Dir: dir}, &recordingLogger{})

	path, err := engine.writeFile(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size())
	engine.removeFile(path)
}

func TestIOEngine_RunRemovesFileAfterwards(t *testing.T) {
	dir := t.TempDir()
	logger := &recordingLogger{}
	engine := NewIOEngine(IOConfig{SizeBytes: units.MiB, Dir: dir}, logger)

	engine.Run(context.Background())

	assert.Empty(t, dirEntries(t, dir))
	assert.True(t, logger.contains("done"))
	assert.True(t, logger.contains("temp file removed"))
}

func TestIOEngine_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "scratch")
	engine := NewIOEngine(IOConfig{SizeBytes: units.KiB, Dir: dir}, &recordingLogger{})

	engine.Run(context.Background())

	assert.Empty(t, dirEntries(t, dir))
}

func TestIOEngine_CancelledWrite_StillCleansUp(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger := &recordingLogger{}
	engine := NewIOEngine(IOConfig{SizeBytes: 16 * units.MiB, Dir: dir}, logger)

	engine.Run(ctx)

	assert.Empty(t, dirEntries(t, dir), "partial file must be removed")
	assert.True(t, logger.contains("cancelled"))
}

func TestIOEngine_UnwritableDirectory_AbortsPhaseOnly(t *testing.T) {
	// A regular file where the directory should be makes MkdirAll fail.
	base := t.TempDir()
	obstruction := filepath.Join(base, "not-a-dir")
	require.NoError(t, os.WriteFile(obstruction, []byte("x"), 0o644))

	logger := &recordingLogger{}
	engine := NewIOEngine(IOConfig{SizeBytes: units.KiB, Dir: obstruction}, logger)

	engine.Run(context.Background())

	assert.True(t, logger.contains("io"), "expected an io error record, got %v", logger.records)
}
