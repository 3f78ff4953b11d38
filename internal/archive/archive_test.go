package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/pkg/types"
)

func writeWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "util.go"), []byte("package src\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("remember the milk\n"), 0o644))
	return dir
}

// readArchive decompresses and untars an archive into name -> content.
func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	entries := make(map[string]string)
	tr := tar.NewReader(zr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		if header.Typeflag == tar.TypeReg {
			content, err := io.ReadAll(tr)
			require.NoError(t, err)
			entries[header.Name] = string(content)
		} else {
			entries[header.Name] = ""
		}
	}
	return entries
}

func TestArchiveWorkingDirectory(t *testing.T) {
	workspace := writeWorkspace(t)
	archiveDir := t.TempDir()

	a := NewTarArchiver(archiveDir)
	meta := a.ArchiveWorkingDirectory(context.Background(), "sess-1", workspace)

	require.Equal(t, types.ArchiveOK, meta.Status, "reason: %s", meta.Reason)
	assert.Equal(t, "sess-1", meta.SessionID)
	assert.Equal(t, filepath.Join(archiveDir, "sess-1.tar.zst"), meta.Path)
	assert.Equal(t, 3, meta.FileCount)
	assert.Positive(t, meta.SizeBytes)
	assert.NotZero(t, meta.Created)

	info, err := os.Stat(meta.Path)
	require.NoError(t, err)
	assert.Equal(t, meta.SizeBytes, info.Size())

	entries := readArchive(t, meta.Path)
	assert.Equal(t, "package main\n", entries["main.go"])
	assert.Equal(t, "package src\n", entries["src/util.go"])
	assert.Contains(t, entries, "src")
}

func TestArchiveChecksum(t *testing.T) {
	a := NewTarArchiver(t.TempDir())
	meta := a.ArchiveWorkingDirectory(context.Background(), "sess-1", writeWorkspace(t))
	require.Equal(t, types.ArchiveOK, meta.Status)

	raw, err := os.ReadFile(meta.Path)
	require.NoError(t, err)
	sum := sha256.Sum256(raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), meta.Checksum)
}

func TestArchiveMissingSource(t *testing.T) {
	a := NewTarArchiver(t.TempDir())
	meta := a.ArchiveWorkingDirectory(context.Background(), "sess-1", "/nonexistent/workspace")

	assert.Equal(t, types.ArchiveFailed, meta.Status)
	assert.Contains(t, meta.Reason, "stat working directory")
	assert.Empty(t, meta.Path)
}

func TestArchiveSourceNotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	a := NewTarArchiver(t.TempDir())
	meta := a.ArchiveWorkingDirectory(context.Background(), "sess-1", file)

	assert.Equal(t, types.ArchiveFailed, meta.Status)
	assert.Contains(t, meta.Reason, "not a directory")
}

func TestArchiveOverwritesIdempotently(t *testing.T) {
	workspace := writeWorkspace(t)
	a := NewTarArchiver(t.TempDir())

	first := a.ArchiveWorkingDirectory(context.Background(), "sess-1", workspace)
	require.Equal(t, types.ArchiveOK, first.Status)

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "added.txt"), []byte("later\n"), 0o644))
	second := a.ArchiveWorkingDirectory(context.Background(), "sess-1", workspace)
	require.Equal(t, types.ArchiveOK, second.Status)

	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, 4, second.FileCount)

	entries := readArchive(t, second.Path)
	assert.Contains(t, entries, "added.txt")
}

func TestArchiveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewTarArchiver(t.TempDir())
	meta := a.ArchiveWorkingDirectory(ctx, "sess-1", writeWorkspace(t))

	assert.Equal(t, types.ArchiveFailed, meta.Status)
	assert.Contains(t, meta.Reason, "context canceled")
}

func TestArchiveSkipsTempOnFailure(t *testing.T) {
	archiveDir := t.TempDir()
	a := NewTarArchiver(archiveDir)
	a.ArchiveWorkingDirectory(context.Background(), "sess-1", "/nonexistent/workspace")

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed archival leaves no partial files")
}
