// Package archive captures session working directories as zstd-compressed
// tar archives. Failures are reported in the returned metadata rather than
// as errors, so callers can archive best-effort and move on.
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/pkg/types"
)

// Archiver captures one session's working directory. Implementations are
// idempotent: re-archiving a session overwrites its previous archive.
type Archiver interface {
	ArchiveWorkingDirectory(ctx context.Context, sessionID, path string) *types.ArchiveMetadata
}

// TarArchiver writes <dir>/<sessionID>.tar.zst atomically via a temp file
// and rename.
type TarArchiver struct {
	dir string
	log zerolog.Logger
}

var _ Archiver = (*TarArchiver)(nil)

// NewTarArchiver creates an archiver writing into dir.
func NewTarArchiver(dir string) *TarArchiver {
	return &TarArchiver{
		dir: dir,
		log: logging.Component("archive"),
	}
}

// ArchiveWorkingDirectory archives the directory at path. The returned
// metadata carries either the archive location, size, file count and
// checksum, or a failed status with the reason.
func (a *TarArchiver) ArchiveWorkingDirectory(ctx context.Context, sessionID, path string) *types.ArchiveMetadata {
	meta := &types.ArchiveMetadata{
		SessionID: sessionID,
		Status:    types.ArchiveFailed,
		Created:   time.Now().UnixMilli(),
	}

	fail := func(msg string, err error) *types.ArchiveMetadata {
		meta.Reason = fmt.Sprintf("%s: %v", msg, err)
		a.log.Warn().Err(err).
			Str("sessionID", sessionID).
			Str("path", path).
			Msg("archival failed")
		return meta
	}

	info, err := os.Stat(path)
	if err != nil {
		return fail("stat working directory", err)
	}
	if !info.IsDir() {
		return fail("archive source", fmt.Errorf("%s is not a directory", path))
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fail("create archive directory", err)
	}

	tmp, err := os.CreateTemp(a.dir, sessionID+"-*.tmp")
	if err != nil {
		return fail("create temp file", err)
	}
	defer os.Remove(tmp.Name())

	fileCount, err := a.writeArchive(ctx, tmp, path)
	if err != nil {
		tmp.Close()
		return fail("write archive", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close temp file", err)
	}

	checksum, size, err := hashFile(tmp.Name())
	if err != nil {
		return fail("checksum archive", err)
	}

	dest := filepath.Join(a.dir, sessionID+".tar.zst")
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fail("move archive into place", err)
	}

	meta.Status = types.ArchiveOK
	meta.Path = dest
	meta.SizeBytes = size
	meta.FileCount = fileCount
	meta.Checksum = checksum

	a.log.Info().
		Str("sessionID", sessionID).
		Str("archive", dest).
		Int("files", fileCount).
		Int64("bytes", size).
		Msg("working directory archived")
	return meta
}

// writeArchive streams path into w as zstd-compressed tar and returns the
// number of regular files archived.
func (a *TarArchiver) writeArchive(ctx context.Context, w io.Writer, path string) (int, error) {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(zw)

	fileCount := 0
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			// Sockets, devices and the like have no place in an archive.
			return nil
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return err
			}
			fileCount++
		}
		return nil
	})
	if err != nil {
		tw.Close()
		zw.Close()
		return 0, err
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return 0, err
	}
	return fileCount, zw.Close()
}

// hashFile returns the hex SHA-256 and size of the file at path.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}
