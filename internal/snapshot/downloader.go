// Package snapshot keeps local copies of the remote telemetry file.
//
// Each retrieved revision is archived as pv_<token>.csv and then published to
// a single "latest" file. Both writes go through a temporary file in the same
// directory followed by a rename, so readers see either the old or the new
// content in full. Archived files are written once and never modified or
// removed here.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
	"github.com/tejusbharadwaj/pvwatch/internal/remote"
)

// ErrNoSnapshot is returned by Latest before the first successful download.
var ErrNoSnapshot = errors.New("no snapshot available")

var unsafeToken = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Downloader retrieves the remote file and stores it locally.
type Downloader struct {
	src        remote.Source
	archiveDir string
	latestPath string
	now        func() time.Time
}

func NewDownloader(src remote.Source, archiveDir, latestPath string) *Downloader {
	return &Downloader{
		src:        src,
		archiveDir: archiveDir,
		latestPath: latestPath,
		now:        time.Now,
	}
}

// Download fetches the remote file and commits it under token.
func (d *Downloader) Download(ctx context.Context, token models.ChangeToken) (models.Snapshot, error) {
	data, err := d.Fetch(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	return d.Commit(token, data)
}

// Fetch retrieves the remote file into memory without touching local state.
func (d *Downloader) Fetch(ctx context.Context) ([]byte, error) {
	data, err := d.src.Download(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrUnreachable) || errors.Is(err, remote.ErrDownloadFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", remote.ErrDownloadFailed, err)
	}
	return data, nil
}

// Commit archives data under token and then replaces the latest file. An
// archive that already exists for token is left as it is.
func (d *Downloader) Commit(token models.ChangeToken, data []byte) (models.Snapshot, error) {
	if err := os.MkdirAll(d.archiveDir, 0o755); err != nil {
		return models.Snapshot{}, fmt.Errorf("create archive dir: %w", err)
	}

	archive := d.ArchivePath(token)
	if _, err := os.Stat(archive); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(archive, data); err != nil {
			return models.Snapshot{}, fmt.Errorf("archive snapshot: %w", err)
		}
	} else if err != nil {
		return models.Snapshot{}, fmt.Errorf("archive snapshot: %w", err)
	}

	if dir := filepath.Dir(d.latestPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.Snapshot{}, fmt.Errorf("create latest dir: %w", err)
		}
	}
	if err := writeAtomic(d.latestPath, data); err != nil {
		return models.Snapshot{}, fmt.Errorf("publish latest snapshot: %w", err)
	}

	return models.Snapshot{
		Token:       token,
		Path:        d.latestPath,
		ArchivePath: archive,
		Data:        data,
		RetrievedAt: d.now().UTC(),
	}, nil
}

// ArchivePath returns the archive file name used for token.
func (d *Downloader) ArchivePath(token models.ChangeToken) string {
	name := unsafeToken.ReplaceAllString(string(token), "_")
	return filepath.Join(d.archiveDir, "pv_"+name+".csv")
}

// Latest returns the content of the latest snapshot.
func (d *Downloader) Latest() ([]byte, error) {
	data, err := os.ReadFile(d.latestPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read latest snapshot: %w", err)
	}
	return data, nil
}

func writeAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
