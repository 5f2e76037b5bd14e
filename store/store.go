// Package store implements the content-addressed package store and
// downloader described in spec §4.G: every resolved package is extracted
// once into <root>/<name>@<version>/, guarded by a "_complete" sentinel
// file and an in-process memoization layer so concurrent installs of the
// same dependency extract exactly once (Testable Property 9).
//
// Grounded on npm/download/download.go's downloadTarball (streaming copy,
// concurrency-bounded client) generalized from "write one file to disk" to
// "extract a tarball's tree". There is no temp-path-then-rename step:
// storage.Storage has no rename primitive, so extraction writes straight
// into the final entry directory and the sentinel (whose contents are a
// fresh google/uuid string) is written last.
package store

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/a-h/nodepm/memo"
	"github.com/a-h/nodepm/pathsafe"
	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/storage"
)

// completeSentinel is written last, once a package's tarball has been
// fully extracted, so a crash mid-extraction never looks like a complete
// entry to a later run.
const completeSentinel = "_complete"

// Store is the content-addressed tarball store: each PinnedDependency
// extracts to its own "<name>@<version>" directory under Storage.
type Store struct {
	log     *slog.Logger
	backend storage.Storage
	client  *registry.Client
	extract *memo.Cache[string, struct{}]
}

var _ resolve.Downloader = (*Store)(nil)

// New creates a Store persisting extracted packages to backend and
// fetching tarballs through client.
func New(log *slog.Logger, backend storage.Storage, client *registry.Client) *Store {
	return &Store{
		log:     log,
		backend: backend,
		client:  client,
		extract: memo.New[string, struct{}](),
	}
}

// Download fetches dep's tarball and extracts it into the store, unless an
// entry with a "_complete" sentinel already exists. Concurrent calls for
// the identical PinnedDependency extract exactly once (Testable
// Property 9): the memo.Cache dedupes in-process callers, and the sentinel
// check dedupes across separate process runs sharing one store root.
func (s *Store) Download(ctx context.Context, dep resolve.PinnedDependency) error {
	_, err := s.extract.Get(dep.Key(), func() (struct{}, error) {
		return struct{}{}, s.downloadOnce(ctx, dep)
	})
	return err
}

func (s *Store) downloadOnce(ctx context.Context, dep resolve.PinnedDependency) error {
	entryDir := dep.Key()
	sentinelPath := filepath.Join(entryDir, completeSentinel)

	if _, exists, err := s.backend.Stat(ctx, sentinelPath); err != nil {
		return fmt.Errorf("checking store entry %s: %w", entryDir, err)
	} else if exists {
		s.log.Debug("store entry already complete, skipping download", slog.String("package", dep.Key()))
		return nil
	}

	s.log.Info("downloading package", slog.String("package", dep.Key()), slog.String("url", dep.TarballURL))
	body, err := s.client.FetchTarball(ctx, dep.TarballURL)
	if err != nil {
		return fmt.Errorf("fetching tarball for %s: %w", dep.Key(), err)
	}
	defer body.Close()

	if err := s.extractTarball(ctx, body, entryDir); err != nil {
		return fmt.Errorf("extracting tarball for %s: %w", dep.Key(), err)
	}

	w, err := s.backend.Put(ctx, sentinelPath)
	if err != nil {
		return fmt.Errorf("writing completion sentinel for %s: %w", dep.Key(), err)
	}
	if _, err := w.Write([]byte(uuid.NewString())); err != nil {
		w.Close()
		return fmt.Errorf("writing completion sentinel for %s: %w", dep.Key(), err)
	}
	return w.Close()
}

// extractTarball streams a gzip+tar reader entry-by-entry into entryDir,
// scoping every member path through pathsafe.Join so a malicious tarball
// entry (a "../" component, or a symlink constructed to point outside the
// tree) can never write outside the store root (spec §4.I, Scenario 6).
// Every extracted file's path is stripped of its npm-convention "package/"
// top-level component.
func (s *Store) extractTarball(ctx context.Context, r io.Reader, entryDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		name = strings.TrimPrefix(name, "package/")
		if name == "" {
			continue
		}

		destPath, err := scopedEntryPath(entryDir, name)
		if err != nil {
			return fmt.Errorf("scoping tar entry %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
			w, err := s.backend.Put(ctx, destPath)
			if err != nil {
				return fmt.Errorf("opening %s for write: %w", destPath, err)
			}
			if _, err := io.Copy(w, tr); err != nil {
				w.Close()
				return fmt.Errorf("writing %s: %w", destPath, err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", destPath, err)
			}
		default:
			// Symlinks, hardlinks, devices and anything else in a package
			// tarball are silently skipped: spec §4.H materializes
			// regular files and directories only.
			continue
		}
	}
}

// scopedEntryPath combines entryDir with a tar entry's (untrusted) name,
// guaranteeing the result is a storage-relative descendant of entryDir
// even if name contains ".." components or would otherwise escape it.
//
// pathsafe.Join itself is built for a real, already-existing filesystem
// root (it calls os.Readlink to expand symlinks), so it always returns an
// absolute path rooted at entryDir resolved against the process's working
// directory. That absolute form isn't what storage.Storage.Put wants
// (a storage-relative filename, since the backend may be S3 rather than
// local disk) — so this computes the safe join, then re-expresses the
// result relative to entryDir and re-attaches it to the original
// (possibly already storage-relative) entryDir string.
func scopedEntryPath(entryDir, name string) (string, error) {
	absRoot, err := filepath.Abs(entryDir)
	if err != nil {
		return "", fmt.Errorf("resolving entry directory %q: %w", entryDir, err)
	}
	absJoined, err := pathsafe.Join(entryDir, name)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absJoined)
	if err != nil {
		return "", fmt.Errorf("relativizing %q against %q: %w", absJoined, absRoot, err)
	}
	return filepath.Join(entryDir, rel), nil
}

// PackageDir returns the store-relative directory a pinned dependency
// extracts to, for use by the installer when hardlinking into
// node_modules.
func PackageDir(dep resolve.PinnedDependency) string {
	return dep.Key()
}

// IsComplete reports whether dep has a "_complete" sentinel in backend.
func IsComplete(ctx context.Context, backend storage.Storage, dep resolve.PinnedDependency) (bool, error) {
	_, exists, err := backend.Stat(ctx, filepath.Join(dep.Key(), completeSentinel))
	return exists, err
}
