// Package pathsafe implements the scoped-path join primitive (spec §4.I):
// a chroot-style path join that expands symlinks relative to a declared
// root, so untrusted input (tar entry names, nested install paths) can
// never resolve outside that root.
//
// Ported in spirit, not translated, from original_source/src/scoped_path.rs
// (itself adapted from the Rust `safe-path` crate / Go's
// filepath-securejoin), using the teacher's error-wrapping idiom
// (fmt.Errorf("...: %w", err)) rather than the Rust source's io.Error.
package pathsafe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/nodepm/errtag"
)

// maxSymlinkDepth bounds the number of symlink expansions a single Join may
// perform, following the same budget as filepath-securejoin.
const maxSymlinkDepth = 255

// Join safely composes root and untrusted, guaranteeing the result is a
// descendant of root even if untrusted contains ".." components or
// symlinks that would otherwise escape it. root must already exist and be
// an absolute (or at least resolvable) directory.
func Join(root, untrusted string) (string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving root %q: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	var nlinks int
	subpath := ""
	remaining := splitComponents(untrusted)

	for len(remaining) > 0 {
		comp := remaining[0]
		remaining = remaining[1:]

		switch comp {
		case ".", "":
			continue
		case "..":
			subpath = popComponent(subpath)
			continue
		}

		candidate := filepath.Join(root, subpath, comp)
		target, err := os.Readlink(candidate)
		if err != nil {
			// Not a symlink (or doesn't exist yet): accept the component
			// as a normal path segment.
			subpath = filepath.Join(subpath, comp)
			continue
		}

		nlinks++
		if nlinks > maxSymlinkDepth {
			return "", fmt.Errorf("%w: too many levels of symlinks resolving %q under %q", errtag.ErrPathEscape, untrusted, root)
		}

		if filepath.IsAbs(target) {
			// Restart traversal from root with the link target as the new
			// input path: subpath built up so far is discarded, matching
			// original_source/src/scoped_path.rs's absolute-target restart
			// ("curr_path = v.join(iter.as_path()); continue 'restart").
			remaining = append(splitComponents(target), remaining...)
			subpath = ""
		} else {
			remaining = append(append(splitComponents(subpath), splitComponents(target)...), remaining...)
			subpath = ""
		}
	}

	return filepath.Join(root, subpath), nil
}

// splitComponents splits a path into its non-empty, non-separator
// components, independent of platform separator conventions (tar entries
// always use "/").
func splitComponents(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// popComponent removes the last component of subpath, or is a no-op if
// subpath is already empty — this is precisely what prevents ".." from
// ever escaping root.
func popComponent(subpath string) string {
	if subpath == "" {
		return subpath
	}
	dir := filepath.Dir(subpath)
	if dir == "." {
		return ""
	}
	return dir
}
