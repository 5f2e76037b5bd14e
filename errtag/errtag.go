// Package errtag defines the fixed error taxonomy the core must be able to
// distinguish (spec §7). Every sentinel here is meant to be wrapped with
// fmt.Errorf("...: %w", ...) at the point of failure and unwrapped with
// errors.Is/errors.As by callers.
package errtag

import "errors"

var (
	// ErrUnsatisfiableVersion: no version in the registry matches a request.
	ErrUnsatisfiableVersion = errors.New("no version satisfies the requested range")
	// ErrMissingTag: a tag specifier names an absent dist-tag or version.
	ErrMissingTag = errors.New("tag not found in dist-tags")
	// ErrUnsupportedPlatform: a required (non-optional) dependency rejects
	// the current OS/arch.
	ErrUnsupportedPlatform = errors.New("package does not support this platform")
	// ErrLockfileStale: in --immutable mode, a required request is absent
	// from the graph.
	ErrLockfileStale = errors.New("lockfile is stale: drop --immutable to re-resolve")
	// ErrPathEscape: the scoped-path join rejected a tar entry or nested
	// path that attempted to leave its root.
	ErrPathEscape = errors.New("path escapes its root")
	// ErrInstallScriptFailed: a preinstall/install/postinstall script
	// exited non-zero.
	ErrInstallScriptFailed = errors.New("install script exited non-zero")
	// ErrUnknownSpecifierPrefix: a specifier can't be interpreted: an "npm:"
	// alias with no @version, or a specifier kind the resolver has no rule
	// for.
	ErrUnknownSpecifierPrefix = errors.New("unknown version specifier prefix")
)
