// Package specifier implements the version-specifier sum type: Range, Tag,
// DirectURL and Aliased, plus the shared "pick a concrete version" rule
// used by the resolver.
package specifier

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/a-h/nodepm/errtag"
)

// Kind discriminates the specifier variants.
type Kind int

const (
	KindRange Kind = iota
	KindTag
	KindDirectURL
	KindAliased
)

// Specifier is the sum type described in spec §3. Exactly one of the
// fields relevant to Kind is populated.
type Specifier struct {
	Kind Kind

	// KindRange.
	Range *semver.Constraints
	raw   string // original textual form, used for Equal/String

	// KindTag.
	Tag string

	// KindDirectURL.
	URL string

	// KindAliased: "npm:inner" where Inner is the specifier of `inner`.
	AliasName string
	Inner     *Specifier
}

// Parse interprets a raw version-specifier string the way a package.json
// dependency value would be interpreted.
func Parse(raw string) (Specifier, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "npm:") {
		rest := strings.TrimPrefix(raw, "npm:")
		idx := strings.LastIndex(rest, "@")
		if idx <= 0 {
			return Specifier{}, fmt.Errorf("%w: %q has no @version in alias", errtag.ErrUnknownSpecifierPrefix, raw)
		}
		aliasName := rest[:idx]
		innerRaw := rest[idx+1:]
		inner, err := Parse(innerRaw)
		if err != nil {
			return Specifier{}, fmt.Errorf("parsing aliased inner specifier %q: %w", innerRaw, err)
		}
		return Specifier{Kind: KindAliased, AliasName: aliasName, Inner: &inner, raw: raw}, nil
	}

	if strings.HasPrefix(raw, "https://") {
		return Specifier{Kind: KindDirectURL, URL: raw, raw: raw}, nil
	}

	if c, err := semver.NewConstraint(raw); err == nil {
		return Specifier{Kind: KindRange, Range: c, raw: raw}, nil
	}

	// Anything else that isn't a parseable range is treated as a tag
	// ("latest", "next", a custom dist-tag, ...).
	return Specifier{Kind: KindTag, Tag: raw, raw: raw}, nil
}

// String returns the textual round-trip form used as part of a DepReq key.
func (s Specifier) String() string {
	return s.raw
}

// Satisfies reports whether the given concrete version satisfies this
// specifier. For Tag and DirectURL, it is always true: the resolver is
// expected to have produced version only from a tag lookup or a URL's own
// package.json, so by the time Satisfies is called the version is already
// pinned by construction.
func (s Specifier) Satisfies(version *semver.Version) bool {
	switch s.Kind {
	case KindRange:
		return s.Range.Check(version)
	case KindTag, KindDirectURL:
		return true
	case KindAliased:
		return s.Inner.Satisfies(version)
	default:
		return false
	}
}

// PickGreatest partitions candidates into stable and pre-release matches of
// the range and returns the greatest stable version, or the greatest
// pre-release if no stable version matches (spec §4.C).
func PickGreatest(rng *semver.Constraints, candidates []*semver.Version) (*semver.Version, bool) {
	var stable, prerelease *semver.Version
	for _, v := range candidates {
		if !rng.Check(v) {
			continue
		}
		if v.Prerelease() == "" {
			if stable == nil || v.GreaterThan(stable) {
				stable = v
			}
			continue
		}
		if prerelease == nil || v.GreaterThan(prerelease) {
			prerelease = v
		}
	}
	if stable != nil {
		return stable, true
	}
	if prerelease != nil {
		return prerelease, true
	}
	return nil, false
}
