package resolve

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/a-h/nodepm/errtag"
	"github.com/a-h/nodepm/memo"
	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/specifier"
)

// Downloader is the subset of the store package's behaviour the resolver
// needs for best-effort background downloads while resolving (spec §4.E
// step 3). Accepting an interface here instead of a concrete *store.Store
// keeps resolve free of a dependency on store, which itself depends on
// resolve's PinnedDependency type.
type Downloader interface {
	Download(ctx context.Context, dep PinnedDependency) error
}

// PersistentMetadataCache is the subset of cachedb.Cache's behaviour the
// resolver needs for its optional persisted layer (spec §4.J): a
// name -> RegistryResponse cache that survives process restarts. Declared
// here as an interface rather than importing cachedb directly, since
// cachedb itself depends on resolve.DepReq for its resolution-level
// cache — importing it back from resolve would cycle.
type PersistentMetadataCache interface {
	GetMetadata(ctx context.Context, name string) (registry.RegistryResponse, bool, error)
	PutMetadata(ctx context.Context, name string, resp registry.RegistryResponse) error
}

// Resolver builds a Graph's transitive closure from root requests, per
// spec §4.E.
type Resolver struct {
	log        *slog.Logger
	client     *registry.Client
	metaCache  *memo.Cache[string, *registry.RegistryResponse]
	persistent PersistentMetadataCache
	metrics    ResolveMetrics
	downloader Downloader
	os, cpu    string
}

// ResolveMetrics is the subset of metrics.Metrics the resolver records
// against. Declared as an interface for the same reason as
// PersistentMetadataCache: metrics has no dependency on resolve, but
// keeping the dependency direction explicit documents the choice.
type ResolveMetrics interface {
	IncrementResolveRequest(ctx context.Context, name string)
	IncrementResolveCacheHit(ctx context.Context, name string)
}

// Option configures a Resolver.
type ResolverOption func(*Resolver)

// WithDownloader attaches a store so that Append can fire best-effort
// background downloads as packages are pinned.
func WithDownloader(d Downloader) ResolverOption {
	return func(r *Resolver) { r.downloader = d }
}

// WithPersistentMetadataCache attaches the optional persisted cache
// consulted before every registry metadata fetch.
func WithPersistentMetadataCache(c PersistentMetadataCache) ResolverOption {
	return func(r *Resolver) { r.persistent = c }
}

// WithMetrics attaches the counters incremented on each registry fetch and
// each cache hit.
func WithMetrics(m ResolveMetrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// WithPlatform overrides the platform used for os/cpu constraint checks
// (defaults to runtime.GOOS/runtime.GOARCH).
func WithPlatform(os, cpu string) ResolverOption {
	return func(r *Resolver) { r.os, r.cpu = os, cpu }
}

// NewResolver creates a Resolver backed by client, sharing one metadata
// memoization cache across every resolution it performs (spec §4.A: the
// cache's point is "one registry hit per package name, however many
// requests reference it").
func NewResolver(log *slog.Logger, client *registry.Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		log:       log,
		client:    client,
		metaCache: memo.New[string, *registry.RegistryResponse](),
		os:        runtime.GOOS,
		cpu:       mapGoarch(runtime.GOARCH),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// mapGoarch translates Go's GOARCH names to the npm os/cpu token vocabulary
// where they differ (the one case that matters in practice is amd64/x64).
func mapGoarch(goarch string) string {
	if goarch == "amd64" {
		return "x64"
	}
	return goarch
}

// Append extends graph with the transitive closure of roots, fetching
// metadata through the registry client and writing one Entry per resolved
// DepReq. When download is true, a best-effort background download is
// queued for every platform-supported package as soon as it is pinned.
func (r *Resolver) Append(ctx context.Context, graph *Graph, roots []DepReq, download bool) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, root := range roots {
		root := root
		if graph.Has(root.Key()) || !graph.Claim(root.Key()) {
			continue
		}
		g.Go(func() error {
			return r.resolveOne(ctx, g, graph, root, download)
		})
	}
	return g.Wait()
}

// resolveOne resolves a single DepReq, writes its Entry, and recurses into
// its children through g (spec §4.E steps 3-4).
func (r *Resolver) resolveOne(ctx context.Context, g *errgroup.Group, graph *Graph, req DepReq, download bool) error {
	entry, err := r.resolve(ctx, req)
	if err == nil && !entry.Metadata.SupportsPlatform(r.os, r.cpu) {
		err = fmt.Errorf("%w: %s@%s", errtag.ErrUnsupportedPlatform, entry.Metadata.Name, entry.Version.Original())
	}
	if err != nil {
		if req.Optional {
			r.log.Debug("optional dependency skipped", slog.String("request", req.Key()), slog.String("error", err.Error()))
			return nil
		}
		return fmt.Errorf("resolving %s: %w", req.Key(), err)
	}
	graph.Put(req.Key(), entry)

	if download && r.downloader != nil && entry.Metadata.SupportsPlatform(r.os, r.cpu) {
		pinned, err := toPinnedDependency(entry)
		if err == nil {
			go func() {
				if derr := r.downloader.Download(context.WithoutCancel(ctx), pinned); derr != nil {
					r.log.Warn("background download failed", slog.String("package", pinned.Key()), slog.String("error", derr.Error()))
				}
			}()
		}
	}

	for _, child := range childRequests(entry) {
		child := child
		if graph.Has(child.Key()) || !graph.Claim(child.Key()) {
			continue
		}
		g.Go(func() error {
			return r.resolveOne(ctx, g, graph, child, download)
		})
	}
	return nil
}

// resolve performs the specifier-kind-specific resolution described in
// spec §4.E "Specifier-specific resolution".
func (r *Resolver) resolve(ctx context.Context, req DepReq) (Entry, error) {
	switch req.Specifier.Kind {
	case specifier.KindRange, specifier.KindTag:
		return r.resolveFromRegistry(ctx, req)
	case specifier.KindDirectURL:
		return r.resolveDirectURL(ctx, req)
	case specifier.KindAliased:
		return r.resolveAliased(ctx, req)
	default:
		return Entry{}, fmt.Errorf("%w: %v", errtag.ErrUnknownSpecifierPrefix, req.Specifier.Kind)
	}
}

func (r *Resolver) resolveFromRegistry(ctx context.Context, req DepReq) (Entry, error) {
	resp, err := r.metaCache.Get(req.Name, func() (*registry.RegistryResponse, error) {
		if r.persistent != nil {
			if cached, ok, perr := r.persistent.GetMetadata(ctx, req.Name); perr == nil && ok {
				if r.metrics != nil {
					r.metrics.IncrementResolveCacheHit(ctx, req.Name)
				}
				return &cached, nil
			}
		}
		if r.metrics != nil {
			r.metrics.IncrementResolveRequest(ctx, req.Name)
		}
		resp, err := r.client.FetchMetadata(ctx, req.Name)
		if err != nil {
			return nil, err
		}
		if r.persistent != nil {
			_ = r.persistent.PutMetadata(ctx, req.Name, *resp)
		}
		return resp, nil
	})
	if err != nil {
		return Entry{}, err
	}

	var version *semver.Version
	switch req.Specifier.Kind {
	case specifier.KindTag:
		tagged, ok := resp.DistTags[req.Specifier.Tag]
		if !ok {
			return Entry{}, fmt.Errorf("%w: %q on %s", errtag.ErrMissingTag, req.Specifier.Tag, req.Name)
		}
		v, err := semver.NewVersion(tagged)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing tagged version %q for %s: %w", tagged, req.Name, err)
		}
		if _, ok := resp.Versions[tagged]; !ok {
			return Entry{}, fmt.Errorf("%w: tag %q points at %s which is absent from versions", errtag.ErrMissingTag, req.Specifier.Tag, tagged)
		}
		version = v
	default:
		candidates := make([]*semver.Version, 0, len(resp.VersionKeys))
		for _, k := range resp.VersionKeys {
			v, err := semver.NewVersion(k)
			if err != nil {
				continue
			}
			candidates = append(candidates, v)
		}
		picked, ok := specifier.PickGreatest(req.Specifier.Range, candidates)
		if !ok {
			return Entry{}, fmt.Errorf("%w: %s%s", errtag.ErrUnsatisfiableVersion, req.Name, req.Specifier.String())
		}
		version = picked
	}

	meta, ok := resp.Versions[version.Original()]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s@%s missing from versions map", errtag.ErrUnsatisfiableVersion, req.Name, version.Original())
	}
	return Entry{Request: req, Version: version, Metadata: meta}, nil
}

// resolveDirectURL streams just enough of the tarball to read
// package/package.json, per spec §4.E.
func (r *Resolver) resolveDirectURL(ctx context.Context, req DepReq) (Entry, error) {
	body, err := r.client.FetchTarball(ctx, req.Specifier.URL)
	if err != nil {
		return Entry{}, fmt.Errorf("fetching direct-URL tarball for %s: %w", req.Name, err)
	}
	defer body.Close()

	meta, err := readPackageJSONFromTarball(body)
	if err != nil {
		return Entry{}, fmt.Errorf("reading package.json from direct-URL tarball for %s: %w", req.Name, err)
	}
	meta.Dist.Tarball = req.Specifier.URL

	version, err := semver.NewVersion(meta.Version)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing version %q declared by direct-URL package.json for %s: %w", meta.Version, req.Name, err)
	}
	return Entry{Request: req, Version: version, Metadata: meta}, nil
}

// readPackageJSONFromTarball stream-decompresses a gzip+tar reader just
// far enough to find and decode the package/package.json entry, without
// buffering the whole tarball.
func readPackageJSONFromTarball(r io.Reader) (*registry.PackageMetadata, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("package/package.json not found in tarball")
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar entry: %w", err)
		}
		if strings.TrimPrefix(hdr.Name, "./") != "package/package.json" {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, fmt.Errorf("reading package.json entry: %w", err)
		}
		var meta registry.PackageMetadata
		if err := json.Unmarshal(buf.Bytes(), &meta); err != nil {
			return nil, fmt.Errorf("decoding package.json: %w", err)
		}
		return &meta, nil
	}
}

// resolveAliased resolves an "npm:real-name@range" request: recursively
// resolve the inner specifier against the real registry name, then rewrite
// the local name back to the outer alias (spec §4.E).
func (r *Resolver) resolveAliased(ctx context.Context, req DepReq) (Entry, error) {
	inner := DepReq{
		Name:      req.Specifier.AliasName,
		Specifier: *req.Specifier.Inner,
		Optional:  req.Optional,
	}
	entry, err := r.resolve(ctx, inner)
	if err != nil {
		return Entry{}, err
	}
	rewritten := *entry.Metadata
	rewritten.Name = req.Name
	entry.Metadata = &rewritten
	entry.Request = req
	return entry, nil
}

// toPinnedDependency projects a resolved Entry into the stable,
// store-addressable identity the downloader and installer consume.
func toPinnedDependency(e Entry) (PinnedDependency, error) {
	return NewPinnedDependency(e.Version, e.Metadata)
}

// NewPinnedDependency projects a resolved version and its metadata into the
// stable, store-addressable identity the downloader and installer consume.
// Exported so install (which walks Plan.Trees, not Graph entries) can build
// the identical PinnedDependency the resolver used while downloading.
func NewPinnedDependency(version *semver.Version, meta *registry.PackageMetadata) (PinnedDependency, error) {
	bins, err := meta.Bins()
	if err != nil {
		return PinnedDependency{}, err
	}
	order := make([]string, 0, len(meta.Scripts))
	for name := range meta.Scripts {
		order = append(order, name)
	}
	return PinnedDependency{
		Name:        meta.Name,
		Version:     version.Original(),
		TarballURL:  meta.Dist.Tarball,
		Bins:        bins,
		ScriptOrder: order,
		Scripts:     meta.Scripts,
	}, nil
}

// newChildDepReq builds a DepReq for a dependency/optionalDependency map
// entry found on resolved metadata.
func newChildDepReq(name, rawSpecifier string, optional bool) (DepReq, error) {
	spec, err := specifier.Parse(rawSpecifier)
	if err != nil {
		return DepReq{}, err
	}
	return DepReq{Name: name, Specifier: spec, Optional: optional}, nil
}
