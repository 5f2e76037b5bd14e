// Package main implements nodepm's thin CLI front-end: spec §6's command
// surface wired onto the core packages (config, registry, resolve, plan,
// store, install, why). Argument parsing follows cmd/depot/main.go's
// kong.Parse/ctx.Run(&cli.Globals) shape, with subcommands split the way
// npm/cmd.NPMCmd and python/cmd.PythonCmd group theirs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/a-h/nodepm/cachedb"
	"github.com/a-h/nodepm/cmd/globals"
	"github.com/a-h/nodepm/config"
	"github.com/a-h/nodepm/manifest"
	"github.com/a-h/nodepm/metrics"
	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/resolve"
	"github.com/a-h/nodepm/storage"
	"github.com/a-h/nodepm/store"
)

const (
	manifestFileName  = "package.json"
	lockfileFileName  = "nodepm-lock.json"
	defaultStoreDir   = ".nodepm-store"
	defaultDbFileName = "nodepm-cache.db"
)

// session bundles everything most subcommands need, built once from the
// shared globals so each Run method stays a short pipeline of core calls.
type session struct {
	log        *slog.Logger
	globals    *globals.Globals
	cfg        *config.Config
	manifest   *manifest.Manifest
	client     *registry.Client
	resolver   *resolve.Resolver
	store      *store.Store
	metrics    metrics.Metrics
	cache      *cachedb.Cache
	closeCache func() error

	workingDir   string
	lockfilePath string
	storeRoot    string
	nodeModules  string
}

func newLogger(g *globals.Globals) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if g.Verbose {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// openSession reads the manifest and config, wires a registry client and
// resolver (with the optional persisted metadata cache attached), and
// resolves every filesystem path subcommands need relative to
// globals.WorkingDir.
func openSession(ctx context.Context, g *globals.Globals) (*session, error) {
	log := newLogger(g)

	workingDir, err := filepath.Abs(g.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("resolving working directory %q: %w", g.WorkingDir, err)
	}

	manifestData, err := os.ReadFile(filepath.Join(workingDir, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", manifestFileName, err)
	}
	m, err := manifest.Parse(manifestData)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", manifestFileName, err)
	}

	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	mtr, err := metrics.New()
	if err != nil {
		log.Debug("metrics disabled", slog.String("error", err.Error()))
		mtr = metrics.Metrics{}
	}

	var cache *cachedb.Cache
	closeCache := func() error { return nil }
	dbPath := filepath.Join(workingDir, defaultStoreDir, defaultDbFileName)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err == nil {
		dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_busy_timeout=5000&_txlock=immediate&_journal_mode=DELETE", dbPath)
		c, closer, err := cachedb.Open(ctx, "sqlite", dsn)
		if err != nil {
			log.Debug("persistent resolver cache disabled", slog.String("error", err.Error()))
		} else {
			cache, closeCache = c, closer
		}
	}

	client := registry.New(log, registry.WithRegistries(cfg.Registries()))

	storeRoot := filepath.Join(workingDir, defaultStoreDir)
	backend, err := newStorageBackend(ctx, cfg, storeRoot)
	if err != nil {
		return nil, fmt.Errorf("configuring store backend: %w", err)
	}
	st := store.New(log, storage.NewMetered(backend, mtr), client)

	resolverOpts := []resolve.ResolverOption{resolve.WithMetrics(mtr), resolve.WithDownloader(st)}
	if cache != nil {
		resolverOpts = append(resolverOpts, resolve.WithPersistentMetadataCache(cache))
	}
	resolver := resolve.NewResolver(log, client, resolverOpts...)

	return &session{
		log:          log,
		globals:      g,
		cfg:          cfg,
		manifest:     m,
		client:       client,
		resolver:     resolver,
		store:        st,
		metrics:      mtr,
		cache:        cache,
		closeCache:   closeCache,
		workingDir:   workingDir,
		lockfilePath: filepath.Join(workingDir, lockfileFileName),
		storeRoot:    storeRoot,
		nodeModules:  filepath.Join(workingDir, "node_modules"),
	}, nil
}

// newStorageBackend selects the tarball cache backend per cfg.StoreType
// (spec §4.G): local disk by default, or S3 for a cache shared across
// machines. storeRoot is only used by the fs backend.
func newStorageBackend(ctx context.Context, cfg *config.Config, storeRoot string) (storage.Storage, error) {
	switch cfg.StoreType {
	case "", "fs":
		return storage.NewFileSystem(storeRoot), nil
	case "s3":
		if cfg.S3 == nil || cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("store_type = \"s3\" requires an [s3] table with a bucket")
		}
		return storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown store_type %q: expected \"fs\" or \"s3\"", cfg.StoreType)
	}
}

func (s *session) close() {
	if err := s.closeCache(); err != nil {
		s.log.Debug("closing persistent cache", slog.String("error", err.Error()))
	}
}
