package cachedb

import (
	"context"
	"encoding/json"
	"net/url"
	"path"

	"github.com/a-h/kv"

	"github.com/a-h/nodepm/registry"
	"github.com/a-h/nodepm/resolve"
)

// Cache is the persistent resolver cache described in spec §4.J: a
// name -> RegistryResponse map and a DepReq -> resolution map, backed by
// one of the teacher's three kv.Store implementations. The resolver works
// identically with a nil *Cache; every method is a no-op read-miss in that
// case so callers never need a nil check of their own.
type Cache struct {
	store kv.Store
}

// Open opens the backing store named by dbType ("sqlite", "rqlite" or
// "postgres") at url and wraps it as a Cache.
func Open(ctx context.Context, dbType, url string) (c *Cache, closer func() error, err error) {
	store, closer, err := newBackend(ctx, dbType, url)
	if err != nil {
		return nil, nil, err
	}
	return &Cache{store: store}, closer, nil
}

func metadataKey(name string) string {
	return path.Join("/nodepm/metadata", urlEscape(name))
}

func resolutionKey(depReqKey string) string {
	return path.Join("/nodepm/resolution", urlEscape(depReqKey))
}

func urlEscape(s string) string {
	return url.PathEscape(s)
}

// GetMetadata returns a previously cached registry response for name, if
// any.
func (c *Cache) GetMetadata(ctx context.Context, name string) (resp registry.RegistryResponse, ok bool, err error) {
	if c == nil {
		return registry.RegistryResponse{}, false, nil
	}
	var rec cachedMetadata
	_, ok, err = c.store.Get(ctx, metadataKey(name), &rec)
	if err != nil || !ok {
		return registry.RegistryResponse{}, false, err
	}
	resp.Name = rec.Name
	resp.DistTags = rec.DistTags
	resp.VersionKeys = rec.VersionKeys
	resp.Versions = make(map[string]*registry.PackageMetadata, len(rec.Versions))
	for k, raw := range rec.Versions {
		var m registry.PackageMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return registry.RegistryResponse{}, false, err
		}
		resp.Versions[k] = &m
	}
	return resp, true, nil
}

// PutMetadata saves resp under name, replacing any prior entry.
func (c *Cache) PutMetadata(ctx context.Context, name string, resp registry.RegistryResponse) error {
	if c == nil {
		return nil
	}
	rec := cachedMetadata{
		Name:        resp.Name,
		DistTags:    resp.DistTags,
		VersionKeys: resp.VersionKeys,
		Versions:    make(map[string]json.RawMessage, len(resp.Versions)),
	}
	for k, m := range resp.Versions {
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		rec.Versions[k] = raw
	}
	return c.store.Put(ctx, metadataKey(name), -1, rec)
}

// cachedMetadata is the on-disk shape of a cached RegistryResponse: the
// per-version metadata is stored pre-marshaled so a-h/kv's own JSON codec
// doesn't need to round-trip registry.PackageMetadata's json.RawMessage
// Bin field through an extra layer of escaping.
type cachedMetadata struct {
	Name        string                     `json:"name"`
	DistTags    map[string]string          `json:"distTags"`
	VersionKeys []string                   `json:"versionKeys"`
	Versions    map[string]json.RawMessage `json:"versions"`
}

// cachedResolution is the on-disk shape of a cached DepReq resolution.
type cachedResolution struct {
	Version  string                   `json:"version"`
	Metadata *registry.PackageMetadata `json:"metadata"`
}

// GetResolution returns a previously cached (version, metadata) pair for
// req, if any.
func (c *Cache) GetResolution(ctx context.Context, req resolve.DepReq) (version string, metadata *registry.PackageMetadata, ok bool, err error) {
	if c == nil {
		return "", nil, false, nil
	}
	var rec cachedResolution
	_, ok, err = c.store.Get(ctx, resolutionKey(req.Key()), &rec)
	if err != nil || !ok {
		return "", nil, false, err
	}
	return rec.Version, rec.Metadata, true, nil
}

// PutResolution saves the resolution of req as version/metadata.
func (c *Cache) PutResolution(ctx context.Context, req resolve.DepReq, version string, metadata *registry.PackageMetadata) error {
	if c == nil {
		return nil
	}
	rec := cachedResolution{Version: version, Metadata: metadata}
	return c.store.Put(ctx, resolutionKey(req.Key()), -1, rec)
}
