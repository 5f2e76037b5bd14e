// Package config implements the side-channel configuration file described
// in spec §4.D: the registry list, per-registry auth, the
// allow_install_scripts flag, and the store backend selection (§4.G's
// fs/S3 choice), read from a strict TOML document that rejects unknown
// fields.
//
// Grounded on auth/config.go's LoadAuthConfig shape (a file path argument,
// "no file configured" treated as an empty/default config, not an error)
// with the teacher's bespoke line format swapped for BurntSushi/toml's
// strict decoder, since spec.md calls for "structured text" with schema
// validation rather than depot's own SSH-authorized-keys format.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/a-h/nodepm/registry"
)

// Config is the decoded side-channel configuration file.
type Config struct {
	Registries          []RegistryConfig `toml:"registries"`
	AllowInstallScripts bool             `toml:"allow_install_scripts"`

	// StoreType selects the tarball cache backend: "fs" (default) or "s3",
	// for teams that want a shared cache across machines (spec §4.G).
	StoreType string    `toml:"store_type"`
	S3        *S3Config `toml:"s3"`
}

// S3Config is the [s3] table consulted when store_type = "s3".
type S3Config struct {
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	ForcePathStyle  bool   `toml:"force_path_style"`
}

// RegistryConfig is one [[registries]] table entry.
type RegistryConfig struct {
	URL   string      `toml:"url"`
	Scope string      `toml:"scope"`
	Auth  *AuthConfig `toml:"auth"`
}

// AuthConfig is a registry's [registries.auth] table: exactly one of
// Bearer or Basic should be set.
type AuthConfig struct {
	Bearer *TokenAuthConfig `toml:"bearer"`
	Basic  *BasicAuthConfig `toml:"basic"`
}

// TokenAuthConfig is a bearer secret, inline or sourced from env.
type TokenAuthConfig struct {
	Secret string `toml:"secret"`
	EnvVar string `toml:"env_var"`
}

// BasicAuthConfig is a username plus an optional password secret.
type BasicAuthConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	EnvVar   string `toml:"env_var"`
}

// Load reads and strictly decodes path. An empty path returns the zero
// Config (no registries configured, install scripts disallowed), matching
// auth/config.go's "no file configured" convention.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if _, err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Registries projects the decoded configuration into the registry
// package's Registry list, resolving each auth variant.
func (c *Config) Registries() []registry.Registry {
	out := make([]registry.Registry, 0, len(c.Registries))
	for _, r := range c.Registries {
		reg := registry.Registry{URL: r.URL, Scope: r.Scope}
		if r.Auth != nil {
			reg.Auth = &registry.Auth{}
			if r.Auth.Bearer != nil {
				reg.Auth.Bearer = &registry.TokenAuth{
					Secret: registry.Secret{Inline: r.Auth.Bearer.Secret, EnvVar: r.Auth.Bearer.EnvVar},
				}
			}
			if r.Auth.Basic != nil {
				pwd := registry.Secret{Inline: r.Auth.Basic.Password, EnvVar: r.Auth.Basic.EnvVar}
				reg.Auth.Basic = &registry.BasicAuth{Username: r.Auth.Basic.Username, Password: &pwd}
			}
		}
		out = append(out, reg)
	}
	return out
}
