// Package globals holds the flags every nodepm subcommand shares,
// mirroring cmd/globals.Globals from the teacher (inferred from its
// consumers' `globals.Verbose` checks; the teacher's own globals.go
// wasn't part of the retrieved pack).
package globals

// Globals carries spec §6's global flags, threaded into every subcommand's
// Run method by kong.
type Globals struct {
	Verbose    bool   `help:"Enable verbose (debug) logging" short:"v"`
	Immutable  bool   `help:"Forbid writing the lockfile; fail instead if it would change"`
	WorkingDir string `help:"Directory containing package.json" default:"." type:"path"`
	Config     string `help:"Path to the registry/config TOML file" default:""`
}
