package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/a-h/nodepm/cmd/globals"
)

// RunCmd ensures the project is installed, then executes a declared
// package.json script with PATH augmented by node_modules/.bin (spec §6
// "run").
type RunCmd struct {
	Name string   `arg:"" help:"Script name to run"`
	Args []string `arg:"" optional:"" help:"Arguments passed through to the script"`
}

func (cmd *RunCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.ensureInstalled(ctx); err != nil {
		return err
	}

	cmdline, ok := s.manifest.Scripts.Get(cmd.Name)
	if !ok {
		return fmt.Errorf("script %q is not declared in package.json", cmd.Name)
	}

	return s.runWithAugmentedPath(ctx, "sh", append([]string{"-c", cmdline, "--"}, cmd.Args...))
}

// ExecCmd ensures the project is installed, then execs an arbitrary
// command with PATH augmented by node_modules/.bin (spec §6 "exec").
type ExecCmd struct {
	Command string   `arg:"" help:"Command to execute"`
	Args    []string `arg:"" optional:"" help:"Arguments passed to the command"`
}

func (cmd *ExecCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.ensureInstalled(ctx); err != nil {
		return err
	}

	return s.runWithAugmentedPath(ctx, cmd.Command, cmd.Args)
}

// ensureInstalled runs the same build-plan-then-install pipeline InstallCmd
// does; install skips the hardlink walk for each package whose
// installed marker already records the planned version.
func (s *session) ensureInstalled(ctx context.Context) error {
	p, err := s.buildPlan(ctx)
	if err != nil {
		return err
	}
	return s.install(ctx, p)
}

// runWithAugmentedPath execs name with args, cwd at the project root, PATH
// prefixed with node_modules/.bin, stdio connected through, and the
// child's exit code forwarded on failure (spec §6's "child process exits
// are forwarded"). Grounded on install.Installer.runScript's
// exec.CommandContext/PATH-prefix idiom, generalized from a captured-stderr
// lifecycle script run to an interactive foreground process.
func (s *session) runWithAugmentedPath(ctx context.Context, name string, args []string) error {
	binDir := filepath.Join(s.nodeModules, ".bin")
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = s.workingDir
	c.Env = append(os.Environ(), "PATH="+binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	err := c.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}
