package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/a-h/nodepm/cmd/globals"
)

// CleanCmd deletes the store and node_modules (spec §6 "clean").
type CleanCmd struct{}

func (cmd *CleanCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	s, err := openSession(ctx, g)
	if err != nil {
		return err
	}
	defer s.close()

	for _, dir := range []string{s.storeRoot, s.nodeModules} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
		s.log.Info("removed", slog.String("path", dir))
	}
	return nil
}
