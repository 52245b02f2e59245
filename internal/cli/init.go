package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/larder"
)

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize larder storage",
		Long:  "Create the configuration and data directories, then open the backend once so its schema is in place.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return sysError{fmt.Errorf("create data directory: %w", err)}
			}
			err = a.withLarder(cmd, func(context.Context, *larder.Larder) error { return nil })
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out(cmd), "larder initialized (backend %s, config %s, data %s)\n", cfg.Backend, a.configDir, cfg.DataDir)
			return nil
		},
	}
}
