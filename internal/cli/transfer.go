package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func (a *app) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Load <table>.jsonl files into the local database",
		Long: `Import reads one JSONL file per table from dir and inserts the rows.
Rows whose id already exists are skipped. Only the sqlite and postgres
backends support import.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				counts, err := l.Import(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printCounts(a.out(cmd), "imported", counts)
			})
		},
	}
}

func (a *app) newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write every table to <table>.jsonl files",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLarder(cmd, func(ctx context.Context, l *larder.Larder) error {
				counts, err := l.Export(ctx, args[0])
				if err != nil {
					return err
				}
				return a.printCounts(a.out(cmd), "exported", counts)
			})
		},
	}
}

func (a *app) printCounts(w io.Writer, verb string, counts map[string]int) error {
	if a.jsonMode {
		return printJSON(w, counts)
	}
	for _, name := range types.StandardTableNames {
		fmt.Fprintf(w, "%s %d %s\n", verb, counts[name], name)
	}
	return nil
}
