package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/larder/pkg/larder"
)

const modulePath = "github.com/mesh-intelligence/larder"

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the larder version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out(cmd), "larder v%s\nmodule: %s\n", larder.Version, modulePath)
			return nil
		},
	}
}
