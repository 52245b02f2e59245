// Command larder manages the restaurant console's data from the terminal.
package main

import (
	"os"

	"github.com/mesh-intelligence/larder/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
