// Command recipecheck lints Dockerfiles. It exits 1 when any recipe has an error finding
// and 2 when the arguments or files cannot be used.
package main

import (
	"flag"
	"fmt"
	"os"

	"fateweaver/internal/tools/recipecheck"
)

func main() {
	cfg, err := recipecheck.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "recipecheck: %v\n", err)
		os.Exit(2)
	}
	ok, err := recipecheck.Run(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recipecheck: %v\n", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}
