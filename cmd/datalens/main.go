// Package main is the entry point for the datalens CLI.
package main

import (
	"os"

	"github.com/datalens-labs/datalens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
