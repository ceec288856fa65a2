// Package main is the entry point for the tankrank CLI.
package main

import (
	"os"

	"github.com/blitz-labs/tankrank/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
