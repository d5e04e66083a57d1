// Package main is the entrypoint for the jobtrack CLI.
package main

import (
	"os"

	"github.com/kiranshivaraju/jobtracker/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
