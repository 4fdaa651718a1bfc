// Package main provides the entry point for the syntheo CLI.
package main

import (
	"os"

	"github.com/syntheo/semantics/cmd/syntheo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
