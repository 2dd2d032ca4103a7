// Package main is the entry point for the mediacrawl CLI.
package main

import (
	"os"

	"github.com/jmylchreest/mediacrawl/cmd/mediacrawl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
