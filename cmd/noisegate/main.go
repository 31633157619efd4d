// Package main is the entry point for the noisegate CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/noisegate/cmd/noisegate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
