// Package main is the entry point for the trac-hub CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/aerostitch/trac-hub/cmd"
	"github.com/aerostitch/trac-hub/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("migration failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
