// Package main provides the entry point for the recidx CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/recidx/cmd/recidx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
