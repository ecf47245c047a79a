// Package main provides the entry point for the treewatch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/treewatch/cmd/treewatch/cmd"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}
