// Package main provides the entry point for agentd.
package main

import (
	"fmt"
	"os"

	"github.com/agentmesh/runtime/cmd/agentd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
