package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

// multiCallArgs returns the arguments for root.Execute. When the binary was
// invoked through a link named after a subcommand, that subcommand is
// prepended so "switch-root" behaves like "nixos-init switch-root".
func multiCallArgs(root *cobra.Command, argv []string) []string {
	if len(argv) == 0 {
		return nil
	}
	name := filepath.Base(argv[0])
	args := argv[1:]
	if name == root.Name() {
		return args
	}
	for _, sub := range root.Commands() {
		if sub.Name() == name {
			return append([]string{name}, args...)
		}
	}
	return args
}
