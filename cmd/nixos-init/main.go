package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCommand()
	root.SetArgs(multiCallArgs(root, os.Args))
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nixos-init: %v\n", err)
		os.Exit(1)
	}
}
