// Package main is the entry point for the s4 SQL gateway.
package main

import (
	"fmt"
	"os"

	"s4/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
