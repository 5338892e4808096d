// Package main is the entry point for the voicesplit service.
package main

import (
	"os"

	"github.com/iammeizu/voicesplit/cmd/voicesplit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
