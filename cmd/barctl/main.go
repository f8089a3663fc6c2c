// Command barctl drives the status bar control API.
package main

import (
	"os"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	if err := NewRootCmd(Version).Execute(); err != nil {
		os.Exit(1)
	}
}
