// pgtop is a live terminal monitor of PostgreSQL backend sessions across
// a primary and its streaming replicas.
package main

import (
	"fmt"
	"os"
)

// Version info set via ldflags at build time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-01-01"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pgtop: %v\n", err)
		os.Exit(1)
	}
}
