// cmd/hhmm/main.go
//
// This is the entry point for the hhmm CLI. Every subcommand works against a
// project directory (--project, HHMM_PROJECT or the working directory) whose
// models/ folder holds the hierarchical HMM definitions.
//
// Exit codes: 0 ok, 1 a definition failed to build, 2 usage or I/O error.

package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
