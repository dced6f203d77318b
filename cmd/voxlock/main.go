// Package main is the entry point for the voxlock CLI.
//
// Usage:
//
//	voxlock [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve      - Run the websocket relay for browser landmark feeds
//	replay     - Run recorded landmark files through the selector
//	convert    - Convert landmark recordings between JSON lines and msgpack
//	filter     - Show the filter each speaker maps to
//	presets    - List the scoring weight presets
//	schema     - Print the JSON Schema of relay client messages
//	trace      - Inspect, export and delete recorded sessions
//	config     - Show or initialize the configuration file
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voxlock/cmd/voxlock/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
