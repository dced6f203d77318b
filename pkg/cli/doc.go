// Package cli provides output helpers shared by the voxlock commands.
//
// Results are written as YAML (the default), JSON, or a styled table:
//
//	cli.Output(sessions, cli.OutputOptions{
//	    Format: cli.FormatTable,
//	    File:   outputPath,
//	})
//
// Values rendered as tables implement Tabular; anything else falls back
// to YAML.
package cli
