package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	// FormatYAML outputs as YAML (default)
	FormatYAML OutputFormat = "yaml"
	// FormatJSON outputs as JSON
	FormatJSON OutputFormat = "json"
	// FormatTable outputs as a styled table
	FormatTable OutputFormat = "table"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatYAML, nil
	case FormatYAML, FormatJSON, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want yaml, json or table)", s)
	}
}

// OutputOptions configures output behavior
type OutputOptions struct {
	Format OutputFormat

	// File is the output file path (empty for stdout)
	File string

	// Indent is the indentation for JSON output
	Indent string

	// Writer overrides File
	Writer io.Writer

	// Styles for table output; zero means DefaultStyles.
	Styles *Styles

	// Query is a jq expression applied to the result before formatting.
	// Filtered results are printed as YAML in table mode.
	Query string
}

// Output writes the result to the configured destination
func Output(result any, opts OutputOptions) error {
	if opts.Query != "" {
		filtered, err := Query(opts.Query, result)
		if err != nil {
			return err
		}
		result = filtered
	}

	var w io.Writer = os.Stdout

	if opts.Writer != nil {
		w = opts.Writer
	} else if opts.File != "" {
		f, err := os.Create(opts.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch opts.Format {
	case FormatJSON:
		return outputJSON(w, result, opts.Indent)
	case FormatYAML, "":
		return outputYAML(w, result)
	case FormatTable:
		t, ok := result.(Tabular)
		if !ok {
			return outputYAML(w, result)
		}
		styles := DefaultStyles()
		if opts.Styles != nil {
			styles = *opts.Styles
		}
		_, err := fmt.Fprintln(w, RenderTable(styles, t))
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

func outputJSON(w io.Writer, result any, indent string) error {
	enc := json.NewEncoder(w)
	if indent == "" {
		indent = "  "
	}
	enc.SetIndent("", indent)
	return enc.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Print helpers for terminal output. They write to w so commands can
// route them through cobra's configured streams.

// PrintSuccess prints a success message with checkmark
func PrintSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "✓ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "ℹ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "⚠ "+format+"\n", args...)
}
