// Package output renders command results as text tables, markdown, CSV,
// JSON or TOON.
package output

import (
	"path/filepath"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatTOON     Format = "toon"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "toon":
		return FormatTOON
	case "markdown", "md":
		return FormatMarkdown
	case "csv":
		return FormatCSV
	default:
		return FormatText
	}
}

// FormatForPath infers the format from a file extension, returning false
// for unknown extensions.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".toon":
		return FormatTOON, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".csv":
		return FormatCSV, true
	case ".txt":
		return FormatText, true
	default:
		return "", false
	}
}
