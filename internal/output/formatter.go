package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	toon "github.com/toon-format/toon-go"
)

// ErrNotTabular is returned when CSV output is requested for data that has
// no tabular form.
var ErrNotTabular = errors.New("output has no tabular form for csv")

// Renderable defines data that can render itself in multiple formats.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	// RenderData returns the underlying data for JSON serialization.
	RenderData() any
}

// Tabular is a Renderable that can also be written as CSV.
type Tabular interface {
	RenderCSV(w io.Writer) error
}

// Formatter writes results to stdout or a file in one format.
type Formatter struct {
	format  Format
	writer  io.Writer
	file    *os.File
	path    string
	colored bool
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithFormat sets the format. An empty format keeps the default, or the one
// inferred from the output file.
func WithFormat(f Format) Option {
	return func(fm *Formatter) {
		if f != "" {
			fm.format = f
		}
	}
}

// WithFile writes to path instead of stdout. Color is disabled.
func WithFile(path string) Option {
	return func(fm *Formatter) {
		fm.path = path
	}
}

// WithWriter writes to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(fm *Formatter) {
		fm.writer = w
	}
}

// WithColor enables or disables ANSI colors in text output.
func WithColor(enabled bool) Option {
	return func(fm *Formatter) {
		fm.colored = enabled
	}
}

// New creates a formatter. When writing to a file with no explicit format,
// the format follows the file extension.
func New(opts ...Option) (*Formatter, error) {
	f := &Formatter{writer: os.Stdout}
	explicit := false
	for _, opt := range opts {
		opt(f)
	}
	if f.format != "" {
		explicit = true
	} else {
		f.format = FormatText
	}

	if f.path != "" {
		if !explicit {
			if inferred, ok := FormatForPath(f.path); ok {
				f.format = inferred
			}
		}
		file, err := os.Create(f.path)
		if err != nil {
			return nil, err
		}
		f.writer = file
		f.file = file
		f.colored = false
	}
	return f, nil
}

// Close closes the formatter's writer if it's a file.
func (f *Formatter) Close() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Format returns the configured format.
func (f *Formatter) Format() Format {
	return f.format
}

// Colored returns whether colored output is enabled.
func (f *Formatter) Colored() bool {
	return f.colored
}

// Output writes data in the configured format.
func (f *Formatter) Output(data any) error {
	if r, ok := data.(Renderable); ok {
		return f.render(r)
	}
	return f.outputRaw(data)
}

func (f *Formatter) render(r Renderable) error {
	switch f.format {
	case FormatJSON:
		return f.outputJSON(r.RenderData())
	case FormatTOON:
		return f.outputTOON(r.RenderData())
	case FormatMarkdown:
		return r.RenderMarkdown(f.writer)
	case FormatCSV:
		t, ok := r.(Tabular)
		if !ok {
			return ErrNotTabular
		}
		return t.RenderCSV(f.writer)
	default:
		return r.RenderText(f.writer, f.colored)
	}
}

func (f *Formatter) outputRaw(data any) error {
	switch f.format {
	case FormatTOON:
		return f.outputTOON(data)
	case FormatCSV:
		return ErrNotTabular
	case FormatMarkdown:
		fmt.Fprintln(f.writer, "```json")
		if err := f.outputJSON(data); err != nil {
			return err
		}
		fmt.Fprintln(f.writer, "```")
		return nil
	default:
		return f.outputJSON(data)
	}
}

func (f *Formatter) outputJSON(data any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func (f *Formatter) outputTOON(data any) error {
	out, err := toon.Marshal(data, toon.WithIndent(2))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.writer, string(out))
	return err
}

// Success prints a status line after text output on stdout. Nothing is
// printed for structured formats or file output.
func (f *Formatter) Success(format string, args ...any) {
	f.status(color.FgGreen, format, args...)
}

// Warning is Success in yellow.
func (f *Formatter) Warning(format string, args ...any) {
	f.status(color.FgYellow, "WARNING: "+format, args...)
}

func (f *Formatter) status(c color.Attribute, format string, args ...any) {
	if f.format != FormatText || f.file != nil {
		return
	}
	if f.colored {
		color.New(c).Fprintf(f.writer, format+"\n", args...)
		return
	}
	fmt.Fprintf(f.writer, format+"\n", args...)
}
