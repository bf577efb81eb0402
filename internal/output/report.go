package output

import (
	"io"

	"github.com/fatih/color"
)

// Report is a titled sequence of tables. Its CSV form is the first table.
type Report struct {
	Title  string   `json:"title,omitempty"`
	Tables []*Table `json:"-"`
	Data   any      `json:"data,omitempty"`
}

func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	parts := make([]any, len(r.Tables))
	for i, t := range r.Tables {
		parts[i] = t.RenderData()
	}
	return map[string]any{
		"title":  r.Title,
		"tables": parts,
	}
}

func (r *Report) RenderText(w io.Writer, colored bool) error {
	if r.Title != "" {
		heading(w, r.Title, colored, color.Bold, color.FgCyan)
	}
	for _, t := range r.Tables {
		if err := t.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) RenderMarkdown(w io.Writer) error {
	if r.Title != "" {
		if _, err := io.WriteString(w, "# "+r.Title+"\n\n"); err != nil {
			return err
		}
	}
	for _, t := range r.Tables {
		if err := t.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}

func (r *Report) RenderCSV(w io.Writer) error {
	if len(r.Tables) == 0 {
		return ErrNotTabular
	}
	return r.Tables[0].RenderCSV(w)
}
