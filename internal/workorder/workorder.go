// Package workorder loads the list of projects to mine: a JSON or YAML
// mapping from Jira project key to repository URL.
package workorder

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "workorder.schema.json"

// ErrEmpty is returned for a work order without projects.
var ErrEmpty = errors.New("work order lists no projects")

// Project is one entry of a work order.
type Project struct {
	Name       string `json:"name"` // Jira project key, upper-cased
	Repository string `json:"repository"`
}

// WorkOrder is the ordered list of projects to mine.
type WorkOrder struct {
	Projects []Project `json:"projects"`
}

// Single builds a one-project work order.
func Single(name, repository string) *WorkOrder {
	return &WorkOrder{Projects: []Project{{Name: strings.ToUpper(name), Repository: repository}}}
}

// Names returns the project keys in order.
func (w *WorkOrder) Names() []string {
	names := make([]string, len(w.Projects))
	for i, p := range w.Projects {
		names[i] = p.Name
	}
	return names
}

// Load reads and parses the work order at path.
func Load(path string) (*WorkOrder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read work order: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes a JSON or YAML work order, validates it against the
// embedded schema and keeps the projects in document order. Keys are
// upper-cased; a key repeated after upper-casing is an error.
func Parse(data []byte) (*WorkOrder, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode work order: %w", err)
	}

	var value any
	if err := doc.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode work order: %w", err)
	}
	if err := validate(value); err != nil {
		return nil, err
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	w := &WorkOrder{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := strings.ToUpper(root.Content[i].Value)
		if seen[name] {
			return nil, fmt.Errorf("duplicate project %s", name)
		}
		seen[name] = true
		w.Projects = append(w.Projects, Project{Name: name, Repository: root.Content[i+1].Value})
	}
	if len(w.Projects) == 0 {
		return nil, ErrEmpty
	}
	return w, nil
}

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// validate round-trips value through encoding/json so YAML scalars reach
// the validator with JSON types.
func validate(value any) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile work order schema: %w", err)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("work order is not a JSON-compatible mapping: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if err := s.Validate(inst); err != nil {
		return fmt.Errorf("invalid work order: %w", err)
	}
	return nil
}
