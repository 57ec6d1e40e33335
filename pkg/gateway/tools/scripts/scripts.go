// Package scripts is the script catalog accessor: staged conversational
// activities stored as JSON documents, read fresh on every lookup.
package scripts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("script not found")

// Stage is one step of a scripted activity.
type Stage struct {
	Name      string   `json:"name"`
	Prompt    string   `json:"prompt"`
	Questions []string `json:"questions,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// Descriptor is the full definition of one scripted activity. The bridge
// treats it as immutable reference data.
type Descriptor struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Stages              []Stage  `json:"stages"`
	OutputFormat        string   `json:"output_format,omitempty"`
	InteractiveElements []string `json:"interactive_elements,omitempty"`
}

type Catalog struct {
	dir string
}

// NewCatalog opens a script directory, seeding the stock scripts when their
// files are absent.
func NewCatalog(dir string) (*Catalog, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("scripts dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scripts dir: %w", err)
	}
	c := &Catalog{dir: dir}
	if err := c.seedDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid script name %q", name)
	}
	return filepath.Join(c.dir, name+".json"), nil
}

// Get reads a descriptor by name.
func (c *Catalog) Get(name string) (Descriptor, error) {
	path, err := c.path(name)
	if err != nil {
		return Descriptor{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return Descriptor{}, fmt.Errorf("read script %q: %w", name, err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode script %q: %w", name, err)
	}
	return d, nil
}

// List returns script name -> description for every script on disk.
func (c *Catalog) List() (map[string]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		d, err := c.Get(name)
		if err != nil {
			continue
		}
		out[name] = d.Description
	}
	return out, nil
}

// Names returns all script names in sorted order.
func (c *Catalog) Names() ([]string, error) {
	listed, err := c.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(listed))
	for name := range listed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Guidance renders a descriptor's stages into the plain-text block handed to
// the model. It is rebuilt on every call; descriptors may change between
// lookups and the text must always reflect the current one.
func Guidance(d Descriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Script: %s\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
	}
	for i, stage := range d.Stages {
		fmt.Fprintf(&b, "\nStage %d: %s\n", i+1, stage.Name)
		if stage.Prompt != "" {
			fmt.Fprintf(&b, "  Prompt: %s\n", stage.Prompt)
		}
		if len(stage.Questions) > 0 {
			fmt.Fprintf(&b, "  Questions: %s\n", strings.Join(stage.Questions, "; "))
		}
		if len(stage.Actions) > 0 {
			fmt.Fprintf(&b, "  Actions: %s\n", strings.Join(stage.Actions, ", "))
		}
	}
	if d.OutputFormat != "" {
		fmt.Fprintf(&b, "\nOutput format: %s\n", d.OutputFormat)
	}
	if len(d.InteractiveElements) > 0 {
		fmt.Fprintf(&b, "Interactive elements: %s\n", strings.Join(d.InteractiveElements, ", "))
	}
	return b.String()
}

func (c *Catalog) seedDefaults() error {
	for name, d := range defaultScripts {
		path, err := c.path(name)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return fmt.Errorf("encode default script %q: %w", name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("seed script %q: %w", name, err)
		}
	}
	return nil
}
