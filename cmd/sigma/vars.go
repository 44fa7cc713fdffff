package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mrLexx/HTML-Template-Sigma/pkg/sigma"
)

// Bindings is the YAML document driving a render: global variables, then a
// sequence of block passes applied in order. Each pass binds its variables
// and parses its block once, so repeated passes over the same block build
// repeated rows.
type Bindings struct {
	Globals map[string]string `yaml:"globals"`
	Passes  []Pass            `yaml:"passes"`
}

// Pass is one render pass of a named block.
type Pass struct {
	Block string            `yaml:"block"`
	Vars  map[string]string `yaml:"vars"`
}

// LoadBindings reads a Bindings document from a YAML file.
func LoadBindings(path string) (*Bindings, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vars file: %w", err)
	}
	var b Bindings
	if err := yaml.Unmarshal(file, &b); err != nil {
		return nil, fmt.Errorf("failed to parse vars file: %w", err)
	}
	return &b, nil
}

// Apply plays the bindings against a loaded template.
func (b *Bindings) Apply(tpl *sigma.Template) error {
	tpl.SetGlobalVariables(b.Globals)
	for i, pass := range b.Passes {
		tpl.SetVariables(pass.Vars)
		if err := tpl.Parse(pass.Block); err != nil {
			return fmt.Errorf("pass %d: %w", i+1, err)
		}
	}
	return nil
}
