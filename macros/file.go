// Package macros loads, stores and watches macro tables.
package macros

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/roll/pkg/roll/roll"
)

// ValidateName reports whether name can be used as a macro name. Any name
// can be written as #{name} as long as it has no closing brace.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("macro name is empty")
	case strings.ContainsAny(name, "}\n\r"):
		return fmt.Errorf("macro name %q contains '}' or a line break", name)
	}
	return nil
}

// loadFile reads a YAML mapping of macro name to body.
//
//	melee: "[[1d20+4]]"
//	melee attack: "I swing: #melee"
func loadFile(path string) (roll.Macros, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading macro file: %w", err)
	}

	macros, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return macros, nil
}

// LoadFiles loads each file in order. A name defined in a later file
// replaces the earlier definition.
func LoadFiles(paths ...string) (roll.Macros, error) {
	layers := make([]roll.Macros, 0, len(paths))
	for _, path := range paths {
		m, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, m)
	}
	return Merge(layers...), nil
}

// Parse decodes YAML macro definitions. Scalar bodies are taken as written,
// so `three: 3` defines the body "3".
func Parse(data []byte) (roll.Macros, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing macros: %w", err)
	}

	macros := roll.Macros{}

	// empty file
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return macros, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: macros must be a mapping of name to body", root.Line)
	}

	var errs []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]

		if err := ValidateName(key.Value); err != nil {
			errs = append(errs, fmt.Sprintf("line %d: %v", key.Line, err))
			continue
		}
		if value.Kind != yaml.ScalarNode {
			errs = append(errs, fmt.Sprintf("line %d: body of %q must be a string", value.Line, key.Value))
			continue
		}
		macros[key.Value] = value.Value
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid macros:\n  %s", strings.Join(errs, "\n  "))
	}
	return macros, nil
}

// Marshal encodes macros as YAML in the format Parse reads
func Marshal(macros roll.Macros) ([]byte, error) {
	return yaml.Marshal(map[string]string(macros))
}
