package semgraph

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema is the closed enumeration set node attributes are validated
// against. It is loaded once per run from the canonical schema file;
// unknown keys in the file are rejected rather than silently ignored.
type Schema struct {
	Title      string   `yaml:"title"`
	Version    string   `yaml:"version"`
	Categories []string `yaml:"categories"`
	Classes    []string `yaml:"classes"`
	Intentions []string `yaml:"intentions"`
	Emotions   []string `yaml:"emotions"`
	Tones      []string `yaml:"tones"`
}

// LoadSchema reads and parses the schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read schema %s: %v", ErrIO, path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Schema
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: parse schema %s: %v", ErrInvalidInput, path, err)
	}
	if len(s.Categories) == 0 || len(s.Classes) == 0 {
		return nil, fmt.Errorf("%w: schema %s must define categories and classes", ErrInvalidInput, path)
	}
	return &s, nil
}

// Enum returns the allowed values for a named attribute, or nil when
// the attribute is free-form.
func (s *Schema) Enum(field string) []string {
	switch field {
	case "category":
		return s.Categories
	case "class":
		return s.Classes
	case "intention":
		return s.Intentions
	case "emotion":
		return s.Emotions
	case "tone":
		return s.Tones
	}
	return nil
}

// Allows reports whether value is a member of the field's enumeration.
// Free-form fields allow everything.
func (s *Schema) Allows(field, value string) bool {
	enum := s.Enum(field)
	if enum == nil {
		return true
	}
	for _, v := range enum {
		if v == value {
			return true
		}
	}
	return false
}
