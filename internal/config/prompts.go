package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts — необязательные переопределения промптов из YAML-файла.
type Prompts struct {
	System string `yaml:"system"`
	Vision string `yaml:"vision"`
}

func LoadPrompts(path string) (Prompts, error) {
	if path == "" {
		return Prompts{}, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("read prompts file: %w", err)
	}

	var p Prompts
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts file: %w", err)
	}
	return p, nil
}
