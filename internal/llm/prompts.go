// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package llm

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "precinct/cli/internal/errors"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts holds the system prompts for each model call.
type Prompts struct {
	Intent   string `yaml:"intent"`
	Optimize string `yaml:"optimize"`
}

// LoadPrompts returns the built-in prompts, or the prompts in path when set.
// Prompts missing from path fall back to the built-in ones.
func LoadPrompts(path string) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(defaultPrompts, &p); err != nil {
		return p, fmt.Errorf("parse built-in prompts: %w", err)
	}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, apperrors.Wrap(apperrors.Config, "cannot read prompts file", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, apperrors.Wrap(apperrors.Config, "invalid prompts file "+path, err)
	}
	if strings.TrimSpace(override.Intent) != "" {
		p.Intent = override.Intent
	}
	if strings.TrimSpace(override.Optimize) != "" {
		p.Optimize = override.Optimize
	}
	return p, nil
}
