// Package config loads configuration documents and compiles them into
// immutable run plans. Every configuration error is raised here, before
// any input file is opened.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentic-research/rowcast/api"
	"gopkg.in/yaml.v3"
)

// Load reads a JSON or YAML configuration document. Files ending in
// .yaml or .yml are decoded as YAML, everything else as JSON.
func Load(path string) (*api.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a configuration document; ext selects the syntax.
func Decode(data []byte, ext string) (*api.Config, error) {
	var cfg api.Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return &cfg, nil
}

// LoadPlan loads and compiles a configuration document.
func LoadPlan(path string) (*Plan, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(cfg)
}
