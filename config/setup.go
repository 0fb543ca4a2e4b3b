package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aegistudio/rely/internal/ctyconv"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// Setup is the content of a setup file.
//
// The YAML and JSON form uses the keys baseDirectory, autoRequire
// and dependencies. The HCL form uses base_directory, auto_require
// and a dependencies object.
type Setup struct {
	BaseDirectory *string                `yaml:"baseDirectory"`
	AutoRequire   *bool                  `yaml:"autoRequire"`
	Dependencies  map[string]interface{} `yaml:"dependencies"`
}

// Apply returns opts overridden by what the setup specifies.
func (s *Setup) Apply(opts Options) Options {
	if s.BaseDirectory != nil {
		opts.BaseDirectory = *s.BaseDirectory
	}
	if s.AutoRequire != nil {
		opts.AutoRequire = *s.AutoRequire
	}
	return opts
}

// LoadSetup reads the setup file at path. A relative base
// directory is taken relative to the directory of the file.
func LoadSetup(path string) (*Setup, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setup: %w", err)
	}
	var setup *Setup
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
		setup, err = parseYAMLSetup(path, code)
	case ".hcl":
		setup, err = parseHCLSetup(path, code)
	default:
		err = fmt.Errorf("unsupported setup file extension %q", ext)
	}
	if err != nil {
		return nil, err
	}
	if setup.BaseDirectory != nil && !filepath.IsAbs(*setup.BaseDirectory) {
		dir, err := filepath.Abs(filepath.Join(filepath.Dir(path), *setup.BaseDirectory))
		if err != nil {
			return nil, err
		}
		setup.BaseDirectory = &dir
	}
	if setup.Dependencies == nil {
		setup.Dependencies = make(map[string]interface{})
	}
	return setup, nil
}

func parseYAMLSetup(path string, code []byte) (*Setup, error) {
	setup := &Setup{}
	if err := yaml.Unmarshal(code, setup); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return setup, nil
}

type hclSetup struct {
	BaseDirectory *string        `hcl:"base_directory,optional"`
	AutoRequire   *bool          `hcl:"auto_require,optional"`
	Dependencies  hcl.Expression `hcl:"dependencies,optional"`
}

func parseHCLSetup(path string, code []byte) (*Setup, error) {
	file, diags := hclparse.NewParser().ParseHCL(code, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}
	var root hclSetup
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", path, diags)
	}
	setup := &Setup{
		BaseDirectory: root.BaseDirectory,
		AutoRequire:   root.AutoRequire,
	}
	if root.Dependencies == nil {
		return setup, nil
	}
	val, diags := root.Dependencies.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluate dependencies in %s: %w", path, diags)
	}
	deps, err := ctyconv.ToGo(val)
	if err != nil {
		return nil, fmt.Errorf("convert dependencies in %s: %w", path, err)
	}
	switch deps := deps.(type) {
	case nil:
	case map[string]interface{}:
		setup.Dependencies = deps
	default:
		return nil, fmt.Errorf("%s: dependencies must be an object, got %T", path, deps)
	}
	return setup, nil
}
