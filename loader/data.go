package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/aegistudio/rely/internal/ctyconv"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// loadDataModule decodes a YAML or JSON document. JSON is a
// subset of YAML, so one decoder serves both.
func loadDataModule(filename string, code []byte) (interface{}, error) {
	var value interface{}
	decoder := yaml.NewDecoder(bytes.NewReader(code))
	if err := decoder.Decode(&value); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	return value, nil
}

// loadHCLModule decodes the top level attributes of an HCL file
// into a map. Blocks are not supported.
func loadHCLModule(filename string, code []byte) (interface{}, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(code, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diags)
	}
	module := make(map[string]interface{}, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("evaluate %s in %s: %w", name, filename, diags)
		}
		value, err := ctyconv.ToGo(val)
		if err != nil {
			return nil, fmt.Errorf("convert %s in %s: %w", name, filename, err)
		}
		module[name] = value
	}
	return module, nil
}
