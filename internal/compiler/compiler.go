// Package compiler loads sweep files and turns them into job lists.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"gopkg.in/yaml.v3"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/sweep"
)

// Load reads a sweep file. The decoder is chosen by extension: .yaml/.yml
// or .hcl.
func Load(path string) (*sweepv1.SweepFile, error) {
	var (
		sf  *sweepv1.SweepFile
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		sf, err = loadYAML(path)
	case ".hcl":
		sf, err = loadHCL(path)
	default:
		return nil, fmt.Errorf("%w: unsupported sweep file extension %q", sweep.ErrConfiguration, ext)
	}
	if err != nil {
		return nil, err
	}
	if sf.Name == "" {
		sf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sf, nil
}

func loadYAML(path string) (*sweepv1.SweepFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sweep file error: %w", err)
	}
	var sf sweepv1.SweepFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}
	return &sf, nil
}

func loadHCL(path string) (*sweepv1.SweepFile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var sf sweepv1.SweepFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &sf); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}
	return &sf, nil
}

// evalContext exposes the process environment as env.NAME and a few helpers
// for generated value lists.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(k) {
			continue
		}
		env[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
		Functions: map[string]function.Function{
			"concat": stdlib.ConcatFunc,
			"format": stdlib.FormatFunc,
			"join":   stdlib.JoinFunc,
			"lower":  stdlib.LowerFunc,
			"range":  stdlib.RangeFunc,
			"upper":  stdlib.UpperFunc,
		},
	}
}

// Compile builds the job list of a sweep file. A single suite is returned as
// is; several suites are concatenated under the file's name.
func Compile(sf *sweepv1.SweepFile) (sweep.VariantSource, error) {
	if len(sf.Suites) == 0 {
		return nil, fmt.Errorf("%w: %s declares no suites", sweep.ErrConfiguration, sf.Name)
	}

	sets := make(map[string][]sweepv1.VariableSpec, len(sf.VariableSets))
	for _, set := range sf.VariableSets {
		if _, dup := sets[set.Name]; dup {
			return nil, fmt.Errorf("%w: variable set %q declared twice", sweep.ErrConfiguration, set.Name)
		}
		sets[set.Name] = set.Variables
	}

	suites := make([]sweep.VariantSource, 0, len(sf.Suites))
	for _, spec := range sf.Suites {
		s, err := compileSuite(spec, sets)
		if err != nil {
			return nil, err
		}
		suites = append(suites, s)
	}

	if len(suites) == 1 {
		return suites[0], nil
	}
	concat, err := sweep.NewConcatSuite(sf.Name, suites...)
	if err != nil {
		return nil, err
	}
	return concat, nil
}

func compileSuite(spec sweepv1.SuiteSpec, sets map[string][]sweepv1.VariableSpec) (*sweep.Suite, error) {
	specs := append([]sweepv1.VariableSpec(nil), spec.Variables...)
	for _, name := range spec.Use {
		set, ok := sets[name]
		if !ok {
			return nil, fmt.Errorf("%w: suite %q uses unknown variable set %q", sweep.ErrConfiguration, spec.Name, name)
		}
		specs = append(specs, set...)
	}

	vars := make([]sweep.Variable, 0, len(specs))
	for _, vs := range specs {
		v, err := compileVariable(vs)
		if err != nil {
			return nil, fmt.Errorf("suite %q: %w", spec.Name, err)
		}
		vars = append(vars, v)
	}
	return sweep.NewSuite(spec.Name, vars...)
}

func compileVariable(spec sweepv1.VariableSpec) (sweep.Variable, error) {
	if spec.Format != "" {
		if len(spec.Values) > 0 {
			return sweep.Variable{}, fmt.Errorf("%w: variable %q sets both values and format", sweep.ErrConfiguration, spec.Name)
		}
		return sweep.FormatVariable(spec.Name, spec.Target, spec.Format, spec.Items...)
	}
	values := make([]sweep.Value, 0, len(spec.Values))
	for _, v := range spec.Values {
		values = append(values, sweep.NewValue(v.Label, v.Param))
	}
	return sweep.NewVariable(spec.Name, spec.Target, values...)
}

// LoadSource loads and compiles a sweep file
func LoadSource(path string) (*sweepv1.SweepFile, sweep.VariantSource, error) {
	sf, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	src, err := Compile(sf)
	if err != nil {
		return nil, nil, err
	}
	return sf, src, nil
}
