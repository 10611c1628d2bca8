package compiler

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kination/sweeper/internal/sweep"
)

type PlanSource struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// Plan is the expanded job list of one sweep file
type Plan struct {
	Name    string         `yaml:"name"`
	LogPath string         `yaml:"logPath"`
	Plot    string         `yaml:"plot"`
	Suites  []PlannedSuite `yaml:"suites"`
	Jobs    []PlannedJob   `yaml:"jobs"`
}

// PlannedSuite records the axes of one component suite in concat order
type PlannedSuite struct {
	Name      string            `yaml:"name"`
	Jobs      int               `yaml:"jobs"`
	Variables []PlannedVariable `yaml:"variables"`
}

type PlannedVariable struct {
	Name   string   `yaml:"name"`
	Target string   `yaml:"target"`
	Labels []string `yaml:"labels"`
}

type PlannedJob struct {
	Index      int                 `yaml:"index"`
	Label      string              `yaml:"label"`
	Suite      string              `yaml:"suite"`
	OutputFile string              `yaml:"outputFile"`
	Params     map[string][]string `yaml:"params"`
}

// BuildPlan expands src into a plan
func BuildPlan(src sweep.VariantSource) *Plan {
	naming := sweep.Naming(src.Name())
	plan := &Plan{
		Name:    src.Name(),
		LogPath: naming.LogPath(),
		Plot:    naming.PlotCommand(),
		Suites:  planSuites(src),
	}
	for i, v := range src.Variants() {
		params := make(map[string][]string)
		for _, c := range v.Choices() {
			params[c.Target] = append(params[c.Target], c.Value.ParamString)
		}
		plan.Jobs = append(plan.Jobs, PlannedJob{
			Index:      i,
			Label:      v.Label(),
			Suite:      v.Suite(),
			OutputFile: v.OutputFile(),
			Params:     params,
		})
	}
	return plan
}

// planSuites flattens nested concat suites into their leaf suites
func planSuites(src sweep.VariantSource) []PlannedSuite {
	switch s := src.(type) {
	case *sweep.ConcatSuite:
		var out []PlannedSuite
		for _, child := range s.Suites() {
			out = append(out, planSuites(child)...)
		}
		return out
	case *sweep.Suite:
		ps := PlannedSuite{Name: s.Name(), Jobs: s.Len()}
		for _, v := range s.Variables() {
			pv := PlannedVariable{Name: v.Name(), Target: v.Target()}
			for _, val := range v.Values() {
				pv.Labels = append(pv.Labels, val.ShortLabel)
			}
			ps.Variables = append(ps.Variables, pv)
		}
		return []PlannedSuite{ps}
	default:
		return []PlannedSuite{{Name: src.Name(), Jobs: len(src.Variants())}}
	}
}

// CompilePlans walks every source location listed in configPath and writes
// one <name>.plan.yaml per sweep file into outputDir.
func CompilePlans(configPath string, outputDir string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config error: %w", err)
	}

	var sources []PlanSource
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return fmt.Errorf("yaml parse error: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	for _, src := range sources {
		fmt.Printf("📂 Scanning source: %s (%s)\n", src.Name, src.Location)

		err := filepath.WalkDir(src.Location, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			switch strings.ToLower(filepath.Ext(d.Name())) {
			case ".yaml", ".yml", ".hcl":
				return writePlan(path, outputDir)
			}
			return nil
		})

		if err != nil {
			return fmt.Errorf("walk error in %s: %w", src.Location, err)
		}
	}
	return nil
}

// writePlan compiles one sweep file and saves its plan
func writePlan(srcPath string, outputDir string) error {
	_, src, err := LoadSource(srcPath)
	if err != nil {
		return fmt.Errorf("compile failed for %s: %w", srcPath, err)
	}

	plan := BuildPlan(src)
	if len(plan.Jobs) == 0 {
		log.Printf("⚠️  Warning: %s produced no jobs. Skipping.", srcPath)
		return nil
	}

	output, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	fileName := plan.Name + ".plan.yaml"
	if err := os.WriteFile(filepath.Join(outputDir, fileName), output, 0644); err != nil {
		return fmt.Errorf("write error: %w", err)
	}

	fmt.Printf("   ✨ Compiled: %s -> %s (%d jobs)\n", filepath.Base(srcPath), fileName, len(plan.Jobs))
	return nil
}
