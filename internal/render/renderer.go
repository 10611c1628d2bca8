// Package render turns a job index into the command that runs its variant
// on a given worker.
package render

import (
	"errors"
	"fmt"
	"strings"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/sweep"
)

// ErrIndexOutOfRange is returned when Render is called with an index outside
// the job list.
var ErrIndexOutOfRange = errors.New("job index out of range")

// Separator ends one remote shell step.
const Separator = ";"

// Command is an ordered list of opaque tokens plus the variant label it was
// rendered for.
type Command struct {
	Index int
	Label string
	Argv  []string
}

// String joins the tokens with spaces. It is meant for log lines only.
func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// Prefixer supplies the tokens needed to reach a worker, such as an ssh
// invocation. Executors implement it.
type Prefixer interface {
	Prefix(worker sweepv1.Worker) []string
}

// PrefixFunc adapts a function to the Prefixer interface.
type PrefixFunc func(worker sweepv1.Worker) []string

func (f PrefixFunc) Prefix(worker sweepv1.Worker) []string { return f(worker) }

// NoPrefix is used when commands run without a transport prefix.
var NoPrefix = PrefixFunc(func(sweepv1.Worker) []string { return nil })

// Config describes the remote steps around the experiment entry point.
type Config struct {
	// Workdir is changed into before anything else, if set.
	Workdir string
	// Prepare runs before the entry point with the branch-target params appended.
	Prepare []string
	// Entrypoint is invoked with every param whose target is not BranchTarget.
	Entrypoint []string
	// BranchTarget names the target whose params select the source branch.
	BranchTarget string
	// OutputParam and OutputDir prefix the variant's output file name.
	OutputParam string
	OutputDir   string
}

// DefaultConfig returns the defaults applied to unset fields.
func DefaultConfig() Config {
	return Config{
		BranchTarget: "git_branch",
		OutputParam:  "output=",
		OutputDir:    "../",
	}
}

// FromSpec builds a Config from the sweep file, applying defaults.
func FromSpec(spec *sweepv1.CommandSpec) Config {
	cfg := DefaultConfig()
	if spec == nil {
		return cfg
	}
	cfg.Workdir = spec.Workdir
	cfg.Prepare = spec.Prepare
	cfg.Entrypoint = spec.Entrypoint
	if spec.BranchTarget != "" {
		cfg.BranchTarget = spec.BranchTarget
	}
	if spec.OutputParam != "" {
		cfg.OutputParam = spec.OutputParam
	}
	if spec.OutputDir != "" {
		cfg.OutputDir = spec.OutputDir
	}
	return cfg
}

// Renderer renders commands for the variants of one job list.
type Renderer struct {
	variants []sweep.Variant
	config   Config
	prefixer Prefixer
}

// New creates a Renderer over the source's job list.
func New(source sweep.VariantSource, cfg Config, prefixer Prefixer) *Renderer {
	if prefixer == nil {
		prefixer = NoPrefix
	}
	return &Renderer{
		variants: source.Variants(),
		config:   cfg,
		prefixer: prefixer,
	}
}

// Len returns the length of the job list.
func (r *Renderer) Len() int {
	return len(r.variants)
}

// Variant returns the variant at index.
func (r *Renderer) Variant(index int) (sweep.Variant, error) {
	if index < 0 || index >= len(r.variants) {
		return sweep.Variant{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(r.variants))
	}
	return r.variants[index], nil
}

// Render builds the command for the job at index as run by worker.
func (r *Renderer) Render(index int, worker sweepv1.Worker) (Command, error) {
	variant, err := r.Variant(index)
	if err != nil {
		return Command{}, err
	}

	argv := append([]string(nil), r.prefixer.Prefix(worker)...)
	if r.config.Workdir != "" {
		argv = append(argv, "cd", r.config.Workdir, Separator)
	}
	if len(r.config.Prepare) > 0 {
		argv = append(argv, r.config.Prepare...)
		argv = append(argv, variant.ParamsForTarget(r.config.BranchTarget)...)
		argv = append(argv, Separator)
	}
	argv = append(argv, r.config.Entrypoint...)
	argv = append(argv, variant.ParamsExcluding(r.config.BranchTarget)...)
	argv = append(argv, r.config.OutputParam+r.config.OutputDir+variant.OutputFile())

	return Command{
		Index: index,
		Label: variant.Label(),
		Argv:  argv,
	}, nil
}
