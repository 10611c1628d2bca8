package render

import (
	"errors"
	"slices"
	"testing"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/sweep"
)

func veriSuite() sweep.VariantSource {
	return sweep.MustSuite("veri",
		sweep.MustVariable("git_branch", "git_branch", sweep.NewValue("page", "page-la2"), sweep.NewValue("block", "leak-adventure-2")),
		sweep.MustVariable("system", "run_veri", sweep.NewValue("veri1m", "config-1mb")),
		sweep.MustVariable("ram", "run_veri", sweep.NewValue("2gb", "ram=2.0gb")),
	)
}

func sshPrefix(w sweepv1.Worker) []string {
	return []string{"ssh", "ubuntu@" + w.Host()}
}

func TestRenderer_Render(t *testing.T) {
	r := New(veriSuite(), Config{
		Workdir:      "veribetrfs",
		Prepare:      []string{"sh", "tools/clean-for-build.sh"},
		Entrypoint:   []string{"tools/run-veri-config-experiment.py"},
		BranchTarget: "git_branch",
		OutputParam:  "output=",
		OutputDir:    "../",
	}, PrefixFunc(sshPrefix))

	cmd, err := r.Render(1, sweepv1.Worker{Name: "w1", Address: "10.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"ssh", "ubuntu@10.0.0.1",
		"cd", "veribetrfs", ";",
		"sh", "tools/clean-for-build.sh", "leak-adventure-2", ";",
		"tools/run-veri-config-experiment.py", "config-1mb", "ram=2.0gb",
		"output=../block_veri1m_2gb.data",
	}
	if !slices.Equal(cmd.Argv, want) {
		t.Errorf("expected argv\n%v\ngot\n%v", want, cmd.Argv)
	}
	if cmd.Label != "block_veri1m_2gb" || cmd.Index != 1 {
		t.Errorf("unexpected command identity %d %q", cmd.Index, cmd.Label)
	}
}

func TestRenderer_MinimalConfig(t *testing.T) {
	r := New(veriSuite(), Config{
		Entrypoint:   []string{"run.sh"},
		BranchTarget: "git_branch",
		OutputParam:  "--out=",
	}, nil)

	cmd, err := r.Render(0, sweepv1.Worker{Name: "node-a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"run.sh", "config-1mb", "ram=2.0gb", "--out=page_veri1m_2gb.data"}
	if !slices.Equal(cmd.Argv, want) {
		t.Errorf("expected %v, got %v", want, cmd.Argv)
	}
}

func TestRenderer_OutOfRange(t *testing.T) {
	r := New(veriSuite(), DefaultConfig(), nil)
	for _, idx := range []int{-1, 2, 100} {
		if _, err := r.Render(idx, sweepv1.Worker{Name: "w"}); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("index %d: expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
}

func TestRenderer_Pure(t *testing.T) {
	r := New(veriSuite(), DefaultConfig(), PrefixFunc(sshPrefix))
	w := sweepv1.Worker{Name: "w"}

	a, _ := r.Render(0, w)
	b, _ := r.Render(0, w)
	if !slices.Equal(a.Argv, b.Argv) {
		t.Error("rendering the same index twice gave different commands")
	}

	a.Argv[0] = "mutated"
	c, _ := r.Render(0, w)
	if c.Argv[0] != "ssh" {
		t.Error("mutating a rendered command leaked into later renders")
	}
}

func TestFromSpec_Defaults(t *testing.T) {
	cfg := FromSpec(&sweepv1.CommandSpec{Entrypoint: []string{"x"}})
	if cfg.BranchTarget != "git_branch" || cfg.OutputParam != "output=" || cfg.OutputDir != "../" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg := FromSpec(nil); cfg.OutputParam != "output=" {
		t.Errorf("nil spec should give defaults, got %+v", cfg)
	}
}
