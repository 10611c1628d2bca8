package v1

import "time"

// SweepFile is the on-disk definition of a parameter sweep. It is decoded
// from YAML or HCL by the compiler.
type SweepFile struct {
	// Name of the run. When several suites are declared they are
	// concatenated under this name in declaration order.
	Name string `yaml:"name" hcl:"name,optional"`

	VariableSets []VariableSetSpec `yaml:"variableSets,omitempty" hcl:"variable_set,block"`
	Suites       []SuiteSpec       `yaml:"suites" hcl:"suite,block"`

	Command *CommandSpec `yaml:"command,omitempty" hcl:"command,block"`
	Pool    *PoolSpec    `yaml:"pool,omitempty" hcl:"pool,block"`
	Report  *ReportSpec  `yaml:"report,omitempty" hcl:"report,block"`
}

// VariableSetSpec is a named group of variables shared by several suites.
type VariableSetSpec struct {
	Name      string         `yaml:"name" hcl:"name,label"`
	Variables []VariableSpec `yaml:"variables" hcl:"variable,block"`
}

// SuiteSpec declares one suite: its own variables followed by the
// variables of every set listed in Use.
type SuiteSpec struct {
	Name      string         `yaml:"name" hcl:"name,label"`
	Variables []VariableSpec `yaml:"variables" hcl:"variable,block"`
	Use       []string       `yaml:"use,omitempty" hcl:"use,optional"`
}

// VariableSpec declares one axis of variation. Values can be listed
// explicitly or generated from Format and Items, in which case every item
// becomes a value labelled by the item itself.
type VariableSpec struct {
	Name   string      `yaml:"name" hcl:"name,label"`
	Target string      `yaml:"target" hcl:"target"`
	Values []ValueSpec `yaml:"values,omitempty" hcl:"value,block"`
	Format string      `yaml:"format,omitempty" hcl:"format,optional"`
	Items  []string    `yaml:"items,omitempty" hcl:"items,optional"`
}

type ValueSpec struct {
	Label string `yaml:"label" hcl:"label,label"`
	Param string `yaml:"param" hcl:"param"`
}

// CommandSpec controls how a variant is turned into a remote command line.
type CommandSpec struct {
	Workdir      string   `yaml:"workdir,omitempty" hcl:"workdir,optional"`
	Prepare      []string `yaml:"prepare,omitempty" hcl:"prepare,optional"`
	Entrypoint   []string `yaml:"entrypoint" hcl:"entrypoint"`
	BranchTarget string   `yaml:"branchTarget,omitempty" hcl:"branch_target,optional"`
	OutputParam  string   `yaml:"outputParam,omitempty" hcl:"output_param,optional"`
	OutputDir    string   `yaml:"outputDir,omitempty" hcl:"output_dir,optional"`
}

// PoolSpec selects how workers are discovered and reached.
type PoolSpec struct {
	// Type is the discoverer type: "static" or "kube".
	Type string `yaml:"type" hcl:"type"`
	// Transport is the executor type: "ssh", "local" or "pod".
	Transport string `yaml:"transport,omitempty" hcl:"transport,optional"`

	Hosts         []string `yaml:"hosts,omitempty" hcl:"hosts,optional"`
	User          string   `yaml:"user,omitempty" hcl:"user,optional"`
	IdentityFile  string   `yaml:"identityFile,omitempty" hcl:"identity_file,optional"`
	SSHOptions    []string `yaml:"sshOptions,omitempty" hcl:"ssh_options,optional"`
	LabelSelector string   `yaml:"labelSelector,omitempty" hcl:"label_selector,optional"`
	Namespace     string   `yaml:"namespace,omitempty" hcl:"namespace,optional"`
	Image         string   `yaml:"image,omitempty" hcl:"image,optional"`
}

// ReportSpec holds the hints logged for the external plotting step.
type ReportSpec struct {
	PullCommand string `yaml:"pullCommand,omitempty" hcl:"pull_command,optional"`
	Viewer      string `yaml:"viewer,omitempty" hcl:"viewer,optional"`
}

// Worker is a remote execution endpoint discovered at dispatch start.
type Worker struct {
	Name    string            `json:"name" yaml:"name"`
	Address string            `json:"address,omitempty" yaml:"address,omitempty"`
	Labels  map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// Host returns the address used to reach the worker, falling back to its name.
func (w Worker) Host() string {
	if w.Address != "" {
		return w.Address
	}
	return w.Name
}

// JobState represents the current state of one job index.
type JobState string

const (
	StateQueued    JobState = "Queued"
	StateAssigned  JobState = "Assigned"
	StateRunning   JobState = "Running"
	StateCompleted JobState = "Completed"
	StateFailed    JobState = "Failed"
)

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

type JobStatus struct {
	Index     int        `json:"index" yaml:"index"`
	Label     string     `json:"label" yaml:"label"`
	State     JobState   `json:"state" yaml:"state"`
	Worker    string     `json:"worker,omitempty" yaml:"worker,omitempty"`
	ExitCode  int        `json:"exitCode" yaml:"exitCode"`
	Message   string     `json:"message,omitempty" yaml:"message,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty" yaml:"endTime,omitempty"`
}

// RunState is the overall state of one dispatch run.
type RunState string

const (
	RunRunning         RunState = "Running"
	RunAllCompleted    RunState = "AllCompleted"
	RunPartiallyFailed RunState = "PartiallyFailed"
)

// RunStatus represents the overall status of one dispatch run.
type RunStatus struct {
	RunID       string     `json:"runId" yaml:"runId"`
	Suite       string     `json:"suite" yaml:"suite"`
	State       RunState   `json:"state" yaml:"state"`
	Jobs        int        `json:"jobs" yaml:"jobs"`
	Completed   int        `json:"completed" yaml:"completed"`
	Failed      int        `json:"failed" yaml:"failed"`
	WorkersLost int        `json:"workersLost" yaml:"workersLost"`
	StartTime   time.Time  `json:"startTime" yaml:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty" yaml:"endTime,omitempty"`
}
