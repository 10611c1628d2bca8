package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/compiler"
	"github.com/kination/sweeper/internal/executor"
	"github.com/kination/sweeper/internal/executor/pod"
	"github.com/kination/sweeper/internal/executor/process"
	"github.com/kination/sweeper/internal/logging"
	"github.com/kination/sweeper/internal/monitor"
	"github.com/kination/sweeper/internal/pool"
	"github.com/kination/sweeper/internal/render"
	"github.com/kination/sweeper/internal/runner"
	"github.com/kination/sweeper/internal/scheduler"
	"github.com/kination/sweeper/internal/store"
	"github.com/kination/sweeper/internal/sweep"
)

// errJobsFailed makes the process exit non-zero after a complete report
var errJobsFailed = errors.New("some jobs failed")

type runOptions struct {
	sweepFile string
	dryRun    bool
	logPath   string
	jobLogs   string
	dbPath    string
	interval  time.Duration
	verbosity int
	dev       bool

	// Overrides for the sweep file's pool block
	poolType     string
	transport    string
	hosts        []string
	user         string
	identityFile string
	selector     string
	namespace    string
	image        string
	keepPods     bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch every variant of a sweep onto the worker pool",
	Long: `Run loads a sweep file, discovers the worker pool and dispatches one job
per variant. Each worker runs one job at a time. A job that fails is recorded
and the run goes on; a worker that becomes unreachable is dropped from the
pool for the rest of the run.

The command exits non-zero when any job failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSweep(ctx, runOpts)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.sweepFile, "file", "f", "", "Path to the sweep file (.yaml or .hcl)")
	f.BoolVar(&runOpts.dryRun, "dry-run", false, "Render and log every command without running it")
	f.StringVar(&runOpts.logPath, "log", "", "Run log path (default expresults/<name>.log)")
	f.StringVar(&runOpts.jobLogs, "job-logs", "", "Directory for per-job output of ssh/local jobs (default expresults/<name>)")
	f.StringVar(&runOpts.dbPath, "db", store.DefaultStoreConfig().ConnectionString, "SQLite run history; empty disables it")
	f.DurationVar(&runOpts.interval, "interval", monitor.DefaultInterval, "Time between pool status lines")
	f.IntVarP(&runOpts.verbosity, "verbose", "v", 0, "Log verbosity")
	f.BoolVar(&runOpts.dev, "dev", false, "Human-readable log lines")

	f.StringVar(&runOpts.poolType, "pool", "", "Worker discovery: static or kube")
	f.StringVar(&runOpts.transport, "transport", "", "How jobs reach workers: ssh, local or pod")
	f.StringSliceVarP(&runOpts.hosts, "worker", "w", nil, "Static worker, as host or name=address (repeatable)")
	f.StringVar(&runOpts.user, "user", "", "ssh user (default $SWEEP_SSH_USER)")
	f.StringVar(&runOpts.identityFile, "identity", "", "ssh identity file")
	f.StringVar(&runOpts.selector, "selector", "", "Label selector for kube worker nodes")
	f.StringVar(&runOpts.namespace, "namespace", "", "Namespace for job Pods")
	f.StringVar(&runOpts.image, "image", "", "Image for job Pods")
	f.BoolVar(&runOpts.keepPods, "keep-pods", false, "Keep finished job Pods")
	_ = runCmd.MarkFlagRequired("file")
}

func runSweep(ctx context.Context, opts runOptions) error {
	sf, src, err := compiler.LoadSource(opts.sweepFile)
	if err != nil {
		return err
	}
	spec := mergePool(sf.Pool, opts)
	naming := sweep.Naming(src.Name())

	logPath := opts.logPath
	if logPath == "" {
		logPath = naming.LogPath()
	}
	logs, err := logging.Open(logging.Config{Path: logPath, Verbosity: opts.verbosity, Development: opts.dev})
	if err != nil {
		return err
	}
	defer logs.Close()
	log := logs.Logger()
	ctrl.SetLogger(log)

	runID := uuid.NewString()
	variants := src.Variants()
	log.Info(plotHint(naming, sf.Report))
	log.Info("VARIANTS", "runID", runID, "count", len(variants), "labels", sweep.Labels(variants))

	var kube client.Client
	if spec.Type == pool.TypeKube || spec.Transport == pod.Transport {
		kube, err = kubeClient()
		if err != nil {
			return err
		}
	}

	workers, err := discover(ctx, spec, kube)
	if err != nil {
		if !opts.dryRun {
			return err
		}
		log.Info("Worker discovery failed, rendering without workers", "error", err.Error())
	}
	log.Info("Workers discovered", "count", len(workers), "pool", spec.Type)

	jobLogs := opts.jobLogs
	if jobLogs == "" {
		jobLogs = filepath.Join(sweep.ResultsDir, src.Name())
	}
	exec, err := newExecutor(spec, kube, runID, jobLogs, opts.keepPods, log)
	if err != nil {
		return err
	}

	renderer := render.New(src, render.FromSpec(sf.Command), exec)
	table := scheduler.NewJobTable(sweep.Labels(variants))
	dispatcher := runner.NewDispatcher(table, exec, renderer.Render, log, runner.Options{DryRun: opts.dryRun})

	if opts.dryRun {
		_, err := dispatcher.Launch(ctx, workers)
		return err
	}

	var history store.Store
	if opts.dbPath != "" {
		history, err = store.New(store.StoreConfig{Type: store.StoreTypeSQLite, ConnectionString: opts.dbPath})
		if err != nil {
			return err
		}
		defer history.Close()
	}

	pipes, err := dispatcher.Launch(ctx, workers)
	if err != nil {
		return err
	}

	mon := monitor.New(table, log, monitor.Options{
		RunID:    runID,
		Suite:    src.Name(),
		Interval: opts.interval,
		Store:    history,
	})
	report, err := mon.Watch(ctx, dispatcher.Events(), pipes)
	summarize(log, runID, report)
	if err != nil {
		return err
	}

	if !report.AllCompleted() {
		return fmt.Errorf("%w: %d of %d", errJobsFailed, report.Failed, len(report.Jobs))
	}
	return nil
}

// summarize logs the failed jobs and the run summary. A cancelled run is
// summarized as it stood.
func summarize(log logr.Logger, runID string, report *monitor.RunReport) {
	for _, j := range report.FailedJobs() {
		log.Info("FAILED", "index", j.Index, "label", j.Label, "worker", j.Worker, "reason", j.Message)
	}
	log.Info("SUMMARY", "runID", runID, "state", report.State,
		"completed", fmt.Sprintf("%d/%d", report.Completed, len(report.Jobs)),
		"workersLost", report.WorkersLost,
		"started", humanize.Time(report.StartTime))
}

// plotHint is the line the plotting step is started from
func plotHint(naming sweep.Naming, report *sweepv1.ReportSpec) string {
	parts := make([]string, 0, 3)
	viewer := ""
	if report != nil {
		if report.PullCommand != "" {
			parts = append(parts, report.PullCommand)
		}
		viewer = report.Viewer
	}
	parts = append(parts, naming.PlotCommand())
	if viewer != "" {
		parts = append(parts, viewer+" "+naming.PNGFilename())
	}
	return "PLOT " + strings.Join(parts, " && ")
}

// mergePool applies command line overrides to the sweep file's pool block
func mergePool(spec *sweepv1.PoolSpec, opts runOptions) sweepv1.PoolSpec {
	var out sweepv1.PoolSpec
	if spec != nil {
		out = *spec
	}
	if opts.poolType != "" {
		out.Type = opts.poolType
	}
	if opts.transport != "" {
		out.Transport = opts.transport
	}
	if len(opts.hosts) > 0 {
		out.Hosts = opts.hosts
	}
	if opts.user != "" {
		out.User = opts.user
	}
	if out.User == "" {
		out.User = os.Getenv("SWEEP_SSH_USER")
	}
	if opts.identityFile != "" {
		out.IdentityFile = opts.identityFile
	}
	if opts.selector != "" {
		out.LabelSelector = opts.selector
	}
	if opts.namespace != "" {
		out.Namespace = opts.namespace
	}
	if opts.image != "" {
		out.Image = opts.image
	}

	if out.Type == "" {
		out.Type = pool.TypeStatic
	}
	if out.Transport == "" {
		out.Transport = process.TransportSSH
		if out.Type == pool.TypeKube {
			out.Transport = pod.Transport
		}
	}
	return out
}

func kubeClient() (client.Client, error) {
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, err
	}
	cfg, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	cl, err := client.New(cfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return cl, nil
}

func discover(ctx context.Context, spec sweepv1.PoolSpec, kube client.Client) ([]sweepv1.Worker, error) {
	registry := pool.NewRegistry()
	registry.Register(pool.NewStatic(spec.Hosts...))
	if kube != nil {
		registry.Register(pool.NewKube(kube, spec.LabelSelector))
	}

	d, err := registry.Get(spec.Type)
	if err != nil {
		return nil, err
	}
	return d.Discover(ctx)
}

func newExecutor(spec sweepv1.PoolSpec, kube client.Client, runID, jobLogs string, keepPods bool, log logr.Logger) (executor.Executor, error) {
	registry := executor.NewRegistry()
	for _, transport := range []string{process.TransportSSH, process.TransportLocal} {
		registry.Register(process.New(process.Config{
			Transport:    transport,
			User:         spec.User,
			IdentityFile: spec.IdentityFile,
			SSHOptions:   spec.SSHOptions,
			LogDir:       jobLogs,
			Logger:       log.WithName(transport),
		}))
	}
	if kube != nil {
		registry.Register(pod.New(pod.Config{
			Client:         kube,
			Namespace:      spec.Namespace,
			Image:          spec.Image,
			RunName:        "sweep-" + runID[:8],
			DeleteFinished: !keepPods,
			Logger:         log.WithName("pod"),
		}))
	}
	return registry.Get(spec.Transport)
}
