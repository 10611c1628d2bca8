// Package pod provides the executor that runs each job as a Kubernetes Pod
// pinned to the worker node.
package pod

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/executor"
	"github.com/kination/sweeper/internal/render"
)

const Transport = "pod"

// Pod failure reasons that mean the node went away rather than the job failing.
var nodeLossReasons = map[string]bool{
	"NodeLost":     true,
	"Evicted":      true,
	"NodeAffinity": true,
	"Terminated":   true,
	"Shutdown":     true,
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// Config holds the settings shared by every Pod the executor creates
type Config struct {
	Client    client.Client
	Namespace string
	Image     string
	// RunName prefixes Pod names and labels every Pod of the run
	RunName      string
	PollInterval time.Duration
	// DeleteFinished removes Pods once their result is known
	DeleteFinished bool
	Logger         logr.Logger
}

// Executor implements the executor.Executor interface for Pod-based jobs
type Executor struct {
	config Config
}

// New creates a new PodExecutor
func New(cfg Config) *Executor {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.Image == "" {
		cfg.Image = "ubuntu:latest"
	}
	if cfg.RunName == "" {
		cfg.RunName = "sweep"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	return &Executor{config: cfg}
}

// Type returns the transport this executor handles
func (e *Executor) Type() string {
	return Transport
}

// Prefix is empty: the Pod spec already places the command on the node
func (e *Executor) Prefix(sweepv1.Worker) []string {
	return nil
}

// Execute creates a Pod for the command and watches it until it finishes
func (e *Executor) Execute(ctx context.Context, worker sweepv1.Worker, cmd render.Command) <-chan executor.Result {
	pod := e.buildPod(worker, cmd)
	log := e.config.Logger.WithValues("pod", pod.Name, "node", worker.Name)

	if err := e.config.Client.Create(ctx, pod); err != nil {
		if !errors.IsAlreadyExists(err) {
			return executor.Done(executor.Result{ExitCode: -1, Err: fmt.Errorf("failed to create pod: %w", err)})
		}
		log.Info("Pod already exists, watching it")
	}

	done := make(chan executor.Result, 1)
	go func() {
		res := e.watch(ctx, pod.Name)
		if e.config.DeleteFinished {
			if err := e.Cleanup(context.WithoutCancel(ctx), pod.Name); err != nil {
				log.Error(err, "Failed to delete finished pod")
			}
		}
		done <- res
	}()
	return done
}

func (e *Executor) watch(ctx context.Context, podName string) executor.Result {
	var res executor.Result
	err := wait.PollUntilContextCancel(ctx, e.config.PollInterval, true, func(ctx context.Context) (bool, error) {
		r, finished, err := e.GetStatus(ctx, podName)
		if err != nil {
			return false, err
		}
		res = r
		return finished, nil
	})
	if err != nil {
		return executor.Result{ExitCode: -1, Err: err}
	}
	return res
}

// GetStatus checks the Pod and reports its result once it has finished
func (e *Executor) GetStatus(ctx context.Context, podName string) (executor.Result, bool, error) {
	pod := &corev1.Pod{}
	err := e.config.Client.Get(ctx, types.NamespacedName{
		Name:      podName,
		Namespace: e.config.Namespace,
	}, pod)

	if err != nil {
		if errors.IsNotFound(err) {
			return executor.Result{ExitCode: -1, Err: fmt.Errorf("pod %s disappeared: %w", podName, executor.ErrWorkerLost)}, true, nil
		}
		return executor.Result{}, false, err
	}

	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return executor.Result{}, true, nil
	case corev1.PodFailed:
		if nodeLossReasons[pod.Status.Reason] {
			return executor.Result{ExitCode: -1, Err: fmt.Errorf("pod %s failed with %s: %w", podName, pod.Status.Reason, executor.ErrWorkerLost)}, true, nil
		}
		return executor.Result{ExitCode: exitCode(pod)}, true, nil
	default:
		return executor.Result{}, false, nil
	}
}

// Cleanup removes the Pod
func (e *Executor) Cleanup(ctx context.Context, podName string) error {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: e.config.Namespace,
		},
	}

	if err := e.config.Client.Delete(ctx, pod); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

// buildPod converts a command to a Pod bound to the worker node
func (e *Executor) buildPod(worker sweepv1.Worker, cmd render.Command) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      e.getPodName(cmd),
			Namespace: e.config.Namespace,
			Labels: map[string]string{
				"sweep":                     e.config.RunName,
				"sweep-index":               strconv.Itoa(cmd.Index),
				"app.kubernetes.io/name":    "sweeper",
				"app.kubernetes.io/part-of": "sweeper",
			},
			Annotations: map[string]string{
				"sweeper.io/variant": cmd.Label,
			},
		},
		Spec: corev1.PodSpec{
			NodeName:      worker.Name,
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    "job-runner",
					Image:   e.config.Image,
					Command: []string{"/bin/sh", "-c"},
					Args:    []string{cmd.String()},
				},
			},
		},
	}
}

// getPodName derives a DNS-safe name from the run name and job index
func (e *Executor) getPodName(cmd render.Command) string {
	base := invalidNameChars.ReplaceAllString(strings.ToLower(e.config.RunName), "-")
	base = strings.Trim(base, "-")
	if len(base) > 50 {
		base = base[:50]
	}
	return fmt.Sprintf("%s-%d", base, cmd.Index)
}

func exitCode(pod *corev1.Pod) int {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Terminated != nil && cs.State.Terminated.ExitCode != 0 {
			return int(cs.State.Terminated.ExitCode)
		}
	}
	return 1
}
