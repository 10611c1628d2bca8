package pool

import (
	"context"
	"fmt"
	"sort"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

const TypeKube = "kube"

var log = ctrl.Log.WithName("pool")

// Kube discovers ready, schedulable Kubernetes nodes matching a label selector.
type Kube struct {
	client   client.Client
	selector string
}

func NewKube(cl client.Client, selector string) *Kube {
	return &Kube{client: cl, selector: selector}
}

func (k *Kube) Type() string {
	return TypeKube
}

// Discover lists matching nodes, sorted by name.
func (k *Kube) Discover(ctx context.Context) ([]sweepv1.Worker, error) {
	sel, err := labels.Parse(k.selector)
	if err != nil {
		return nil, fmt.Errorf("invalid label selector %q: %w", k.selector, err)
	}

	var nodes corev1.NodeList
	if err := k.client.List(ctx, &nodes, client.MatchingLabelsSelector{Selector: sel}); err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	workers := make([]sweepv1.Worker, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		if node.Spec.Unschedulable || !nodeReady(&node) {
			log.V(1).Info("Skipping node", "node", node.Name, "unschedulable", node.Spec.Unschedulable)
			continue
		}
		workers = append(workers, sweepv1.Worker{
			Name:    node.Name,
			Address: internalIP(&node),
			Labels:  node.Labels,
		})
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].Name < workers[j].Name })
	log.Info("Discovered nodes", "selector", k.selector, "matched", len(nodes.Items), "workers", len(workers))
	return workers, nil
}

func nodeReady(node *corev1.Node) bool {
	for _, c := range node.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

func internalIP(node *corev1.Node) string {
	for _, a := range node.Status.Addresses {
		if a.Type == corev1.NodeInternalIP {
			return a.Address
		}
	}
	return ""
}
