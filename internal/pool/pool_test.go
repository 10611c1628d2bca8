package pool

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

func TestStatic_Discover(t *testing.T) {
	s := NewStatic("w1", " ", "w2=10.0.0.2", "w1", "w3")

	workers, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []sweepv1.Worker{{Name: "w1"}, {Name: "w2", Address: "10.0.0.2"}, {Name: "w3"}}
	if len(workers) != len(want) {
		t.Fatalf("expected %d workers, got %d: %v", len(want), len(workers), workers)
	}
	for i := range want {
		if workers[i].Name != want[i].Name || workers[i].Address != want[i].Address {
			t.Errorf("worker %d: expected %+v, got %+v", i, want[i], workers[i])
		}
	}
	if workers[1].Host() != "10.0.0.2" || workers[0].Host() != "w1" {
		t.Errorf("unexpected hosts %q %q", workers[1].Host(), workers[0].Host())
	}
}

func TestStatic_Empty(t *testing.T) {
	workers, err := NewStatic().Discover(context.Background())
	if err != nil || len(workers) != 0 {
		t.Errorf("expected no workers and no error, got %v %v", workers, err)
	}
}

func node(name string, ready, unschedulable bool, lbls map[string]string) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: lbls},
		Spec:       corev1.NodeSpec{Unschedulable: unschedulable},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: status}},
			Addresses:  []corev1.NodeAddress{{Type: corev1.NodeInternalIP, Address: "10.1.0." + name[len(name)-1:]}},
		},
	}
}

func TestKube_Discover(t *testing.T) {
	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)

	pool := map[string]string{"sweeper.io/pool": "bench"}
	cl := fake.NewClientBuilder().WithScheme(scheme).WithObjects(
		node("node-3", true, false, pool),
		node("node-1", true, false, pool),
		node("node-2", false, false, pool),
		node("node-4", true, true, pool),
		node("node-5", true, false, map[string]string{"sweeper.io/pool": "other"}),
	).Build()

	workers, err := NewKube(cl, "sweeper.io/pool=bench").Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(workers) != 2 || workers[0].Name != "node-1" || workers[1].Name != "node-3" {
		t.Fatalf("expected [node-1 node-3], got %v", workers)
	}
	if workers[0].Address != "10.1.0.1" {
		t.Errorf("expected internal IP address, got %q", workers[0].Address)
	}
}

func TestKube_InvalidSelector(t *testing.T) {
	cl := fake.NewClientBuilder().Build()
	if _, err := NewKube(cl, "a in (").Discover(context.Background()); err == nil {
		t.Error("expected error for invalid selector")
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	if registry.discoverers == nil {
		t.Fatal("discoverers map is nil")
	}

	registry.Register(NewStatic("w1"))
	if !registry.Has(TypeStatic) {
		t.Error("static discoverer should be registered")
	}
	if registry.Has(TypeKube) {
		t.Error("kube discoverer should not be registered")
	}
	if _, err := registry.Get(TypeKube); err == nil {
		t.Error("expected error for unregistered pool type")
	}
	if d, err := registry.Get(TypeStatic); err != nil || d == nil {
		t.Errorf("unexpected lookup result %v %v", d, err)
	}
	if types := registry.Types(); len(types) != 1 || types[0] != TypeStatic {
		t.Errorf("unexpected types %v", types)
	}
}
