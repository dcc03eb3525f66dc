package workload

import (
	"context"
	"strings"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"smfoperator/pkg/core"
	"smfoperator/pkg/render"
)

func newKubernetesHandle(t *testing.T) (*Kubernetes, client.Client) {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("scheme: %v", err)
	}
	kubeClient := fake.NewClientBuilder().WithScheme(scheme).Build()
	handle := NewKubernetes(kubeClient, KubernetesOptions{Namespace: "core", Name: "smf", Image: "ghcr.io/canonical/sdcore-smf:1.5"})
	return handle, kubeClient
}

func k8sRendered(checksumSeed string) core.RenderedConfig {
	cfg := rendered()
	cfg.Files[core.ConfigFile] = []byte("nrfUri: " + checksumSeed + "\n")
	cfg.Command = render.Command()
	cfg.Environment = render.Environment("10.1.1.7")
	cfg.Checksum = core.HashFiles(cfg.Files, cfg.Layer)
	return cfg
}

func TestKubernetesPushAndRestart(t *testing.T) {
	handle, kubeClient := newKubernetesHandle(t)
	ctx := context.Background()
	cfg := k8sRendered("https://nrf:29510")

	if !handle.CanConnect(ctx) || !handle.StorageAttached(ctx) {
		t.Fatalf("expected reachable api")
	}
	if applied, err := handle.AppliedChecksum(ctx); err != nil || applied != "" {
		t.Fatalf("expected no checksum, got %q %v", applied, err)
	}

	if err := handle.Push(ctx, cfg); err != nil {
		t.Fatalf("push: %v", err)
	}

	var configMap corev1.ConfigMap
	if err := kubeClient.Get(ctx, types.NamespacedName{Namespace: "core", Name: "smf-config"}, &configMap); err != nil {
		t.Fatalf("get configmap: %v", err)
	}
	if configMap.Data["smfcfg.yaml"] != "nrfUri: https://nrf:29510\n" || configMap.Labels[core.ManagedLabel] != "true" {
		t.Fatalf("unexpected configmap %+v", configMap)
	}

	var secret corev1.Secret
	if err := kubeClient.Get(ctx, types.NamespacedName{Namespace: "core", Name: "smf-tls"}, &secret); err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if string(secret.Data["smf.pem"]) != "cert" || string(secret.Data["smf.key"]) != "key" {
		t.Fatalf("unexpected secret data %+v", secret.Data)
	}

	var service corev1.Service
	if err := kubeClient.Get(ctx, types.NamespacedName{Namespace: "core", Name: "smf"}, &service); err != nil {
		t.Fatalf("get service: %v", err)
	}
	if service.Annotations[core.ScrapeAnnotation] != "true" || len(service.Spec.Ports) != 3 {
		t.Fatalf("unexpected service %+v", service)
	}
	if service.Spec.Ports[1].Protocol != corev1.ProtocolUDP || service.Spec.Ports[1].Port != core.PFCPPort {
		t.Fatalf("expected pfcp over udp, got %+v", service.Spec.Ports[1])
	}

	if err := handle.Restart(ctx, cfg); err != nil {
		t.Fatalf("restart: %v", err)
	}
	applied, err := handle.AppliedChecksum(ctx)
	if err != nil || applied != cfg.Checksum {
		t.Fatalf("expected applied checksum %s, got %s %v", cfg.Checksum, applied, err)
	}

	var deployment appsv1.Deployment
	if err := kubeClient.Get(ctx, types.NamespacedName{Namespace: "core", Name: "smf"}, &deployment); err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	container := deployment.Spec.Template.Spec.Containers[0]
	if strings.Join(container.Command, " ") != render.Command() || container.Image != "ghcr.io/canonical/sdcore-smf:1.5" {
		t.Fatalf("unexpected container %+v", container)
	}
	for _, env := range container.Env {
		if env.Name == "POD_IP" && (env.ValueFrom == nil || env.ValueFrom.FieldRef.FieldPath != "status.podIP") {
			t.Fatalf("POD_IP must come from the downward api")
		}
	}

	running, err := handle.Running(ctx)
	if err != nil || running {
		t.Fatalf("deployment without available replicas must not be running")
	}
	deployment.Status.AvailableReplicas = 1
	if err := kubeClient.Status().Update(ctx, &deployment); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if running, _ := handle.Running(ctx); !running {
		t.Fatalf("expected running deployment")
	}
}

func TestKubernetesReplanKeepsChecksum(t *testing.T) {
	handle, _ := newKubernetesHandle(t)
	ctx := context.Background()
	first := k8sRendered("https://nrf:29510")
	second := k8sRendered("https://nrf2:29510")

	if err := handle.Restart(ctx, first); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := handle.Replan(ctx, second); err != nil {
		t.Fatalf("replan: %v", err)
	}
	if applied, _ := handle.AppliedChecksum(ctx); applied != first.Checksum {
		t.Fatalf("replan must not roll the pods, got checksum %s", applied)
	}
	if err := handle.Restart(ctx, second); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if applied, _ := handle.AppliedChecksum(ctx); applied != second.Checksum {
		t.Fatalf("restart must roll the pods")
	}
}

func TestKubernetesRemoveTLSAndLimits(t *testing.T) {
	handle, kubeClient := newKubernetesHandle(t)
	ctx := context.Background()

	if err := handle.RemoveTLS(ctx); err != nil {
		t.Fatalf("remove missing secret: %v", err)
	}
	if err := handle.Push(ctx, k8sRendered("https://nrf:29510")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := handle.RemoveTLS(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	var secret corev1.Secret
	if err := kubeClient.Get(ctx, types.NamespacedName{Namespace: "core", Name: "smf-tls"}, &secret); err == nil {
		t.Fatalf("expected secret to be deleted")
	}

	huge := k8sRendered("https://nrf:29510")
	huge.Files[core.ConfigFile] = make([]byte, core.ConfigMapSizeLimitBytes+1)
	if err := handle.Push(ctx, huge); err == nil {
		t.Fatalf("expected oversized configuration to be rejected")
	}

	stray := k8sRendered("https://nrf:29510")
	stray.Files["/var/lib/smf/state"] = []byte("x")
	if err := handle.Push(ctx, stray); err == nil {
		t.Fatalf("expected file outside mounted volumes to be rejected")
	}
}
