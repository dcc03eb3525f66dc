package adapters

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"smfoperator/pkg/certificates"
	"smfoperator/pkg/core"
)

func newFakeClient(t *testing.T, objects ...client.Object) client.Client {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("scheme: %v", err)
	}
	return fake.NewClientBuilder().WithScheme(scheme).WithObjects(objects...).Build()
}

func relationConfigMap(name, kind, unit, instance string, data map[string]string) *corev1.ConfigMap {
	configMap := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "core",
			Name:      name,
			Labels:    map[string]string{core.RelationLabel: kind, core.InstanceLabel: instance},
		},
		Data: data,
	}
	if unit != "" {
		configMap.Annotations = map[string]string{core.RemoteUnitAnnotation: unit}
	}
	return configMap
}

func TestListRelations(t *testing.T) {
	kubeClient := newFakeClient(t,
		relationConfigMap("nrf-1", "fiveg_nrf", "nrf/1", "smf", map[string]string{"url": "https://nrf-1:29510"}),
		relationConfigMap("nrf-0", "fiveg_nrf", "nrf/0", "smf", map[string]string{"url": "https://nrf-0:29510"}),
		relationConfigMap("webui", "sdcore_config", "", "smf", nil),
		relationConfigMap("other", "fiveg_nrf", "nrf/0", "smf-b", map[string]string{"url": "https://x:1"}),
		&corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Namespace: "core", Name: "plain", Labels: map[string]string{core.InstanceLabel: "smf"}}},
	)

	snapshots, err := NewControllerRuntimeClient(kubeClient).ListRelations(context.Background(), "core", "smf")
	if err != nil {
		t.Fatalf("list relations: %v", err)
	}
	want := []core.RelationSnapshot{
		{Kind: core.RelationNRF, RemoteUnit: "nrf/0", Data: map[string]string{"url": "https://nrf-0:29510"}},
		{Kind: core.RelationNRF, RemoteUnit: "nrf/1", Data: map[string]string{"url": "https://nrf-1:29510"}},
		{Kind: core.RelationSdcoreConfig, RemoteUnit: "webui"},
	}
	if diff := cmp.Diff(want, snapshots); diff != "" {
		t.Fatalf("unexpected snapshots (-want +got):\n%s", diff)
	}
}

func TestCSRAuthorityAndStatus(t *testing.T) {
	kubeClient := newFakeClient(t)
	ctx := context.Background()
	csrPEM := []byte("-----BEGIN CERTIFICATE REQUEST-----\nMIIB\n-----END CERTIFICATE REQUEST-----\n")
	authority := NewCSRAuthority(kubeClient, "core", "smf", "")
	adapter := NewControllerRuntimeClient(kubeClient)

	status, err := adapter.CertificateStatus(ctx, "core", "smf", csrPEM)
	if err != nil || status.Found {
		t.Fatalf("expected no request yet, got %+v %v", status, err)
	}

	if err := authority.RequestCertificate(ctx, csrPEM); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := authority.RequestCertificate(ctx, csrPEM); err != nil {
		t.Fatalf("request must be idempotent: %v", err)
	}

	name := CertificateRequestName("core", "smf", csrPEM)
	var request certificatesv1.CertificateSigningRequest
	if err := kubeClient.Get(ctx, types.NamespacedName{Name: name}, &request); err != nil {
		t.Fatalf("get csr: %v", err)
	}
	if request.Spec.SignerName != DefaultSignerName || len(request.Spec.Usages) != 4 || request.Labels[core.NamespaceLabel] != "core" {
		t.Fatalf("unexpected request %+v", request)
	}

	status, _ = adapter.CertificateStatus(ctx, "core", "smf", csrPEM)
	if !status.Found || status.Denied || len(status.Certificate) != 0 {
		t.Fatalf("expected pending request, got %+v", status)
	}

	request.Status.Certificate = []byte("issued")
	request.Status.Conditions = []certificatesv1.CertificateSigningRequestCondition{{Type: certificatesv1.CertificateApproved, Status: corev1.ConditionTrue}}
	if err := kubeClient.Status().Update(ctx, &request); err != nil {
		t.Fatalf("update status: %v", err)
	}
	status, _ = adapter.CertificateStatus(ctx, "core", "smf", csrPEM)
	if string(status.Certificate) != "issued" || status.Denied {
		t.Fatalf("expected issued certificate, got %+v", status)
	}

	request.Status.Conditions = append(request.Status.Conditions, certificatesv1.CertificateSigningRequestCondition{
		Type: certificatesv1.CertificateFailed, Status: corev1.ConditionTrue, Message: "signer unavailable",
	})
	if err := kubeClient.Status().Update(ctx, &request); err != nil {
		t.Fatalf("update status: %v", err)
	}
	status, _ = adapter.CertificateStatus(ctx, "core", "smf", csrPEM)
	if !status.Denied || status.Certificate != nil {
		t.Fatalf("expected failed request, got %+v", status)
	}

	if err := adapter.DeleteCertificateRequests(ctx, "core", "smf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if status, _ := adapter.CertificateStatus(ctx, "core", "smf", csrPEM); status.Found {
		t.Fatalf("expected request to be deleted")
	}
}

func TestSecretKeyStore(t *testing.T) {
	kubeClient := newFakeClient(t)
	ctx := context.Background()
	store := NewSecretKeyStore(kubeClient, "core", "smf", nil, nil)

	if _, found, err := store.Load(ctx); err != nil || found {
		t.Fatalf("expected empty store, got %v %v", found, err)
	}

	material := certificates.Material{PrivateKey: []byte("key"), CSR: []byte("csr")}
	if err := store.Save(ctx, material); err != nil {
		t.Fatalf("save: %v", err)
	}
	material.Certificate = []byte("cert")
	if err := store.Save(ctx, material); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := store.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: %v %v", found, err)
	}
	if diff := cmp.Diff(material, loaded); diff != "" {
		t.Fatalf("unexpected material (-want +got):\n%s", diff)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete must ignore missing secret: %v", err)
	}
	if _, found, _ := store.Load(ctx); found {
		t.Fatalf("expected secret to be gone")
	}
}
