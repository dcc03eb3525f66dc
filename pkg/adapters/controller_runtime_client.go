package adapters

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"smfoperator/pkg/core"
)

type controllerRuntimeClient struct {
	client client.Client
}

// NewControllerRuntimeClient returns a KubeClient backed by a controller-runtime client.Client.
func NewControllerRuntimeClient(kubeClient client.Client) KubeClient {
	return &controllerRuntimeClient{client: kubeClient}
}

// ListRelations maps relation ConfigMaps labelled for the instance onto relation snapshots.
func (clientAdapter *controllerRuntimeClient) ListRelations(ctx context.Context, namespace, instance string) ([]core.RelationSnapshot, error) {
	var configMapList corev1.ConfigMapList

	if err := clientAdapter.client.List(ctx, &configMapList,
		client.InNamespace(namespace),
		client.MatchingLabels{core.InstanceLabel: instance},
		client.HasLabels{core.RelationLabel},
	); err != nil {
		return nil, fmt.Errorf("list relation configmaps: %w", err)
	}

	snapshots := make([]core.RelationSnapshot, 0, len(configMapList.Items))

	for _, configMap := range configMapList.Items {
		if !configMap.DeletionTimestamp.IsZero() {
			continue
		}

		remoteUnit := configMap.Annotations[core.RemoteUnitAnnotation]
		if remoteUnit == "" {
			remoteUnit = configMap.Name
		}

		snapshots = append(snapshots, core.RelationSnapshot{
			Kind:       core.RelationKind(configMap.Labels[core.RelationLabel]),
			RemoteUnit: remoteUnit,
			Data:       copyStringMap(configMap.Data),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Kind != snapshots[j].Kind {
			return snapshots[i].Kind < snapshots[j].Kind
		}
		return snapshots[i].RemoteUnit < snapshots[j].RemoteUnit
	})

	return snapshots, nil
}

// CertificateStatus looks up the signing request created for csrPEM.
func (clientAdapter *controllerRuntimeClient) CertificateStatus(ctx context.Context, namespace, instance string, csrPEM []byte) (CertificateStatus, error) {
	var request certificatesv1.CertificateSigningRequest

	if err := clientAdapter.client.Get(ctx, types.NamespacedName{Name: CertificateRequestName(namespace, instance, csrPEM)}, &request); err != nil {
		if apierrors.IsNotFound(err) {
			return CertificateStatus{}, nil
		}

		return CertificateStatus{}, fmt.Errorf("get certificate signing request: %w", err)
	}

	if !bytes.Equal(bytes.TrimSpace(request.Spec.Request), bytes.TrimSpace(csrPEM)) {
		return CertificateStatus{}, nil
	}

	status := CertificateStatus{Found: true}

	for _, condition := range request.Status.Conditions {
		if condition.Status == corev1.ConditionFalse {
			continue
		}

		switch condition.Type {
		case certificatesv1.CertificateDenied, certificatesv1.CertificateFailed:
			status.Denied = true
			status.Message = fmt.Sprintf("%s: %s", condition.Type, condition.Message)
		}
	}

	if !status.Denied && len(request.Status.Certificate) > 0 {
		status.Certificate = append([]byte(nil), request.Status.Certificate...)
	}

	return status, nil
}

// DeleteCertificateRequests removes the instance's signing requests, ignoring missing ones.
func (clientAdapter *controllerRuntimeClient) DeleteCertificateRequests(ctx context.Context, namespace, instance string) error {
	var requestList certificatesv1.CertificateSigningRequestList

	if err := clientAdapter.client.List(ctx, &requestList, client.MatchingLabels(requestLabels(namespace, instance))); err != nil {
		return fmt.Errorf("list certificate signing requests: %w", err)
	}

	for index := range requestList.Items {
		if err := client.IgnoreNotFound(clientAdapter.client.Delete(ctx, &requestList.Items[index])); err != nil {
			return fmt.Errorf("delete certificate signing request %s: %w", requestList.Items[index].Name, err)
		}
	}

	return nil
}

// copyStringMap duplicates a map so callers can mutate the returned value safely.
func copyStringMap(source map[string]string) map[string]string {
	if len(source) == 0 {
		return nil
	}

	copied := make(map[string]string, len(source))

	for key, value := range source {
		copied[key] = value
	}

	return copied
}
