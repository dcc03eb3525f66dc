package adapters

import (
	"context"
	"fmt"

	certificatesv1 "k8s.io/api/certificates/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"smfoperator/pkg/certificates"
	"smfoperator/pkg/core"
)

// DefaultSignerName is used when the SMF spec leaves tls.signerName empty.
const DefaultSignerName = "smf.sdcore.io/sbi"

// CSRAuthority hands certificate signing requests to the cluster signer as
// certificates.k8s.io/v1 CertificateSigningRequest objects.
type CSRAuthority struct {
	client     client.Client
	namespace  string
	instance   string
	signerName string
}

var _ certificates.Authority = &CSRAuthority{}

// NewCSRAuthority returns an Authority creating signing requests on behalf of one SMF instance.
func NewCSRAuthority(kubeClient client.Client, namespace, instance, signerName string) *CSRAuthority {
	if signerName == "" {
		signerName = DefaultSignerName
	}
	return &CSRAuthority{client: kubeClient, namespace: namespace, instance: instance, signerName: signerName}
}

// CertificateRequestName derives the cluster-scoped object name from the CSR content so the same
// request always maps onto the same object.
func CertificateRequestName(namespace, instance string, csrPEM []byte) string {
	return fmt.Sprintf("%s-%s-%s", namespace, instance, core.HashBytes(csrPEM)[:10])
}

func requestLabels(namespace, instance string) map[string]string {
	return map[string]string{
		core.ManagedLabel:   "true",
		core.InstanceLabel:  instance,
		core.NamespaceLabel: namespace,
	}
}

// RequestCertificate creates the signing request. An existing request for the same CSR is kept.
func (authority *CSRAuthority) RequestCertificate(ctx context.Context, csrPEM []byte) error {
	request := certificatesv1.CertificateSigningRequest{
		ObjectMeta: metav1.ObjectMeta{
			Name:        CertificateRequestName(authority.namespace, authority.instance, csrPEM),
			Labels:      requestLabels(authority.namespace, authority.instance),
			Annotations: map[string]string{core.CSRHashAnnotation: core.HashBytes(csrPEM)},
		},
		Spec: certificatesv1.CertificateSigningRequestSpec{
			Request:    append([]byte(nil), csrPEM...),
			SignerName: authority.signerName,
			Usages: []certificatesv1.KeyUsage{
				certificatesv1.UsageDigitalSignature,
				certificatesv1.UsageKeyEncipherment,
				certificatesv1.UsageServerAuth,
				certificatesv1.UsageClientAuth,
			},
		},
	}

	if err := authority.client.Create(ctx, &request); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("create certificate signing request: %w", err)
	}
	return nil
}
