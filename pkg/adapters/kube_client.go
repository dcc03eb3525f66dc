package adapters

import (
	"context"

	"smfoperator/pkg/core"
)

// KubeClient defines the cluster reads the SMF controller needs beyond its own objects.
type KubeClient interface {
	// ListRelations returns one snapshot per relation ConfigMap of the instance. A snapshot
	// with empty Data marks a joined relation whose remote unit has not published yet.
	ListRelations(ctx context.Context, namespace, instance string) ([]core.RelationSnapshot, error)
	// CertificateStatus reports what the signer did with the request carrying csrPEM.
	CertificateStatus(ctx context.Context, namespace, instance string, csrPEM []byte) (CertificateStatus, error)
	// DeleteCertificateRequests removes every signing request created for the instance.
	DeleteCertificateRequests(ctx context.Context, namespace, instance string) error
}

// CertificateStatus is the signer's answer to one certificate signing request.
type CertificateStatus struct {
	// Found is false when no request exists for the CSR.
	Found       bool
	Certificate []byte
	// Denied is set once the request was denied or failed; such a request never yields a certificate.
	Denied  bool
	Message string
}
