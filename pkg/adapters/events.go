package adapters

import (
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"smfoperator/pkg/agents/summary"
	"smfoperator/pkg/core"
)

// EventEmitter wraps a Kubernetes EventRecorder to provide high level helpers.
type EventEmitter struct {
	recorder record.EventRecorder
}

// NewEventEmitter constructs an EventEmitter.
func NewEventEmitter(r record.EventRecorder) *EventEmitter {
	return &EventEmitter{recorder: r}
}

// EmitSummary emits events for the side effects of a pass and for a Blocked or Error outcome.
// Pushes and replans are routine and not reported.
func (e *EventEmitter) EmitSummary(obj client.Object, sum *summary.Summary) {
	if e == nil || e.recorder == nil || obj == nil || sum == nil {
		return
	}
	for _, action := range sum.Actions {
		switch action.Action {
		case summary.ActionCSREmitted:
			e.recorder.Event(obj, corev1.EventTypeNormal, "CertificateRequested", "Certificate signing request sent to the signer")
		case summary.ActionCertificateIssued:
			e.recorder.Eventf(obj, corev1.EventTypeNormal, "CertificateIssued", "Certificate issued, valid until %s", action.Detail)
		case summary.ActionCertificateRejected:
			e.recorder.Eventf(obj, corev1.EventTypeWarning, "CertificateRejected", "Certificate rejected: %s", action.Detail)
		case summary.ActionCertificateExpired:
			e.recorder.Event(obj, corev1.EventTypeNormal, "CertificateExpired", "Certificate is within the renewal window, requesting a new one")
		case summary.ActionCertificateReset:
			e.recorder.Event(obj, corev1.EventTypeNormal, "CertificateReset", "Certificate material removed")
		case summary.ActionRestarted:
			e.recorder.Eventf(obj, corev1.EventTypeNormal, "WorkloadRestarted", "Restarted SMF with configuration %s", shortChecksum(sum.Checksum))
		}
	}
	switch sum.Status.Phase {
	case core.PhaseBlocked:
		e.recorder.Event(obj, corev1.EventTypeWarning, "Blocked", sum.Status.Message)
	case core.PhaseError:
		e.recorder.Event(obj, corev1.EventTypeWarning, "ApplyFailed", sum.Status.Message)
	}
}

// EmitError emits a warning event for reconciliation errors.
func (e *EventEmitter) EmitError(obj client.Object, err error) {
	if e == nil || e.recorder == nil || obj == nil || err == nil {
		return
	}
	e.recorder.Eventf(obj, corev1.EventTypeWarning, "ReconcileError", "Reconcile failed: %v", err)
}

func shortChecksum(checksum string) string {
	if len(checksum) > 12 {
		return checksum[:12]
	}
	return checksum
}
