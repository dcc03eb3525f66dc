package adapters

import (
	"fmt"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"smfoperator/pkg/agents/summary"
	smfv1alpha1 "smfoperator/pkg/api/v1alpha1"
	"smfoperator/pkg/core"
)

type fakeEventRecorder struct {
	events []recordedEvent
}

type recordedEvent struct {
	eventType string
	reason    string
	message   string
}

func (f *fakeEventRecorder) Event(object runtime.Object, eventtype, reason, message string) {
	f.events = append(f.events, recordedEvent{eventType: eventtype, reason: reason, message: message})
}

func (f *fakeEventRecorder) Eventf(object runtime.Object, eventtype, reason, messageFmt string, args ...interface{}) {
	f.events = append(f.events, recordedEvent{eventType: eventtype, reason: reason, message: fmt.Sprintf(messageFmt, args...)})
}

func (f *fakeEventRecorder) PastEventf(object runtime.Object, timestamp metav1.Time, eventtype, reason, messageFmt string, args ...interface{}) {
}
func (f *fakeEventRecorder) AnnotatedEventf(object runtime.Object, annotations map[string]string, eventtype, reason, messageFmt string, args ...interface{}) {
}

func TestEventEmitter(t *testing.T) {
	rec := &fakeEventRecorder{}
	emitter := NewEventEmitter(rec)
	obj := &smfv1alpha1.SMF{}
	sum := &summary.Summary{Checksum: "0123456789abcdef", Status: core.UnitStatus{Phase: core.PhaseActive}}
	sum.Record(summary.ActionCSREmitted, "")
	sum.Record(summary.ActionCertificateIssued, "2026-01-31T00:00:00Z")
	sum.Record(summary.ActionPushed, core.ConfigFile)
	sum.Record(summary.ActionRestarted, "")
	emitter.EmitSummary(obj, sum)
	if len(rec.events) != 3 {
		t.Fatalf("expected 3 events, got %+v", rec.events)
	}
	if rec.events[0].reason != "CertificateRequested" || rec.events[0].eventType != corev1.EventTypeNormal {
		t.Fatalf("unexpected first event: %+v", rec.events[0])
	}
	if rec.events[2].reason != "WorkloadRestarted" || rec.events[2].message != "Restarted SMF with configuration 0123456789ab" {
		t.Fatalf("unexpected restart event: %+v", rec.events[2])
	}

	blocked := &summary.Summary{Status: core.UnitStatus{Phase: core.PhaseBlocked, Message: "fiveg_nrf relation missing"}}
	blocked.Record(summary.ActionCertificateRejected, "public key mismatch")
	emitter.EmitSummary(obj, blocked)
	if len(rec.events) != 5 {
		t.Fatalf("expected rejection and blocked events, got %+v", rec.events)
	}
	if last := rec.events[4]; last.reason != "Blocked" || last.eventType != corev1.EventTypeWarning || last.message != "fiveg_nrf relation missing" {
		t.Fatalf("unexpected blocked event: %+v", last)
	}

	emitter.EmitError(obj, fmt.Errorf("boom"))
	if len(rec.events) != 6 {
		t.Fatalf("expected error event appended, got %d", len(rec.events))
	}
	last := rec.events[len(rec.events)-1]
	if last.reason != "ReconcileError" || last.eventType != corev1.EventTypeWarning {
		t.Fatalf("unexpected error event: %+v", last)
	}

	var nilEmitter *EventEmitter
	nilEmitter.EmitSummary(obj, sum)
	nilEmitter.EmitError(obj, fmt.Errorf("ignored"))
}
