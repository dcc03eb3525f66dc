package v1alpha1

import (
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"smfoperator/pkg/agents/summary"
	"smfoperator/pkg/core"
)

func TestDefaultAndValidate(t *testing.T) {
	smf := &SMF{ObjectMeta: metav1.ObjectMeta{Name: "smf", Namespace: "core"}}
	smf.Default()
	if smf.Spec.TLS == nil || smf.Spec.TLS.Enabled == nil || !*smf.Spec.TLS.Enabled {
		t.Fatalf("expected tls enabled by default, got %+v", smf.Spec.TLS)
	}
	if smf.Spec.SBIPort == nil || *smf.Spec.SBIPort != core.SBIPort {
		t.Fatalf("expected default sbi port, got %v", smf.Spec.SBIPort)
	}
	warnings, err := smf.ValidateCreate()
	if err != nil || len(warnings) != 0 {
		t.Fatalf("expected valid defaulted spec, got %v %v", warnings, err)
	}

	smf.Spec.LogLevel = "verbose"
	if _, err := smf.ValidateUpdate(smf.DeepCopy()); err == nil {
		t.Fatalf("expected invalid log level to be rejected")
	}
}

func TestValidateUpdateWarnings(t *testing.T) {
	old := &SMF{}
	old.Default()
	updated := old.DeepCopy()
	port := int32(29600)
	updated.Spec.SBIPort = &port
	disabled := false
	updated.Spec.TLS.Enabled = &disabled

	warnings, err := updated.ValidateUpdate(old)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected tls and port warnings, got %v", warnings)
	}
	if warnings, err := updated.ValidateDelete(); err != nil || warnings != nil {
		t.Fatalf("delete must always be allowed")
	}
}

func TestDeepCopyIsIndependent(t *testing.T) {
	smf := &SMF{ObjectMeta: metav1.ObjectMeta{Name: "smf", Labels: map[string]string{"a": "b"}}}
	smf.Spec.SubsystemLogLevels = map[string]string{"PFCP": "debug"}
	smf.Default()
	smf.Status.Conditions = []core.Condition{{Type: core.CondReady, Status: "True"}}

	copied := smf.DeepCopy()
	*copied.Spec.TLS.Enabled = false
	*copied.Spec.SBIPort = 1
	copied.Spec.SubsystemLogLevels["PFCP"] = "error"
	copied.Spec.Database.Required = true
	copied.Status.Conditions[0].Status = "False"
	copied.Labels["a"] = "c"

	if !*smf.Spec.TLS.Enabled || *smf.Spec.SBIPort != core.SBIPort || smf.Spec.SubsystemLogLevels["PFCP"] != "debug" {
		t.Fatalf("spec shared with copy: %+v", smf.Spec)
	}
	if smf.Spec.Database.Required || smf.Status.Conditions[0].Status != "True" || smf.Labels["a"] != "b" {
		t.Fatalf("copy not independent")
	}

	list := &SMFList{Items: []SMF{*smf}}
	listCopy := list.DeepCopyObject().(*SMFList)
	*listCopy.Items[0].Spec.SBIPort = 2
	if *list.Items[0].Spec.SBIPort != core.SBIPort {
		t.Fatalf("list items shared with copy")
	}
}

func TestApplyPassStatus(t *testing.T) {
	smf := &SMF{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	smf.ApplyPassStatus(&summary.Summary{
		Status:      core.UnitStatus{Phase: core.PhaseBlocked, Message: "fiveg_nrf relation missing"},
		Certificate: core.CertificateState{Phase: core.CertificateNotRequested},
	}, now)
	if smf.Status.Phase != "Blocked" || smf.Status.Message != "fiveg_nrf relation missing" || smf.Status.CertificateState != "NotRequested" {
		t.Fatalf("unexpected status %+v", smf.Status)
	}
	if len(smf.Status.Conditions) != 3 {
		t.Fatalf("expected three conditions, got %+v", smf.Status.Conditions)
	}
}
