package status

import (
	"testing"
	"time"

	"smfoperator/pkg/agents/summary"
	"smfoperator/pkg/core"
)

func TestComputeActive(t *testing.T) {
	notAfter := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sum := &summary.Summary{
		Status:      core.UnitStatus{Phase: core.PhaseActive},
		Checksum:    "abc",
		Certificate: core.CertificateState{Phase: core.CertificateIssued, NotAfter: notAfter},
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	status := Compute(core.SMFStatus{}, sum, now)
	if status.Phase != "Active" || status.ConfigChecksum != "abc" || status.CertificateState != "Issued" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.CertificateExpiry != notAfter.Format(time.RFC3339) || status.LastReconcileTime != now.Format(time.RFC3339) {
		t.Fatalf("unexpected timestamps: %+v", status)
	}
	ready := findCondition(status.Conditions, core.CondReady)
	if ready.Status != "True" || ready.Reason != "Active" {
		t.Fatalf("ready condition unexpected: %+v", ready)
	}
	if degraded := findCondition(status.Conditions, core.CondDegraded); degraded.Status != "False" {
		t.Fatalf("degraded condition unexpected: %+v", degraded)
	}
	if len(status.Conditions) != 3 || status.Conditions[0].Type != core.CondDegraded {
		t.Fatalf("conditions must be sorted by type: %+v", status.Conditions)
	}
}

func TestComputePhases(t *testing.T) {
	cases := []struct {
		name        string
		unit        core.UnitStatus
		progressing string
		degraded    string
	}{
		{name: "waiting", unit: core.UnitStatus{Phase: core.PhaseWaiting, Message: "waiting for SMF service to start"}, progressing: "True", degraded: "False"},
		{name: "blocked", unit: core.UnitStatus{Phase: core.PhaseBlocked, Message: "fiveg_nrf relation missing"}, progressing: "False", degraded: "True"},
		{name: "error", unit: core.UnitStatus{Phase: core.PhaseError, Message: "workload apply failed"}, progressing: "False", degraded: "True"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := Compute(core.SMFStatus{}, &summary.Summary{Status: tc.unit}, time.Now())
			if status.Phase != string(tc.unit.Phase) || status.Message != tc.unit.Message {
				t.Fatalf("unexpected phase: %+v", status)
			}
			if ready := findCondition(status.Conditions, core.CondReady); ready.Status != "False" {
				t.Fatalf("expected ready false, got %+v", ready)
			}
			if got := findCondition(status.Conditions, core.CondProgressing).Status; got != tc.progressing {
				t.Fatalf("progressing = %s, want %s", got, tc.progressing)
			}
			if got := findCondition(status.Conditions, core.CondDegraded).Status; got != tc.degraded {
				t.Fatalf("degraded = %s, want %s", got, tc.degraded)
			}
		})
	}
}

func TestComputeRetainsTransitionWhenUnchanged(t *testing.T) {
	prev := core.SMFStatus{Conditions: []core.Condition{{
		Type:               core.CondReady,
		Status:             "True",
		Reason:             "Active",
		Message:            "SMF service is running",
		LastTransitionTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}}}
	sum := &summary.Summary{Status: core.UnitStatus{Phase: core.PhaseActive}}
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	status := Compute(prev, sum, now)
	ready := findCondition(status.Conditions, core.CondReady)
	if ready.LastTransitionTime != prev.Conditions[0].LastTransitionTime {
		t.Fatalf("expected transition time to remain unchanged")
	}

	blocked := Compute(status, &summary.Summary{Status: core.UnitStatus{Phase: core.PhaseBlocked, Message: "certificate expired"}}, now.Add(time.Hour))
	ready = findCondition(blocked.Conditions, core.CondReady)
	if ready.LastTransitionTime != now.Add(time.Hour).Format(time.RFC3339) {
		t.Fatalf("expected new transition time on change, got %s", ready.LastTransitionTime)
	}
}

func TestComputeWithoutSummaryKeepsPhase(t *testing.T) {
	prev := core.SMFStatus{Phase: "Active", ConfigChecksum: "abc"}
	status := Compute(prev, nil, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if status.Phase != "Active" || status.ConfigChecksum != "abc" || status.LastReconcileTime == "" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func findCondition(conds []core.Condition, t string) core.Condition {
	for _, c := range conds {
		if c.Type == t {
			return c
		}
	}
	return core.Condition{}
}
