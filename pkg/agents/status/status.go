package status

import (
	"fmt"
	"sort"
	"time"

	"smfoperator/pkg/agents/summary"
	"smfoperator/pkg/core"
)

// Compute builds an SMFStatus from the provided pass summary. A nil summary keeps the
// previous phase and only refreshes the reconcile time.
func Compute(previous core.SMFStatus, sum *summary.Summary, now time.Time) core.SMFStatus {
	status := previous
	timestamp := now.UTC().Format(time.RFC3339)
	status.LastReconcileTime = timestamp
	if sum == nil {
		return status
	}

	status.Phase = string(sum.Status.Phase)
	status.Message = sum.Status.Message
	if sum.Checksum != "" {
		status.ConfigChecksum = sum.Checksum
	}
	if sum.Certificate.Phase != "" {
		status.CertificateState = string(sum.Certificate.Phase)
	}
	status.CertificateExpiry = ""
	if !sum.Certificate.NotAfter.IsZero() && sum.Certificate.Phase != core.CertificateNotRequested {
		status.CertificateExpiry = sum.Certificate.NotAfter.UTC().Format(time.RFC3339)
	}
	status.Conditions = mergeConditions(previous.Conditions, desiredConditions(sum.Status, timestamp))
	return status
}

func desiredConditions(unit core.UnitStatus, timestamp string) map[string]core.Condition {
	ready := core.Condition{Type: core.CondReady, Status: "False", Reason: string(unit.Phase), Message: unit.Message, LastTransitionTime: timestamp}
	progressing := core.Condition{Type: core.CondProgressing, Status: "False", Reason: "Idle", Message: "no pending work", LastTransitionTime: timestamp}
	degraded := core.Condition{Type: core.CondDegraded, Status: "False", Reason: "Healthy", Message: "no errors", LastTransitionTime: timestamp}

	switch unit.Phase {
	case core.PhaseActive:
		ready.Status = "True"
		ready.Reason = "Active"
		ready.Message = "SMF service is running"

	case core.PhaseWaiting:
		progressing.Status = "True"
		progressing.Reason = "Waiting"
		progressing.Message = unit.Message

	case core.PhaseBlocked:
		progressing.Reason = "Blocked"
		progressing.Message = "waiting for operator action or relation data"
		degraded.Status = "True"
		degraded.Reason = "Blocked"
		degraded.Message = unit.Message

	case core.PhaseError:
		progressing.Reason = "Error"
		progressing.Message = "paused due to error"
		degraded.Status = "True"
		degraded.Reason = "Error"
		degraded.Message = fmt.Sprintf("reconciliation failed: %s", unit.Message)

	default:
		ready.Status = "Unknown"
		ready.Reason = "Reconciling"
		ready.Message = "waiting for reconciliation"
	}

	return map[string]core.Condition{
		core.CondReady:       ready,
		core.CondProgressing: progressing,
		core.CondDegraded:    degraded,
	}
}

func mergeConditions(previous []core.Condition, desired map[string]core.Condition) []core.Condition {
	byType := map[string]core.Condition{}
	for _, cond := range previous {
		byType[cond.Type] = cond
	}
	result := make([]core.Condition, 0, len(desired))
	for _, cond := range desired {
		if prev, ok := byType[cond.Type]; ok {
			if prev.Status == cond.Status && prev.Reason == cond.Reason && prev.Message == cond.Message {
				cond.LastTransitionTime = prev.LastTransitionTime
			}
		}
		result = append(result, cond)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}
