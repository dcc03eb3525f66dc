package v1alpha1

import (
	"time"

	"smfoperator/pkg/agents/status"
	"smfoperator/pkg/agents/summary"
)

// ApplyPassStatus updates status fields from the outcome of a reconciliation pass.
func (smf *SMF) ApplyPassStatus(sum *summary.Summary, now time.Time) {
	smf.Status = status.Compute(smf.Status, sum, now)
}
