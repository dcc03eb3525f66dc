package webhooks

import (
	core "smfoperator/pkg/core"
)

// DefaultSMF applies server-side style defaults to the incoming SMF spec. The webhook deals
// strictly with the spec portion of the resource because status is managed by the controller.
func DefaultSMF(spec *core.SMFSpec) {
	if spec == nil {
		return
	}
	core.DefaultSpec(spec)
}
