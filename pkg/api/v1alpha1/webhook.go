package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"smfoperator/pkg/adapters/webhooks"
	"smfoperator/pkg/core"
)

var _ webhook.Defaulter = &SMF{}
var _ webhook.Validator = &SMF{}
var _ runtime.Object = &SMF{}
var _ runtime.Object = &SMFList{}

// Default implements webhook.Defaulter.
func (smf *SMF) Default() { webhooks.DefaultSMF(&smf.Spec) }

// SetupWebhookWithManager registers the webhook with the provided manager.
func (smf *SMF) SetupWebhookWithManager(manager ctrl.Manager) error {
	return ctrl.NewWebhookManagedBy(manager).
		For(smf).
		Complete()
}

// ValidateCreate implements webhook.Validator.
func (smf *SMF) ValidateCreate() (admission.Warnings, error) {
	if err := webhooks.ValidateSMF(&smf.Spec, nil); err != nil {
		return nil, err
	}

	return tlsWarnings(&smf.Spec), nil
}

// ValidateUpdate implements webhook.Validator.
func (smf *SMF) ValidateUpdate(old runtime.Object) (admission.Warnings, error) {
	previous, _ := old.(*SMF)

	var oldSpec *core.SMFSpec
	if previous != nil {
		oldSpec = &previous.Spec
	}
	if err := webhooks.ValidateSMF(&smf.Spec, oldSpec); err != nil {
		return nil, err
	}

	warnings := tlsWarnings(&smf.Spec)
	if oldSpec != nil && oldSpec.SBIPort != nil && smf.Spec.SBIPort != nil && *oldSpec.SBIPort != *smf.Spec.SBIPort {
		warnings = append(warnings, "changing sbiPort restarts the SMF workload")
	}

	return warnings, nil
}

// ValidateDelete implements webhook.Validator.
func (smf *SMF) ValidateDelete() (admission.Warnings, error) {
	return nil, nil
}

func tlsWarnings(spec *core.SMFSpec) admission.Warnings {
	if spec.TLS != nil && spec.TLS.Enabled != nil && !*spec.TLS.Enabled {
		return admission.Warnings{"tls is disabled, the SBI is served over plain http"}
	}

	return nil
}

// DeepCopyInto copies the receiver into out.
func (smf *SMF) DeepCopyInto(out *SMF) {
	if smf == nil || out == nil {
		return
	}
	*out = *smf
	smf.ObjectMeta.DeepCopyInto(&out.ObjectMeta)

	out.Spec = deepCopySpec(&smf.Spec)
	out.Status = deepCopyStatus(&smf.Status)
}

// DeepCopy creates a new deep copy of the receiver.
func (smf *SMF) DeepCopy() *SMF {
	if smf == nil {
		return nil
	}

	out := new(SMF)

	smf.DeepCopyInto(out)
	return out
}

// DeepCopyObject returns a deep copy as a runtime.Object.
func (smf *SMF) DeepCopyObject() runtime.Object {
	if smf == nil {
		return nil
	}

	return smf.DeepCopy()
}

// DeepCopyInto copies the receiver into out.
func (smfList *SMFList) DeepCopyInto(out *SMFList) {
	if smfList == nil || out == nil {
		return
	}
	*out = *smfList
	smfList.ListMeta.DeepCopyInto(&out.ListMeta)

	if smfList.Items != nil {
		out.Items = make([]SMF, len(smfList.Items))

		for index := range smfList.Items {
			smfList.Items[index].DeepCopyInto(&out.Items[index])
		}
	}
}

// DeepCopy creates a new deep copy of the list.
func (smfList *SMFList) DeepCopy() *SMFList {
	if smfList == nil {
		return nil
	}

	out := new(SMFList)

	smfList.DeepCopyInto(out)
	return out
}

// DeepCopyObject returns a deep copy of the list as a runtime.Object.
func (smfList *SMFList) DeepCopyObject() runtime.Object {
	if smfList == nil {
		return nil
	}

	return smfList.DeepCopy()
}

func deepCopySpec(source *core.SMFSpec) core.SMFSpec {
	if source == nil {
		return core.SMFSpec{}
	}
	copiedSpec := *source

	if source.SubsystemLogLevels != nil {
		copiedSpec.SubsystemLogLevels = make(map[string]string, len(source.SubsystemLogLevels))

		for subsystem, level := range source.SubsystemLogLevels {
			copiedSpec.SubsystemLogLevels[subsystem] = level
		}
	}

	if source.TLS != nil {
		tlsCopy := *source.TLS
		tlsCopy.Enabled = copyBool(source.TLS.Enabled)
		tlsCopy.RenewalWindowHours = copyInt32(source.TLS.RenewalWindowHours)
		copiedSpec.TLS = &tlsCopy
	}

	if source.NRFCache != nil {
		cacheCopy := *source.NRFCache
		cacheCopy.Enabled = copyBool(source.NRFCache.Enabled)
		cacheCopy.EvictionIntervalSeconds = copyInt32(source.NRFCache.EvictionIntervalSeconds)
		copiedSpec.NRFCache = &cacheCopy
	}

	if source.Database != nil {
		databaseCopy := *source.Database
		copiedSpec.Database = &databaseCopy
	}

	copiedSpec.SBIPort = copyInt32(source.SBIPort)
	copiedSpec.ResyncPeriodSeconds = copyInt32(source.ResyncPeriodSeconds)

	return copiedSpec
}

func deepCopyStatus(source *core.SMFStatus) core.SMFStatus {
	if source == nil {
		return core.SMFStatus{}
	}
	copiedStatus := *source

	if source.Conditions != nil {
		copiedStatus.Conditions = append([]core.Condition(nil), source.Conditions...)
	}

	return copiedStatus
}

func copyBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func copyInt32(value *int32) *int32 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
