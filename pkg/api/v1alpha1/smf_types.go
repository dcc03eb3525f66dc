package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"smfoperator/pkg/core"
)

// SMFSpec defines the desired state of SMF.
type SMFSpec = core.SMFSpec

// SMFStatus defines observed state.
type SMFStatus = core.SMFStatus

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=smf
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Certificate",type="string",JSONPath=".status.certificateState"
// +kubebuilder:printcolumn:name="Message",type="string",JSONPath=".status.message",priority=1
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// SMF is the Schema for a managed Session Management Function.
type SMF struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   SMFSpec   `json:"spec,omitempty"`
	Status SMFStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// SMFList contains a list of SMF.
type SMFList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []SMF `json:"items"`
}

func init() {
	SchemeBuilder.Register(&SMF{}, &SMFList{})
}
