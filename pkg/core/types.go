package core

import (
	"fmt"
	"time"
)

// SMFSpec models the desired state of an SMF workload.
type SMFSpec struct {
	Image               string            `json:"image,omitempty"`
	LogLevel            string            `json:"logLevel,omitempty"`
	SubsystemLogLevels  map[string]string `json:"subsystemLogLevels,omitempty"`
	TLS                 *TLSSpec          `json:"tls,omitempty"`
	NRFCache            *NRFCacheSpec     `json:"nrfCache,omitempty"`
	Database            *DatabaseSpec     `json:"database,omitempty"`
	SBIPort             *int32            `json:"sbiPort,omitempty"`
	Hostname            string            `json:"hostname,omitempty"`
	ResyncPeriodSeconds *int32            `json:"resyncPeriodSeconds,omitempty"`
}

// TLSSpec configures the SBI certificate lifecycle.
type TLSSpec struct {
	Enabled            *bool  `json:"enabled,omitempty"`
	CommonName         string `json:"commonName,omitempty"`
	SignerName         string `json:"signerName,omitempty"`
	RenewalWindowHours *int32 `json:"renewalWindowHours,omitempty"`
}

// NRFCacheSpec toggles the NRF discovery cache of the workload.
type NRFCacheSpec struct {
	Enabled                 *bool  `json:"enabled,omitempty"`
	EvictionIntervalSeconds *int32 `json:"evictionIntervalSeconds,omitempty"`
}

// DatabaseSpec controls the optional database relation.
type DatabaseSpec struct {
	Required bool   `json:"required,omitempty"`
	Name     string `json:"name,omitempty"`
}

// SMFStatus reports controller state.
type SMFStatus struct {
	Phase             string      `json:"phase,omitempty"`
	Message           string      `json:"message,omitempty"`
	Conditions        []Condition `json:"conditions,omitempty"`
	ConfigChecksum    string      `json:"configChecksum,omitempty"`
	CertificateState  string      `json:"certificateState,omitempty"`
	CertificateExpiry string      `json:"certificateExpiry,omitempty"` // RFC3339
	LastReconcileTime string      `json:"lastReconcileTime,omitempty"` // RFC3339
}

// Condition is a standard status condition.
type Condition struct {
	Type               string `json:"type"`
	Status             string `json:"status"` // True|False|Unknown
	Reason             string `json:"reason,omitempty"`
	Message            string `json:"message,omitempty"`
	LastTransitionTime string `json:"lastTransitionTime,omitempty"`
}

// RelationKind names an integration channel with a collaborating service.
type RelationKind string

// RelationSnapshot is the data one remote unit published on a relation at a point in time.
// A newer snapshot for the same (Kind, RemoteUnit) replaces the previous one entirely.
type RelationSnapshot struct {
	Kind       RelationKind
	RemoteUnit string
	Data       map[string]string
}

// Value returns the value published for key.
func (s RelationSnapshot) Value(key string) string {
	return s.Data[key]
}

// Equal reports whether two snapshots carry the same identity and data.
func (s RelationSnapshot) Equal(other RelationSnapshot) bool {
	if s.Kind != other.Kind || s.RemoteUnit != other.RemoteUnit || len(s.Data) != len(other.Data) {
		return false
	}
	for key, value := range s.Data {
		if otherValue, ok := other.Data[key]; !ok || otherValue != value {
			return false
		}
	}
	return true
}

// CertificatePhase enumerates the certificate lifecycle states.
type CertificatePhase string

const (
	CertificateNotRequested CertificatePhase = "NotRequested"
	CertificateRequested    CertificatePhase = "Requested"
	CertificateIssued       CertificatePhase = "Issued"
	CertificateExpired      CertificatePhase = "Expired"
)

// CertificateState is a read-only view of the certificate lifecycle.
type CertificateState struct {
	Phase       CertificatePhase
	CSR         []byte
	Certificate []byte
	PrivateKey  []byte
	NotAfter    time.Time
}

// Issued reports whether a usable certificate is held.
func (s CertificateState) Issued() bool { return s.Phase == CertificateIssued }

// Verdict is the outcome of a readiness evaluation.
type Verdict struct {
	Ready  bool
	Reason string
}

// Ready returns a passing verdict.
func Ready() Verdict { return Verdict{Ready: true} }

// Blocked returns a failing verdict with the provided reason.
func Blocked(reason string) Verdict { return Verdict{Reason: reason} }

func (v Verdict) String() string {
	if v.Ready {
		return "ready"
	}
	return fmt.Sprintf("blocked: %s", v.Reason)
}

// Phase is the coarse observable state of an SMF instance.
type Phase string

const (
	PhaseActive  Phase = "Active"
	PhaseWaiting Phase = "Waiting"
	PhaseBlocked Phase = "Blocked"
	PhaseError   Phase = "Error"
)

// UnitStatus is the short human readable status surfaced to operators.
type UnitStatus struct {
	Phase   Phase
	Message string
}

func (s UnitStatus) String() string {
	if s.Message == "" {
		return string(s.Phase)
	}
	return fmt.Sprintf("%s: %s", s.Phase, s.Message)
}

// RenderedConfig is the derived workload configuration.
type RenderedConfig struct {
	// Files maps absolute workload paths to their content.
	Files       map[string][]byte
	Layer       []byte
	Command     string
	Environment map[string]string
	Checksum    string
}
