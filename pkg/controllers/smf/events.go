package smf

import (
	"fmt"

	"smfoperator/pkg/core"
)

// EventKind tags the external trigger of a reconciliation pass.
type EventKind string

// Event kinds handled by the Reconciler.
const (
	EventRelationChanged      EventKind = "relation-changed"
	EventRelationBroken       EventKind = "relation-broken"
	EventCertificateAvailable EventKind = "certificate-available"
	EventCertificateRevoked   EventKind = "certificate-revoked"
	EventWorkloadStarted      EventKind = "workload-started"
	EventTick                 EventKind = "tick"
)

// Event is a tagged union; only the fields belonging to Kind are meaningful.
type Event struct {
	Kind EventKind

	// Snapshot is the data a remote unit published, for EventRelationChanged.
	Snapshot core.RelationSnapshot
	// Departed marks an EventRelationChanged whose remote unit left the relation.
	Departed bool

	// Relation names the relation of an EventRelationBroken.
	Relation core.RelationKind

	// Certificate, CA and CSR carry the authority's answer for EventCertificateAvailable.
	// EventCertificateRevoked only uses CSR.
	Certificate []byte
	CA          []byte
	CSR         []byte
}

// RelationChanged reports new data published by one remote unit.
func RelationChanged(snapshot core.RelationSnapshot) Event {
	return Event{Kind: EventRelationChanged, Snapshot: snapshot}
}

// RelationDeparted reports that a remote unit left a relation that stays joined.
func RelationDeparted(kind core.RelationKind, remoteUnit string) Event {
	return Event{Kind: EventRelationChanged, Snapshot: core.RelationSnapshot{Kind: kind, RemoteUnit: remoteUnit}, Departed: true}
}

// RelationBroken reports that a relation was removed entirely.
func RelationBroken(kind core.RelationKind) Event {
	return Event{Kind: EventRelationBroken, Relation: kind}
}

// CertificateAvailable reports a certificate the authority issued for csr.
func CertificateAvailable(certificate, ca, csr []byte) Event {
	return Event{Kind: EventCertificateAvailable, Certificate: certificate, CA: ca, CSR: csr}
}

// CertificateRevoked reports that the authority revoked or denied the request for csr.
func CertificateRevoked(csr []byte) Event {
	return Event{Kind: EventCertificateRevoked, CSR: csr}
}

// WorkloadStarted reports that the workload container (re)started.
func WorkloadStarted() Event { return Event{Kind: EventWorkloadStarted} }

// Tick is the periodic resync trigger.
func Tick() Event { return Event{Kind: EventTick} }

func (e Event) String() string {
	switch e.Kind {
	case EventRelationChanged:
		if e.Departed {
			return fmt.Sprintf("%s(%s %s departed)", e.Kind, e.Snapshot.Kind, e.Snapshot.RemoteUnit)
		}
		return fmt.Sprintf("%s(%s %s)", e.Kind, e.Snapshot.Kind, e.Snapshot.RemoteUnit)
	case EventRelationBroken:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Relation)
	default:
		return string(e.Kind)
	}
}
