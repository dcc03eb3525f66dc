package relations

import (
	"strings"

	"smfoperator/pkg/core"
)

// View is an immutable set of relation snapshots assembled once per reconciliation pass.
type View struct {
	joined    map[core.RelationKind]bool
	snapshots map[core.RelationKind]core.RelationSnapshot
}

// NewView builds a View from complete snapshots; every kind given is considered joined.
// Intended for tests and for callers assembling a pass by hand.
func NewView(snapshots ...core.RelationSnapshot) View {
	store := NewStore()
	for _, snapshot := range snapshots {
		store.Join(snapshot.Kind)
		if len(snapshot.Data) > 0 {
			store.Put(snapshot)
		}
	}
	return store.Snapshot()
}

// Joined reports whether the relation was established when the view was taken.
func (v View) Joined(kind core.RelationKind) bool { return v.joined[kind] }

// Get returns the complete snapshot for kind.
func (v View) Get(kind core.RelationKind) (core.RelationSnapshot, bool) {
	snapshot, ok := v.snapshots[kind]
	return snapshot, ok
}

func (v View) value(kind core.RelationKind, key string) string {
	snapshot, ok := v.snapshots[kind]
	if !ok {
		return ""
	}
	return strings.TrimSpace(snapshot.Data[key])
}

// NRFURL is the discovery service address.
func (v View) NRFURL() string { return v.value(core.RelationNRF, core.KeyNRFURL) }

// WebuiURL is the shared configuration service address.
func (v View) WebuiURL() string { return v.value(core.RelationSdcoreConfig, core.KeyWebuiURL) }

// LokiURL is the log sink push endpoint.
func (v View) LokiURL() string { return v.value(core.RelationLogging, core.KeyLokiURL) }

// DatabaseURI returns the first URI of the comma separated uris field.
func (v View) DatabaseURI() string {
	for _, uri := range strings.Split(v.value(core.RelationDatabase, core.KeyDatabaseURIs), ",") {
		if uri = strings.TrimSpace(uri); uri != "" {
			return uri
		}
	}
	return ""
}

// Certificate is what the certificate authority published for our request.
type Certificate struct {
	Certificate string
	CA          string
	CSR         string
	Revoked     bool
}

// Certificate returns the CA data, if any.
func (v View) Certificate() (Certificate, bool) {
	snapshot, ok := v.snapshots[core.RelationCertificates]
	if !ok {
		return Certificate{}, false
	}
	return Certificate{
		Certificate: snapshot.Data[core.KeyCertificate],
		CA:          snapshot.Data[core.KeyCA],
		CSR:         snapshot.Data[core.KeyCSR],
		Revoked:     strings.EqualFold(strings.TrimSpace(snapshot.Data[core.KeyRevoked]), "true"),
	}, true
}
