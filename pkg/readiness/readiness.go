package readiness

import (
	"fmt"

	"smfoperator/pkg/core"
	"smfoperator/pkg/relations"
)

// Options selects which dependencies are mandatory.
type Options struct {
	TLSEnabled       bool
	DatabaseRequired bool
}

// OptionsFrom extracts the readiness switches from resolved instance options.
func OptionsFrom(opts core.Options) Options {
	return Options{TLSEnabled: opts.TLSEnabled, DatabaseRequired: opts.DatabaseRequired}
}

// Evaluate returns the first unmet precondition in fixed priority order, or Ready.
// Mandatory relations come first, then the certificate, then the shared config service.
func Evaluate(view relations.View, cert core.CertificateState, opts Options) core.Verdict {
	for _, kind := range mandatoryRelations(opts) {
		if verdict := relationVerdict(view, kind); !verdict.Ready {
			return verdict
		}
	}

	if opts.TLSEnabled {
		switch cert.Phase {
		case core.CertificateIssued:
		case core.CertificateExpired:
			return core.Blocked("certificate expired")
		default:
			return core.Blocked("waiting for certificate")
		}
	}

	return relationVerdict(view, core.RelationSdcoreConfig)
}

func mandatoryRelations(opts Options) []core.RelationKind {
	kinds := []core.RelationKind{core.RelationNRF}
	if opts.TLSEnabled {
		kinds = append(kinds, core.RelationCertificates)
	}
	if opts.DatabaseRequired {
		kinds = append(kinds, core.RelationDatabase)
	}
	return kinds
}

func relationVerdict(view relations.View, kind core.RelationKind) core.Verdict {
	if !view.Joined(kind) {
		return core.Blocked((&core.MissingDependencyError{Relation: kind}).Error())
	}
	// The certificates relation only needs to exist here; its data is judged by the
	// certificate state.
	if kind == core.RelationCertificates {
		return core.Ready()
	}
	if _, ok := view.Get(kind); !ok {
		return core.Blocked(fmt.Sprintf("waiting for %s relation data", kind))
	}
	return core.Ready()
}
