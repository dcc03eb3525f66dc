package readiness

import (
	"testing"

	"smfoperator/pkg/core"
	"smfoperator/pkg/relations"
)

var (
	nrfSnapshot    = core.RelationSnapshot{Kind: core.RelationNRF, RemoteUnit: "nrf/0", Data: map[string]string{core.KeyNRFURL: "https://nrf:29510"}}
	certsJoined    = core.RelationSnapshot{Kind: core.RelationCertificates, RemoteUnit: "ca/0"}
	configSnapshot = core.RelationSnapshot{Kind: core.RelationSdcoreConfig, RemoteUnit: "webui/0", Data: map[string]string{core.KeyWebuiURL: "webui:9876"}}
	dbSnapshot     = core.RelationSnapshot{Kind: core.RelationDatabase, RemoteUnit: "db/0", Data: map[string]string{core.KeyDatabaseURIs: "mongodb://db:27017"}}
	issued         = core.CertificateState{Phase: core.CertificateIssued}
)

func TestEvaluatePriority(t *testing.T) {
	tls := Options{TLSEnabled: true}

	cases := []struct {
		name      string
		snapshots []core.RelationSnapshot
		cert      core.CertificateState
		opts      Options
		want      string
	}{{
		name: "nothing joined",
		opts: tls,
		want: "fiveg_nrf relation missing",
	}, {
		name:      "nrf joined without data",
		snapshots: []core.RelationSnapshot{{Kind: core.RelationNRF, RemoteUnit: "nrf/0"}},
		opts:      tls,
		want:      "waiting for fiveg_nrf relation data",
	}, {
		name:      "certificates missing",
		snapshots: []core.RelationSnapshot{nrfSnapshot, configSnapshot},
		opts:      tls,
		want:      "certificates relation missing",
	}, {
		name:      "database required",
		snapshots: []core.RelationSnapshot{nrfSnapshot, certsJoined, configSnapshot},
		cert:      issued,
		opts:      Options{TLSEnabled: true, DatabaseRequired: true},
		want:      "database relation missing",
	}, {
		name:      "certificate pending",
		snapshots: []core.RelationSnapshot{nrfSnapshot, certsJoined},
		cert:      core.CertificateState{Phase: core.CertificateRequested},
		opts:      tls,
		want:      "waiting for certificate",
	}, {
		name:      "certificate expired",
		snapshots: []core.RelationSnapshot{nrfSnapshot, certsJoined},
		cert:      core.CertificateState{Phase: core.CertificateExpired},
		opts:      tls,
		want:      "certificate expired",
	}, {
		name:      "config service missing",
		snapshots: []core.RelationSnapshot{nrfSnapshot, certsJoined},
		cert:      issued,
		opts:      tls,
		want:      "sdcore_config relation missing",
	}, {
		name:      "config service without data",
		snapshots: []core.RelationSnapshot{nrfSnapshot, certsJoined, {Kind: core.RelationSdcoreConfig, RemoteUnit: "webui/0"}},
		cert:      issued,
		opts:      tls,
		want:      "waiting for sdcore_config relation data",
	}, {
		name:      "ready with tls",
		snapshots: []core.RelationSnapshot{nrfSnapshot, certsJoined, configSnapshot, dbSnapshot},
		cert:      issued,
		opts:      Options{TLSEnabled: true, DatabaseRequired: true},
	}, {
		name: "ready without tls",
		snapshots: []core.RelationSnapshot{
			{Kind: core.RelationNRF, RemoteUnit: "nrf/0", Data: map[string]string{core.KeyNRFURL: "10.0.0.5:9090"}},
			configSnapshot,
		},
		cert: core.CertificateState{Phase: core.CertificateNotRequested},
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := Evaluate(relations.NewView(tc.snapshots...), tc.cert, tc.opts)
			if tc.want == "" {
				if !verdict.Ready {
					t.Fatalf("expected ready, got %s", verdict)
				}
				return
			}
			if verdict.Ready || verdict.Reason != tc.want {
				t.Fatalf("expected %q, got %s", tc.want, verdict)
			}
		})
	}
}

// Adding a relation never turns a Ready verdict into Blocked.
func TestEvaluateMonotonic(t *testing.T) {
	all := []core.RelationSnapshot{nrfSnapshot, certsJoined, configSnapshot, dbSnapshot,
		{Kind: core.RelationLogging, RemoteUnit: "loki/0", Data: map[string]string{core.KeyLokiURL: "http://loki:3100/loki/api/v1/push"}}}
	opts := Options{TLSEnabled: true}

	for mask := 0; mask < 1<<len(all); mask++ {
		var subset []core.RelationSnapshot
		for i := range all {
			if mask&(1<<i) != 0 {
				subset = append(subset, all[i])
			}
		}
		before := Evaluate(relations.NewView(subset...), issued, opts)
		for i := range all {
			if mask&(1<<i) != 0 {
				continue
			}
			after := Evaluate(relations.NewView(append(append([]core.RelationSnapshot(nil), subset...), all[i])...), issued, opts)
			if before.Ready && !after.Ready {
				t.Fatalf("adding %s turned ready into %s", all[i].Kind, after)
			}
		}
	}
}

func TestOptionsFrom(t *testing.T) {
	got := OptionsFrom(core.Options{TLSEnabled: true, DatabaseRequired: true})
	if !got.TLSEnabled || !got.DatabaseRequired {
		t.Fatalf("unexpected options %+v", got)
	}
}
