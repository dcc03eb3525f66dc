package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"smfoperator/pkg/agents/summary"
	"smfoperator/pkg/core"
)

var certificatePhases = []core.CertificatePhase{
	core.CertificateNotRequested,
	core.CertificateRequested,
	core.CertificateIssued,
	core.CertificateExpired,
}

// Recorder provides helpers for emitting Prometheus metrics about reconciliation passes.
type Recorder struct {
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	restarts      prometheus.Counter
	applyFailures prometheus.Counter
	csrs          prometheus.Counter
	certificate   *prometheus.GaugeVec
	expiry        *prometheus.GaugeVec
}

var defaultRecorder = newRecorder(ctrlmetrics.Registry)

// Default returns the shared metrics recorder registered with controller-runtime.
func Default() *Recorder { return defaultRecorder }

// NewRecorder creates a Recorder bound to the provided registry. A nil registry leaves the
// collectors unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder { return newRecorder(reg) }

func newRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smf_reconcile_passes_total",
			Help: "Total number of SMF reconciliation passes partitioned by resulting phase.",
		}, []string{"phase"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smf_reconcile_pass_seconds",
			Help:    "Histogram of reconciliation pass durations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smf_workload_restarts_total",
			Help: "Total number of SMF workload restarts caused by configuration changes.",
		}),
		applyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smf_workload_apply_failures_total",
			Help: "Total number of passes that exhausted their workload apply retries.",
		}),
		csrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smf_certificate_requests_total",
			Help: "Total number of certificate signing requests handed to the signer.",
		}),
		certificate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smf_certificate_state",
			Help: "Certificate lifecycle state per SMF instance, 1 for the current state.",
		}, []string{"namespace", "name", "state"}),
		expiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smf_certificate_expiry_timestamp_seconds",
			Help: "Expiry of the issued SMF certificate as a unix timestamp.",
		}, []string{"namespace", "name"}),
	}
	if reg != nil {
		reg.MustRegister(r.passes, r.passDuration, r.restarts, r.applyFailures, r.csrs, r.certificate, r.expiry)
	}
	return r
}

// ObservePass records the outcome of one reconciliation pass of namespace/name.
func (r *Recorder) ObservePass(namespace, name string, sum *summary.Summary) {
	if r == nil || sum == nil {
		return
	}
	r.passes.WithLabelValues(string(sum.Status.Phase)).Inc()
	r.passDuration.Observe(sum.Duration.Seconds())
	r.restarts.Add(float64(sum.Count(summary.ActionRestarted)))
	r.csrs.Add(float64(sum.Count(summary.ActionCSREmitted)))
	if sum.Status.Phase == core.PhaseError {
		r.applyFailures.Inc()
	}

	if sum.Certificate.Phase == "" {
		return
	}
	for _, phase := range certificatePhases {
		value := 0.0
		if phase == sum.Certificate.Phase {
			value = 1
		}
		r.certificate.WithLabelValues(namespace, name, string(phase)).Set(value)
	}
	if sum.Certificate.Issued() && !sum.Certificate.NotAfter.IsZero() {
		r.expiry.WithLabelValues(namespace, name).Set(float64(sum.Certificate.NotAfter.Unix()))
	} else {
		r.expiry.DeleteLabelValues(namespace, name)
	}
}

// Forget drops the per-instance series of a deleted SMF.
func (r *Recorder) Forget(namespace, name string) {
	if r == nil {
		return
	}
	for _, phase := range certificatePhases {
		r.certificate.DeleteLabelValues(namespace, name, string(phase))
	}
	r.expiry.DeleteLabelValues(namespace, name)
}
