package smf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/juju/clock"

	"smfoperator/pkg/agents/summary"
	"smfoperator/pkg/certificates"
	"smfoperator/pkg/core"
	"smfoperator/pkg/readiness"
	"smfoperator/pkg/relations"
	"smfoperator/pkg/render"
	"smfoperator/pkg/workload"
)

// Status messages that do not come from a readiness verdict.
const (
	msgWorkloadUnreachable = "waiting for workload to be reachable"
	msgStorageMissing      = "waiting for storage to be attached"
	msgServiceStarting     = "waiting for SMF service to start"
)

// authorityUnit is the remote unit under which certificates delivered out of band are stored.
const authorityUnit = "authority"

// requestRetryInterval is how soon a pass is requeued after the authority could not be reached.
const requestRetryInterval = 30 * time.Second

// Dependencies are the collaborators of one Reconciler.
type Dependencies struct {
	// Certificates may be nil when TLS is never enabled.
	Certificates *certificates.Manager
	Workload     workload.Handle
	Clock        clock.Clock
	// Backoff bounds the retries of workload pushes and restarts.
	Backoff core.BackoffStrategy
	Logger  logr.Logger
}

// Reconciler runs reconciliation passes for one SMF instance. Passes never overlap.
type Reconciler struct {
	mu sync.Mutex

	relations *relations.Store
	certs     *certificates.Manager
	workload  workload.Handle
	clock     clock.Clock
	backoff   core.BackoffStrategy
	logger    logr.Logger
	opts      core.Options

	lastApplied string
	seeded      bool
}

// NewReconciler returns a Reconciler with an empty relation store.
func NewReconciler(opts core.Options, deps Dependencies) *Reconciler {
	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	backoff := deps.Backoff
	if backoff.MaxAttempts == 0 {
		backoff = core.DefaultBackoff()
	}
	if backoff.Sleeper == nil {
		backoff.Sleeper = core.ClockSleeper(clk)
	}

	return &Reconciler{
		relations: relations.NewStore(),
		certs:     deps.Certificates,
		workload:  deps.Workload,
		clock:     clk,
		backoff:   backoff,
		logger:    deps.Logger,
		opts:      opts,
	}
}

// SetOptions replaces the static options used by the following passes.
func (reconciler *Reconciler) SetOptions(opts core.Options) {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()

	reconciler.opts = opts
	if reconciler.certs != nil {
		reconciler.certs.SetRenewalWindow(opts.RenewalWindow)
	}
}

// Relations exposes the relation store for inspection.
func (reconciler *Reconciler) Relations() *relations.Store { return reconciler.relations }

// HandleEvent ingests one event and runs a reconciliation pass.
func (reconciler *Reconciler) HandleEvent(ctx context.Context, event Event) *summary.Summary {
	return reconciler.HandleEvents(ctx, event)
}

// HandleEvents ingests every event in order and then runs a single reconciliation pass.
func (reconciler *Reconciler) HandleEvents(ctx context.Context, events ...Event) *summary.Summary {
	reconciler.mu.Lock()
	defer reconciler.mu.Unlock()

	start := reconciler.clock.Now()
	sum := &summary.Summary{PassID: uuid.NewString()}
	names := make([]string, 0, len(events))
	for _, event := range events {
		names = append(names, event.String())
	}
	sum.Event = strings.Join(names, ",")

	passLogger := reconciler.logger.WithValues("pass", sum.PassID, "events", sum.Event)
	for _, event := range events {
		reconciler.ingest(ctx, passLogger, event, sum)
	}

	reconciler.pass(ctx, passLogger, sum)

	sum.Duration = reconciler.clock.Now().Sub(start)
	passLogger.V(1).Info("reconciliation pass finished", "status", sum.Status.String(), "actions", sum.ActionTypes())
	return sum
}

func (reconciler *Reconciler) ingest(ctx context.Context, logger logr.Logger, event Event, sum *summary.Summary) {
	switch event.Kind {
	case EventRelationChanged:
		snapshot := event.Snapshot
		if event.Departed {
			reconciler.relations.RemoveUnit(snapshot.Kind, snapshot.RemoteUnit)
			return
		}
		// Each update replaces the unit's snapshot, an empty one included.
		reconciler.relations.Join(snapshot.Kind)
		reconciler.relations.Put(snapshot)
		if snapshot.Kind == core.RelationCertificates {
			reconciler.ingestCertificateRelation(ctx, logger, snapshot, sum)
		}

	case EventRelationBroken:
		reconciler.relations.Remove(event.Relation)
		if event.Relation == core.RelationCertificates {
			reconciler.resetCertificate(ctx, logger, sum)
		}

	case EventCertificateAvailable:
		reconciler.relations.Join(core.RelationCertificates)
		reconciler.relations.Put(core.RelationSnapshot{
			Kind:       core.RelationCertificates,
			RemoteUnit: authorityUnit,
			Data: map[string]string{
				core.KeyCertificate: string(event.Certificate),
				core.KeyCA:          string(event.CA),
				core.KeyCSR:         string(event.CSR),
			},
		})
		reconciler.ingestCertificate(ctx, logger, event.Certificate, event.CSR, sum)

	case EventCertificateRevoked:
		reconciler.revokeCertificate(logger, event.CSR, sum)

	case EventWorkloadStarted:
		// A fresh container may have lost the pushed files.
		reconciler.seeded = false

	case EventTick:
	}
}

func (reconciler *Reconciler) ingestCertificateRelation(ctx context.Context, logger logr.Logger, snapshot core.RelationSnapshot, sum *summary.Summary) {
	csrPEM := []byte(snapshot.Value(core.KeyCSR))
	if strings.EqualFold(strings.TrimSpace(snapshot.Value(core.KeyRevoked)), "true") {
		reconciler.revokeCertificate(logger, csrPEM, sum)
		return
	}
	if certPEM := snapshot.Value(core.KeyCertificate); certPEM != "" {
		reconciler.ingestCertificate(ctx, logger, []byte(certPEM), csrPEM, sum)
	}
}

func (reconciler *Reconciler) ingestCertificate(ctx context.Context, logger logr.Logger, certPEM, csrPEM []byte, sum *summary.Summary) {
	if reconciler.certs == nil {
		return
	}

	before := reconciler.certs.State()
	pending := reconciler.certs.ReissuePending()
	err := reconciler.certs.OnCertificateAvailable(ctx, certPEM, csrPEM)
	if err != nil {
		if core.IsCertificateMismatch(err) {
			if pending {
				logger.V(1).Info("certificate still mismatching, reissue pending", "retryIn", reconciler.certs.RetryAfter())
				return
			}
			logger.Info("rejected certificate from authority", "reason", err.Error(), "retryIn", reconciler.certs.RetryAfter())
			sum.Record(summary.ActionCertificateRejected, err.Error())
			return
		}
		logger.Error(err, "failed to store certificate")
		return
	}

	after := reconciler.certs.State()
	if after.Issued() && !bytes.Equal(before.Certificate, after.Certificate) {
		logger.Info("certificate issued", "notAfter", after.NotAfter)
		sum.Record(summary.ActionCertificateIssued, after.NotAfter.UTC().Format(time.RFC3339))
	}
}

func (reconciler *Reconciler) revokeCertificate(logger logr.Logger, csrPEM []byte, sum *summary.Summary) {
	if reconciler.certs == nil {
		return
	}

	before := reconciler.certs.State().Phase
	if !reconciler.certs.OnRevoked(csrPEM) {
		return
	}

	logger.Info("certificate revoked by authority", "phase", before)
	if before == core.CertificateIssued {
		sum.Record(summary.ActionCertificateExpired, "revoked")
		return
	}
	sum.Record(summary.ActionCertificateRejected, "request denied")
}

func (reconciler *Reconciler) resetCertificate(ctx context.Context, logger logr.Logger, sum *summary.Summary) {
	if reconciler.certs != nil {
		if err := reconciler.certs.Reset(ctx); err != nil {
			logger.Error(err, "failed to reset certificate material")
		}
	}
	if reconciler.workload != nil && reconciler.workload.CanConnect(ctx) {
		if err := reconciler.workload.RemoveTLS(ctx); err != nil {
			logger.Error(err, "failed to remove tls material from workload")
		}
	}
	sum.Record(summary.ActionCertificateReset, "")
}

// pass is one reconciliation: certificate refresh, readiness, render, apply, status.
func (reconciler *Reconciler) pass(ctx context.Context, logger logr.Logger, sum *summary.Summary) {
	cert := reconciler.refreshCertificate(ctx, logger, sum)

	view := reconciler.relations.Snapshot()
	verdict := readiness.Evaluate(view, cert, readiness.OptionsFrom(reconciler.opts))
	sum.Verdict = verdict
	if !verdict.Ready {
		sum.Status = verdictStatus(verdict)
		return
	}

	if reconciler.workload == nil || !reconciler.workload.CanConnect(ctx) {
		sum.Status = core.UnitStatus{Phase: core.PhaseWaiting, Message: msgWorkloadUnreachable}
		return
	}
	if !reconciler.workload.StorageAttached(ctx) {
		sum.Status = core.UnitStatus{Phase: core.PhaseWaiting, Message: msgStorageMissing}
		return
	}

	rendered, err := render.Render(view, cert, reconciler.opts)
	if err != nil {
		sum.Err = err
		var missing *core.MissingDependencyError
		switch {
		case core.IsValidation(err):
			logger.Info("rendered configuration rejected", "reason", err.Error())
			sum.Status = core.UnitStatus{Phase: core.PhaseBlocked, Message: err.Error()}
		case errors.As(err, &missing):
			sum.Status = core.UnitStatus{Phase: core.PhaseWaiting, Message: err.Error()}
		default:
			logger.Error(err, "render failed")
			sum.Status = core.UnitStatus{Phase: core.PhaseError, Message: err.Error()}
		}
		return
	}
	sum.Checksum = rendered.Checksum

	if err := reconciler.apply(ctx, logger, rendered, sum); err != nil {
		sum.Err = err
		logger.Error(err, "workload apply failed")
		sum.Status = core.UnitStatus{Phase: core.PhaseError, Message: fmt.Sprintf("workload apply failed: %v", err)}
		return
	}

	running, err := reconciler.workload.Running(ctx)
	if err != nil {
		logger.Info("could not read service status", "error", err.Error())
	}
	if !running {
		sum.Status = core.UnitStatus{Phase: core.PhaseWaiting, Message: msgServiceStarting}
		return
	}
	sum.Status = core.UnitStatus{Phase: core.PhaseActive}
}

// refreshCertificate moves the certificate lifecycle forward and returns the state the pass uses.
func (reconciler *Reconciler) refreshCertificate(ctx context.Context, logger logr.Logger, sum *summary.Summary) core.CertificateState {
	if reconciler.certs == nil {
		sum.Certificate = core.CertificateState{Phase: core.CertificateNotRequested}
		return sum.Certificate
	}

	now := reconciler.clock.Now()
	if reconciler.certs.CheckExpiry(now) {
		logger.Info("certificate entered the renewal window")
		sum.Record(summary.ActionCertificateExpired, "renewal window")
	}

	if reconciler.opts.TLSEnabled && reconciler.relations.Joined(core.RelationCertificates) && !reconciler.certs.State().Issued() {
		emitted, err := reconciler.certs.EnsureRequested(ctx, reconciler.opts.CommonName)
		switch {
		case err != nil:
			logger.Error(err, "failed to request certificate")
			sum.SoonerRequeue(requestRetryInterval)
		case emitted:
			sum.Record(summary.ActionCSREmitted, "")
		}
	}

	cert := reconciler.certs.State()
	if wait := reconciler.certs.RetryAfter(); wait > 0 {
		sum.SoonerRequeue(wait)
	}
	if cert.Issued() && !cert.NotAfter.IsZero() {
		sum.SoonerRequeue(cert.NotAfter.Add(-reconciler.opts.RenewalWindow).Sub(now))
	}

	sum.Certificate = cert
	sum.Certificate.PrivateKey = nil
	return cert
}

// apply pushes and restarts when the checksum differs from the last applied one and only
// replans otherwise. Transient failures are retried within the backoff budget.
func (reconciler *Reconciler) apply(ctx context.Context, logger logr.Logger, rendered core.RenderedConfig, sum *summary.Summary) error {
	if !reconciler.seeded {
		applied, err := reconciler.workload.AppliedChecksum(ctx)
		if err != nil {
			logger.Info("could not read applied checksum, forcing restart", "error", err.Error())
			applied = ""
		}
		reconciler.lastApplied = applied
		reconciler.seeded = true
	}

	if rendered.Checksum == reconciler.lastApplied {
		attempts, err := reconciler.backoff.RetryContext(ctx, func() error {
			return reconciler.workload.Replan(ctx, rendered)
		}, core.IsRetryable)
		sum.Attempts = attempts
		if err != nil {
			return &core.WorkloadApplyError{Op: "replan", Attempts: attempts, Err: err}
		}
		sum.Record(summary.ActionReplanned, "")
		return nil
	}

	pushed := false
	attempts, err := reconciler.backoff.RetryContext(ctx, func() error {
		if !pushed {
			if err := reconciler.workload.Push(ctx, rendered); err != nil {
				return err
			}
			pushed = true
		}
		return reconciler.workload.Restart(ctx, rendered)
	}, core.IsRetryable)
	sum.Attempts = attempts
	if pushed {
		for _, path := range render.SortedPaths(rendered) {
			sum.Record(summary.ActionPushed, path)
		}
	}
	if err != nil {
		op := "restart"
		if !pushed {
			op = "push"
		}
		return &core.WorkloadApplyError{Op: op, Attempts: attempts, Err: err}
	}

	logger.Info("restarted workload with new configuration", "checksum", rendered.Checksum, "previous", reconciler.lastApplied)
	reconciler.lastApplied = rendered.Checksum
	sum.Record(summary.ActionRestarted, rendered.Checksum)
	return nil
}

// verdictStatus maps a failing verdict onto a unit status: data that is on its way is Waiting,
// anything that needs an operator or a collaborator is Blocked.
func verdictStatus(verdict core.Verdict) core.UnitStatus {
	if strings.HasPrefix(verdict.Reason, "waiting for") {
		return core.UnitStatus{Phase: core.PhaseWaiting, Message: verdict.Reason}
	}
	return core.UnitStatus{Phase: core.PhaseBlocked, Message: verdict.Reason}
}
