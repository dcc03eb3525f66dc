package smf

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/clock"
	appsv1 "k8s.io/api/apps/v1"
	certificatesv1 "k8s.io/api/certificates/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"smfoperator/pkg/adapters"
	"smfoperator/pkg/agents/summary"
	smfv1alpha1 "smfoperator/pkg/api/v1alpha1"
	"smfoperator/pkg/certificates"
	"smfoperator/pkg/core"
	observabilitymetrics "smfoperator/pkg/observability/metrics"
	"smfoperator/pkg/workload"
)

// Workload modes accepted by ControllerOptions.
const (
	WorkloadKubernetes = "kubernetes"
	WorkloadPebble     = "pebble"
)

// errorRequeue is how soon an instance whose workload apply failed is retried.
const errorRequeue = 30 * time.Second

// ControllerOptions configure how SMF instances reach their workload.
type ControllerOptions struct {
	// Workload is WorkloadKubernetes (default) or WorkloadPebble.
	Workload     string
	PebbleSocket string
	// PodIP is handed to the SMF as its PFCP address in pebble mode.
	PodIP string
}

// instance is the per-SMF state kept between reconcile requests.
type instance struct {
	reconciler *Reconciler
	certs      *certificates.Manager
	handle     workload.Handle

	// workloadKey identifies the options baked into handle; a change rebuilds the instance.
	workloadKey string
	known       map[string]core.RelationSnapshot
	joined      map[core.RelationKind]bool
	connected   bool
}

// SMFController reconciles SMF resources with a controller-runtime manager.
type SMFController struct {
	client.Client
	scheme     *runtime.Scheme
	logger     logr.Logger
	kubeClient adapters.KubeClient
	emitter    *adapters.EventEmitter
	metrics    *observabilitymetrics.Recorder
	clock      clock.Clock
	opts       ControllerOptions

	mu        sync.Mutex
	instances map[types.NamespacedName]*instance
}

var _ reconcile.Reconciler = &SMFController{}

// NewController constructs an SMFController wired with the manager's client.
func NewController(manager ctrl.Manager, opts ControllerOptions) *SMFController {
	return newController(
		manager.GetClient(),
		manager.GetScheme(),
		manager.GetEventRecorderFor("smf-controller"),
		ctrl.Log.WithName("controllers").WithName("SMF"),
		opts,
	)
}

func newController(kubeClient client.Client, scheme *runtime.Scheme, recorder record.EventRecorder, logger logr.Logger, opts ControllerOptions) *SMFController {
	if opts.Workload == "" {
		opts.Workload = WorkloadKubernetes
	}

	return &SMFController{
		Client:     kubeClient,
		scheme:     scheme,
		logger:     logger,
		kubeClient: adapters.NewControllerRuntimeClient(kubeClient),
		emitter:    adapters.NewEventEmitter(recorder),
		metrics:    observabilitymetrics.Default(),
		clock:      clock.WallClock,
		opts:       opts,
		instances:  map[types.NamespacedName]*instance{},
	}
}

// Reconcile translates the cluster state of one SMF into events and runs a reconciliation pass.
func (controller *SMFController) Reconcile(requestContext context.Context, reconcileRequest ctrl.Request) (ctrl.Result, error) {
	requestLogger := controller.logger.WithValues("smf", reconcileRequest.NamespacedName)

	var smf smfv1alpha1.SMF

	if err := controller.Get(requestContext, reconcileRequest.NamespacedName, &smf); err != nil {
		if apierrors.IsNotFound(err) {
			controller.forget(reconcileRequest.NamespacedName)
			return ctrl.Result{}, nil
		}

		return ctrl.Result{}, err
	}

	if smf.ObjectMeta.DeletionTimestamp.IsZero() {
		if !controllerutil.ContainsFinalizer(&smf, core.Finalizer) {
			controllerutil.AddFinalizer(&smf, core.Finalizer)

			if err := controller.Update(requestContext, &smf); err != nil {
				return ctrl.Result{}, err
			}
		}
	} else {
		if controllerutil.ContainsFinalizer(&smf, core.Finalizer) {
			if err := controller.kubeClient.DeleteCertificateRequests(requestContext, smf.Namespace, smf.Name); err != nil {
				return ctrl.Result{}, err
			}

			controllerutil.RemoveFinalizer(&smf, core.Finalizer)

			if err := controller.Update(requestContext, &smf); err != nil {
				return ctrl.Result{}, err
			}
		}

		controller.forget(reconcileRequest.NamespacedName)
		return ctrl.Result{}, nil
	}

	opts, err := core.ResolveOptions(smf.Namespace, smf.Name, smf.Spec, controller.pfcpAddress())
	if err != nil {
		requestLogger.Info("invalid SMF spec", "reason", err.Error())
		sum := &summary.Summary{Status: core.UnitStatus{Phase: core.PhaseBlocked, Message: err.Error()}, Err: err}
		controller.emitter.EmitSummary(&smf, sum)
		return ctrl.Result{}, controller.patchStatus(requestContext, &smf, sum)
	}

	inst, err := controller.instanceFor(requestContext, &smf, opts)
	if err != nil {
		requestLogger.Error(err, "failed to prepare SMF instance")
		controller.emitter.EmitError(&smf, err)
		return ctrl.Result{}, err
	}

	events, err := controller.collectEvents(requestContext, inst, opts)
	if err != nil {
		requestLogger.Error(err, "failed to observe SMF collaborators")
		controller.emitter.EmitError(&smf, err)
		return ctrl.Result{}, err
	}

	sum := inst.reconciler.HandleEvents(requestContext, append(events, Tick())...)
	if sum.Status.Phase == core.PhaseError {
		sum.SoonerRequeue(errorRequeue)
	}

	controller.metrics.ObservePass(smf.Namespace, smf.Name, sum)
	controller.emitter.EmitSummary(&smf, sum)

	if err := controller.patchStatus(requestContext, &smf, sum); err != nil {
		if apierrors.IsConflict(err) {
			return ctrl.Result{Requeue: true}, nil
		}

		return ctrl.Result{}, err
	}

	return ctrl.Result{RequeueAfter: requeueAfter(opts.ResyncPeriod, sum.RequeueAfter)}, nil
}

func (controller *SMFController) patchStatus(ctx context.Context, smf *smfv1alpha1.SMF, sum *summary.Summary) error {
	statusPatch := client.MergeFrom(smf.DeepCopy())

	smf.ApplyPassStatus(sum, controller.clock.Now())

	if err := controller.Status().Patch(ctx, smf, statusPatch); err != nil {
		if apierrors.IsConflict(err) {
			return err
		}

		return fmt.Errorf("update status: %w", err)
	}

	return nil
}

// instanceFor returns the cached instance of smf, building it on first use or when the
// workload options changed.
func (controller *SMFController) instanceFor(ctx context.Context, smf *smfv1alpha1.SMF, opts core.Options) (*instance, error) {
	key := types.NamespacedName{Namespace: smf.Namespace, Name: smf.Name}
	workloadKey := fmt.Sprintf("%s|%d", opts.Image, opts.SBIPort)

	controller.mu.Lock()
	defer controller.mu.Unlock()

	if existing, ok := controller.instances[key]; ok && existing.workloadKey == workloadKey {
		existing.reconciler.SetOptions(opts)
		return existing, nil
	}

	handle, err := controller.workloadFor(smf, opts)
	if err != nil {
		return nil, err
	}

	instanceLogger := controller.logger.WithValues("smf", key)
	authority := adapters.NewCSRAuthority(controller.Client, smf.Namespace, smf.Name, opts.SignerName)
	keyStore := adapters.NewSecretKeyStore(controller.Client, smf.Namespace, smf.Name, smf, controller.scheme)
	certs := certificates.NewManager(certificates.Options{
		Hosts:         []string{opts.Hostname},
		RenewalWindow: opts.RenewalWindow,
	}, authority, keyStore, controller.clock, instanceLogger.WithName("certificates"))

	if err := certs.Load(ctx); err != nil {
		return nil, fmt.Errorf("load certificate material: %w", err)
	}

	created := &instance{
		reconciler: NewReconciler(opts, Dependencies{
			Certificates: certs,
			Workload:     handle,
			Clock:        controller.clock,
			Logger:       instanceLogger,
		}),
		certs:       certs,
		handle:      handle,
		workloadKey: workloadKey,
		known:       map[string]core.RelationSnapshot{},
		joined:      map[core.RelationKind]bool{},
	}
	controller.instances[key] = created
	return created, nil
}

// pfcpAddress is the PFCP bind address rendered into the config. Only a pebble workload shares
// the operator's pod; a Deployment pod binds every interface.
func (controller *SMFController) pfcpAddress() string {
	if controller.opts.Workload == WorkloadPebble {
		return controller.opts.PodIP
	}
	return ""
}

func (controller *SMFController) workloadFor(smf *smfv1alpha1.SMF, opts core.Options) (workload.Handle, error) {
	switch controller.opts.Workload {
	case WorkloadPebble:
		return workload.NewPebble(controller.opts.PebbleSocket)
	case WorkloadKubernetes:
		return workload.NewKubernetes(controller.Client, workload.KubernetesOptions{
			Namespace: smf.Namespace,
			Name:      smf.Name,
			Image:     opts.Image,
			SBIPort:   int32(opts.SBIPort),
			Owner:     smf,
			Scheme:    controller.scheme,
		}), nil
	default:
		return nil, fmt.Errorf("unknown workload mode %q", controller.opts.Workload)
	}
}

func (controller *SMFController) forget(key types.NamespacedName) {
	controller.mu.Lock()
	delete(controller.instances, key)
	controller.mu.Unlock()

	controller.metrics.Forget(key.Namespace, key.Name)
}

// collectEvents diffs the observed relations and certificate request against what the
// instance saw last time.
func (controller *SMFController) collectEvents(ctx context.Context, inst *instance, opts core.Options) ([]Event, error) {
	snapshots, err := controller.kubeClient.ListRelations(ctx, opts.Namespace, opts.Name)
	if err != nil {
		return nil, err
	}

	events := relationEvents(inst, snapshots, opts.TLSEnabled)

	connected := inst.handle.CanConnect(ctx)
	if connected && !inst.connected {
		events = append(events, WorkloadStarted())
	}
	inst.connected = connected

	if opts.TLSEnabled {
		certificateEvent, err := controller.certificateEvent(ctx, inst, opts)
		if err != nil {
			return nil, err
		}
		if certificateEvent != nil {
			events = append(events, *certificateEvent)
		}
	}

	return events, nil
}

// certificateEvent reports the signer's answer for the outstanding request, if any.
func (controller *SMFController) certificateEvent(ctx context.Context, inst *instance, opts core.Options) (*Event, error) {
	state := inst.certs.State()
	if state.Phase != core.CertificateRequested || len(state.CSR) == 0 {
		return nil, nil
	}

	status, err := controller.kubeClient.CertificateStatus(ctx, opts.Namespace, opts.Name, state.CSR)
	if err != nil {
		return nil, err
	}

	switch {
	case !status.Found:
		return nil, nil
	case status.Denied:
		event := CertificateRevoked(state.CSR)
		return &event, nil
	case len(status.Certificate) > 0:
		event := CertificateAvailable(status.Certificate, nil, state.CSR)
		return &event, nil
	}

	return nil, nil
}

// relationEvents turns the listed snapshots into change, departure and broken events. The
// certificates relation is implicitly joined while TLS is enabled since the signer is the
// cluster's CSR API.
func relationEvents(inst *instance, snapshots []core.RelationSnapshot, tlsEnabled bool) []Event {
	current := map[string]core.RelationSnapshot{}
	joined := map[core.RelationKind]bool{}
	for _, snapshot := range snapshots {
		current[relationKey(snapshot.Kind, snapshot.RemoteUnit)] = snapshot
		joined[snapshot.Kind] = true
	}
	if tlsEnabled {
		joined[core.RelationCertificates] = true
	}

	var events []Event
	for _, snapshot := range snapshots {
		if previous, ok := inst.known[relationKey(snapshot.Kind, snapshot.RemoteUnit)]; ok && previous.Equal(snapshot) {
			continue
		}
		events = append(events, RelationChanged(snapshot))
	}
	if joined[core.RelationCertificates] && !inst.joined[core.RelationCertificates] {
		events = append(events, RelationChanged(core.RelationSnapshot{Kind: core.RelationCertificates, RemoteUnit: authorityUnit}))
	}

	departed := make([]string, 0, len(inst.known))
	for key, previous := range inst.known {
		if _, ok := current[key]; ok || !joined[previous.Kind] {
			continue
		}
		departed = append(departed, key)
	}
	sort.Strings(departed)
	for _, key := range departed {
		previous := inst.known[key]
		events = append(events, RelationDeparted(previous.Kind, previous.RemoteUnit))
	}
	for _, kind := range sortedKinds(inst.joined) {
		if !joined[kind] {
			events = append(events, RelationBroken(kind))
		}
	}

	inst.known = current
	inst.joined = joined
	return events
}

func relationKey(kind core.RelationKind, remoteUnit string) string {
	return string(kind) + "/" + remoteUnit
}

func sortedKinds(kinds map[core.RelationKind]bool) []core.RelationKind {
	out := make([]core.RelationKind, 0, len(kinds))
	for kind := range kinds {
		out = append(out, kind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func requeueAfter(resync, requested time.Duration) time.Duration {
	if requested > 0 && (resync <= 0 || requested < resync) {
		return requested
	}
	return resync
}

// mapToInstance enqueues the SMF a labelled object belongs to. CSRs are cluster scoped and
// carry the namespace as a label.
func mapToInstance(_ context.Context, object client.Object) []reconcile.Request {
	labels := object.GetLabels()
	name := labels[core.InstanceLabel]
	namespace := labels[core.NamespaceLabel]
	if namespace == "" {
		namespace = object.GetNamespace()
	}
	if name == "" || namespace == "" {
		return nil
	}

	return []reconcile.Request{{NamespacedName: types.NamespacedName{Namespace: namespace, Name: name}}}
}

// SetupWithManager registers the controller with the provided manager.
func SetupWithManager(manager ctrl.Manager, opts ControllerOptions) error {
	reconciler := NewController(manager, opts)
	relationConfigMaps := predicate.NewPredicateFuncs(func(object client.Object) bool {
		_, ok := object.GetLabels()[core.RelationLabel]
		return ok
	})

	return ctrl.NewControllerManagedBy(manager).
		WithOptions(controller.Options{MaxConcurrentReconciles: 1}).
		For(&smfv1alpha1.SMF{}).
		Owns(&appsv1.Deployment{}).
		Owns(&corev1.Secret{}).
		Watches(&corev1.ConfigMap{}, handler.EnqueueRequestsFromMapFunc(mapToInstance), builder.WithPredicates(relationConfigMaps)).
		Watches(&certificatesv1.CertificateSigningRequest{}, handler.EnqueueRequestsFromMapFunc(mapToInstance)).
		Complete(reconciler)
}
