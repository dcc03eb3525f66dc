package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	crwebhook "sigs.k8s.io/controller-runtime/pkg/webhook"

	smfv1alpha1 "smfoperator/pkg/api/v1alpha1"
	"smfoperator/pkg/controllers/smf"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(smfv1alpha1.AddToScheme(scheme))
}

func main() {
	var metricsAddr string
	var probeAddr string
	var enableLeaderElection bool
	var webhookPort int
	var workloadMode string
	var pebbleSocket string
	enableWebhooks := defaultEnableWebhooks()

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the health probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager. Enabling this will ensure there is only one active controller manager.")
	flag.IntVar(&webhookPort, "webhook-port", 9443, "Webhook server port.")
	flag.BoolVar(&enableWebhooks, "enable-webhooks", enableWebhooks, "Enable Kubernetes admission webhooks.")
	flag.StringVar(&workloadMode, "workload", envOrDefault("SMF_WORKLOAD", smf.WorkloadKubernetes), "How the SMF workload is run: kubernetes or pebble.")
	flag.StringVar(&pebbleSocket, "pebble-socket", envOrDefault("PEBBLE_SOCKET", "/charm/containers/smf/pebble.socket"), "Pebble API socket of the SMF container, used with --workload=pebble.")
	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if workloadMode != smf.WorkloadKubernetes && workloadMode != smf.WorkloadPebble {
		setupLog.Error(fmt.Errorf("unknown workload mode %q", workloadMode), "invalid --workload flag")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress: metricsAddr,
		},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "smf-operator.smf.sdcore.io",
		WebhookServer:          crwebhook.NewServer(crwebhook.Options{Port: webhookPort}),
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	controllerOptions := smf.ControllerOptions{
		Workload:     workloadMode,
		PebbleSocket: pebbleSocket,
		PodIP:        os.Getenv("POD_IP"),
	}
	if err := smf.SetupWithManager(mgr, controllerOptions); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "SMF")
		os.Exit(1)
	}

	if enableWebhooks {
		if err := (&smfv1alpha1.SMF{}).SetupWebhookWithManager(mgr); err != nil {
			setupLog.Error(err, "unable to create webhook", "webhook", "SMF")
			os.Exit(1)
		}
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager", "workload", workloadMode)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

func defaultEnableWebhooks() bool {
	env := os.Getenv("ENABLE_WEBHOOKS")
	if env == "" {
		return true
	}
	parsed, err := strconv.ParseBool(env)
	if err != nil {
		setupLog.Error(fmt.Errorf("invalid ENABLE_WEBHOOKS value: %w", err), "defaulting webhooks to enabled")
		return true
	}
	return parsed
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}
