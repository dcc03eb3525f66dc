package core

// Managed metadata keys and finalizer
const (
	ManagedLabel         = "smf.sdcore.io/managed"
	InstanceLabel        = "smf.sdcore.io/instance"
	NamespaceLabel       = "smf.sdcore.io/namespace"
	RelationLabel        = "smf.sdcore.io/relation"
	RemoteUnitAnnotation = "smf.sdcore.io/remote-unit"
	ChecksumAnnotation   = "smf.sdcore.io/config-checksum"
	CSRHashAnnotation    = "smf.sdcore.io/csr-hash"
	ScrapeAnnotation     = "prometheus.io/scrape"
	ScrapePortAnnotation = "prometheus.io/port"

	Finalizer = "smf.sdcore.io/finalizer"
)

// Condition types
const (
	CondReady       = "Ready"
	CondProgressing = "Progressing"
	CondDegraded    = "Degraded"
)

// Relation kinds
const (
	RelationNRF          RelationKind = "fiveg_nrf"
	RelationCertificates RelationKind = "certificates"
	RelationSdcoreConfig RelationKind = "sdcore_config"
	RelationDatabase     RelationKind = "database"
	RelationLogging      RelationKind = "logging"
)

// Relation data keys
const (
	KeyNRFURL       = "url"
	KeyCertificate  = "certificate"
	KeyCA           = "ca"
	KeyCSR          = "csr"
	KeyRevoked      = "revoked"
	KeyWebuiURL     = "webui_url"
	KeyDatabaseURIs = "uris"
	KeyLokiURL      = "loki_push_api"
)

// Workload layout. The certificate directory is hardcoded in the SMF binary.
const (
	ServiceName         = "smf"
	ConfigDir           = "/etc/smf"
	ConfigFile          = ConfigDir + "/smfcfg.yaml"
	UERoutingFile       = ConfigDir + "/uerouting.yaml"
	ChecksumFile        = ConfigDir + "/.checksum"
	CertsDir            = "/support/TLS"
	PrivateKeyFile      = CertsDir + "/smf.key"
	CertificateFile     = CertsDir + "/smf.pem"
	DefaultCommonName   = "smf.sdcore"
	DefaultDatabaseName = "sdcore_smf"
	DefaultImage        = "ghcr.io/canonical/sdcore-smf:1.5"
)

// Ports exposed by the workload.
const (
	SBIPort        = 29502
	PFCPPort       = 8805
	PrometheusPort = 9089
)

// Log levels accepted by the SMF binary.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
	LogLevelPanic = "panic"
)

// LogSubsystems lists the logger sections understood by the SMF binary.
var LogSubsystems = []string{"Aper", "CommonConsumer", "NAS", "NGAP", "OpenApi", "PFCP", "PathLog", "SMF", "Util"}
