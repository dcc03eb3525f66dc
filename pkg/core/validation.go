package core

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultResyncPeriodSeconds     = 300
	defaultRenewalWindowHours      = 720
	defaultEvictionIntervalSeconds = 900
	maxEvictionIntervalSeconds     = 86400
)

// ValidateSpec enforces the guardrails shared by the admission webhook and the controller.
func ValidateSpec(spec *SMFSpec) error {
	if spec == nil {
		return fmt.Errorf("spec is required")
	}

	if spec.LogLevel != "" && !validLogLevel(spec.LogLevel) {
		return fmt.Errorf("invalid logLevel: %s (valid: %s)", spec.LogLevel, strings.Join(logLevels(), ", "))
	}

	subsystems := make([]string, 0, len(spec.SubsystemLogLevels))
	for subsystem := range spec.SubsystemLogLevels {
		subsystems = append(subsystems, subsystem)
	}
	sort.Strings(subsystems)
	for _, subsystem := range subsystems {
		if !knownSubsystem(subsystem) {
			return fmt.Errorf("unknown log subsystem: %s", subsystem)
		}
		if level := spec.SubsystemLogLevels[subsystem]; !validLogLevel(level) {
			return fmt.Errorf("invalid log level for %s: %s", subsystem, level)
		}
	}

	if spec.SBIPort != nil && (*spec.SBIPort < 1 || *spec.SBIPort > 65535) {
		return fmt.Errorf("sbiPort must be within 1-65535")
	}

	if spec.TLS != nil && spec.TLS.RenewalWindowHours != nil && *spec.TLS.RenewalWindowHours < 1 {
		return fmt.Errorf("tls.renewalWindowHours must be >= 1")
	}

	if spec.NRFCache != nil && spec.NRFCache.EvictionIntervalSeconds != nil {
		interval := *spec.NRFCache.EvictionIntervalSeconds
		if interval < 1 || interval > maxEvictionIntervalSeconds {
			return fmt.Errorf("nrfCache.evictionIntervalSeconds must be within 1-%d", maxEvictionIntervalSeconds)
		}
	}

	if spec.ResyncPeriodSeconds != nil && *spec.ResyncPeriodSeconds < 10 {
		return fmt.Errorf("resyncPeriodSeconds must be >= 10")
	}

	return nil
}

// DefaultSpec applies safe defaults consistent with CRD defaults.
func DefaultSpec(spec *SMFSpec) {
	if spec.Image == "" {
		spec.Image = DefaultImage
	}

	if spec.LogLevel == "" {
		spec.LogLevel = LogLevelInfo
	}

	if spec.TLS == nil {
		spec.TLS = &TLSSpec{}
	}

	if spec.TLS.Enabled == nil {
		enabled := true
		spec.TLS.Enabled = &enabled
	}

	if spec.TLS.CommonName == "" {
		spec.TLS.CommonName = DefaultCommonName
	}

	if spec.TLS.RenewalWindowHours == nil {
		window := int32(defaultRenewalWindowHours)
		spec.TLS.RenewalWindowHours = &window
	}

	if spec.NRFCache == nil {
		spec.NRFCache = &NRFCacheSpec{}
	}

	if spec.NRFCache.Enabled == nil {
		enabled := true
		spec.NRFCache.Enabled = &enabled
	}

	if spec.NRFCache.EvictionIntervalSeconds == nil {
		interval := int32(defaultEvictionIntervalSeconds)
		spec.NRFCache.EvictionIntervalSeconds = &interval
	}

	if spec.Database == nil {
		spec.Database = &DatabaseSpec{}
	}

	if spec.Database.Name == "" {
		spec.Database.Name = DefaultDatabaseName
	}

	if spec.SBIPort == nil {
		port := int32(SBIPort)
		spec.SBIPort = &port
	}

	if spec.ResyncPeriodSeconds == nil {
		period := defaultResyncPeriod()
		spec.ResyncPeriodSeconds = &period
	}
}

// defaultResyncPeriod determines the periodic reconcile interval from environment defaults.
func defaultResyncPeriod() int32 {
	if environmentValue := os.Getenv("RESYNC_PERIOD_SECONDS"); environmentValue != "" {
		if parsed, err := strconv.Atoi(environmentValue); err == nil && parsed >= 10 {
			return int32(parsed)
		}
	}

	return defaultResyncPeriodSeconds
}

func logLevels() []string {
	return []string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal, LogLevelPanic}
}

func validLogLevel(level string) bool {
	for _, candidate := range logLevels() {
		if candidate == level {
			return true
		}
	}
	return false
}

func knownSubsystem(name string) bool {
	for _, subsystem := range LogSubsystems {
		if subsystem == name {
			return true
		}
	}
	return false
}

// Options is the resolved view of a defaulted SMFSpec plus facts about the runtime.
type Options struct {
	Namespace          string
	Name               string
	Image              string
	LogLevel           string
	SubsystemLogLevels map[string]string
	TLSEnabled         bool
	CommonName         string
	SignerName         string
	RenewalWindow      time.Duration
	NRFCacheEnabled    bool
	NRFCacheEviction   time.Duration
	DatabaseRequired   bool
	DatabaseName       string
	SBIPort            int
	Hostname           string
	PodIP              string
	ResyncPeriod       time.Duration
}

// ResolveOptions defaults a copy of spec and flattens it into Options.
func ResolveOptions(namespace, name string, spec SMFSpec, podIP string) (Options, error) {
	spec = copySpecPointers(spec)
	DefaultSpec(&spec)
	if err := ValidateSpec(&spec); err != nil {
		return Options{}, err
	}

	hostname := spec.Hostname
	if hostname == "" {
		hostname = fmt.Sprintf("%s.%s.svc.cluster.local", name, namespace)
	}

	levels := make(map[string]string, len(LogSubsystems))
	for _, subsystem := range LogSubsystems {
		levels[subsystem] = spec.LogLevel
	}
	for subsystem, level := range spec.SubsystemLogLevels {
		levels[subsystem] = level
	}

	return Options{
		Namespace:          namespace,
		Name:               name,
		Image:              spec.Image,
		LogLevel:           spec.LogLevel,
		SubsystemLogLevels: levels,
		TLSEnabled:         *spec.TLS.Enabled,
		CommonName:         spec.TLS.CommonName,
		SignerName:         spec.TLS.SignerName,
		RenewalWindow:      time.Duration(*spec.TLS.RenewalWindowHours) * time.Hour,
		NRFCacheEnabled:    *spec.NRFCache.Enabled,
		NRFCacheEviction:   time.Duration(*spec.NRFCache.EvictionIntervalSeconds) * time.Second,
		DatabaseRequired:   spec.Database.Required,
		DatabaseName:       spec.Database.Name,
		SBIPort:            int(*spec.SBIPort),
		Hostname:           hostname,
		PodIP:              podIP,
		ResyncPeriod:       time.Duration(*spec.ResyncPeriodSeconds) * time.Second,
	}, nil
}

// copySpecPointers detaches the nested structs so defaulting never writes through to the caller.
func copySpecPointers(spec SMFSpec) SMFSpec {
	if spec.TLS != nil {
		tls := *spec.TLS
		spec.TLS = &tls
	}
	if spec.NRFCache != nil {
		cache := *spec.NRFCache
		spec.NRFCache = &cache
	}
	if spec.Database != nil {
		database := *spec.Database
		spec.Database = &database
	}
	return spec
}
