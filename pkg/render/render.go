package render

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"smfoperator/pkg/core"
	"smfoperator/pkg/relations"
)

//go:embed uerouting.yaml
var ueRouting []byte

// UERouting returns the static UE routing document shipped with the workload.
func UERouting() []byte { return append([]byte(nil), ueRouting...) }

type smfConfig struct {
	Info          info                    `yaml:"info"`
	Configuration configuration           `yaml:"configuration"`
	Logger        map[string]loggerConfig `yaml:"logger"`
}

type info struct {
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
}

type configuration struct {
	SMFName                  string    `yaml:"smfName"`
	SMFDBName                string    `yaml:"smfDBName"`
	EnableDBStore            bool      `yaml:"enableDBStore"`
	SBI                      sbi       `yaml:"sbi"`
	ServiceNameList          []string  `yaml:"serviceNameList"`
	PFCP                     pfcp      `yaml:"pfcp"`
	NRFURI                   string    `yaml:"nrfUri"`
	WebuiURI                 string    `yaml:"webuiUri"`
	EnableNRFCaching         bool      `yaml:"enableNrfCaching"`
	NRFCacheEvictionInterval int       `yaml:"nrfCacheEvictionInterval,omitempty"`
	MongoDB                  *database `yaml:"mongodb,omitempty"`
}

type sbi struct {
	Scheme       string `yaml:"scheme"`
	RegisterIPv4 string `yaml:"registerIPv4"`
	BindingIPv4  string `yaml:"bindingIPv4"`
	Port         int    `yaml:"port"`
	TLS          *tls   `yaml:"tls,omitempty"`
}

type tls struct {
	Key string `yaml:"key"`
	PEM string `yaml:"pem"`
}

type pfcp struct {
	Addr string `yaml:"addr"`
}

type database struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type loggerConfig struct {
	DebugLevel   string `yaml:"debugLevel"`
	ReportCaller bool   `yaml:"ReportCaller"`
}

// Render derives the complete workload configuration. Identical inputs always produce
// byte-identical output. A malformed input yields a ValidationError and no output at all.
func Render(view relations.View, cert core.CertificateState, opts core.Options) (core.RenderedConfig, error) {
	if opts.SBIPort < 1 || opts.SBIPort > 65535 {
		return core.RenderedConfig{}, invalid("sbiPort", fmt.Sprint(opts.SBIPort), "port out of range")
	}

	scheme := "http"
	if opts.TLSEnabled {
		scheme = "https"
	}

	nrfURL := view.NRFURL()
	if nrfURL == "" {
		return core.RenderedConfig{}, &core.MissingDependencyError{Relation: core.RelationNRF}
	}
	if err := validateNRFURL(nrfURL, scheme); err != nil {
		return core.RenderedConfig{}, err
	}

	webuiURL := view.WebuiURL()
	if webuiURL == "" {
		return core.RenderedConfig{}, &core.MissingDependencyError{Relation: core.RelationSdcoreConfig}
	}
	if err := validateHostPort("sdcore_config webui_url", webuiURL); err != nil {
		return core.RenderedConfig{}, err
	}

	var mongo *database
	if uri := view.DatabaseURI(); uri != "" {
		if err := validateDatabaseURI(uri); err != nil {
			return core.RenderedConfig{}, err
		}
		mongo = &database{Name: opts.DatabaseName, URL: uri}
	} else if opts.DatabaseRequired {
		return core.RenderedConfig{}, &core.MissingDependencyError{Relation: core.RelationDatabase}
	}

	lokiURL := view.LokiURL()
	if lokiURL != "" {
		if _, err := validateHTTPURL("logging loki_push_api", lokiURL); err != nil {
			return core.RenderedConfig{}, err
		}
	}

	if opts.TLSEnabled && (!cert.Issued() || len(cert.Certificate) == 0 || len(cert.PrivateKey) == 0) {
		return core.RenderedConfig{}, invalid("certificate", "", "not issued")
	}

	podIP := opts.PodIP
	if podIP == "" {
		podIP = "0.0.0.0"
	}

	config := smfConfig{
		Info: info{Version: "1.0.0", Description: "SMF initial local configuration"},
		Configuration: configuration{
			SMFName:       "SMF",
			SMFDBName:     opts.DatabaseName,
			EnableDBStore: mongo != nil,
			SBI: sbi{
				Scheme:       scheme,
				RegisterIPv4: opts.Hostname,
				BindingIPv4:  "0.0.0.0",
				Port:         opts.SBIPort,
			},
			ServiceNameList:  []string{"nsmf-pdusession", "nsmf-event-exposure", "nsmf-oam"},
			PFCP:             pfcp{Addr: podIP},
			NRFURI:           nrfURL,
			WebuiURI:         webuiURL,
			EnableNRFCaching: opts.NRFCacheEnabled,
			MongoDB:          mongo,
		},
		Logger: loggers(opts),
	}
	if opts.NRFCacheEnabled {
		config.Configuration.NRFCacheEvictionInterval = int(opts.NRFCacheEviction.Seconds())
	}
	if opts.TLSEnabled {
		config.Configuration.SBI.TLS = &tls{Key: core.PrivateKeyFile, PEM: core.CertificateFile}
	}

	smfcfg, err := yaml.Marshal(config)
	if err != nil {
		return core.RenderedConfig{}, fmt.Errorf("marshal smf config: %w", err)
	}

	files := map[string][]byte{
		core.ConfigFile:    smfcfg,
		core.UERoutingFile: UERouting(),
	}
	if opts.TLSEnabled {
		files[core.PrivateKeyFile] = append([]byte(nil), cert.PrivateKey...)
		files[core.CertificateFile] = append([]byte(nil), cert.Certificate...)
	}

	environment := Environment(podIP)
	command := Command()
	layer, err := Layer(command, environment, lokiURL)
	if err != nil {
		return core.RenderedConfig{}, err
	}

	return core.RenderedConfig{
		Files:       files,
		Layer:       layer,
		Command:     command,
		Environment: environment,
		Checksum:    core.HashFiles(files, layer),
	}, nil
}

func loggers(opts core.Options) map[string]loggerConfig {
	out := make(map[string]loggerConfig, len(core.LogSubsystems))
	for _, subsystem := range core.LogSubsystems {
		level := opts.SubsystemLogLevels[subsystem]
		if level == "" {
			level = opts.LogLevel
		}
		if level == "" {
			level = core.LogLevelInfo
		}
		out[subsystem] = loggerConfig{DebugLevel: level}
	}
	return out
}

// SortedPaths returns the file paths of rendered in a stable order.
func SortedPaths(rendered core.RenderedConfig) []string {
	paths := make([]string, 0, len(rendered.Files))
	for path := range rendered.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
