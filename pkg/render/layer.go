package render

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"smfoperator/pkg/core"
)

type pebbleLayer struct {
	Summary     string                   `yaml:"summary"`
	Description string                   `yaml:"description"`
	Services    map[string]pebbleService `yaml:"services"`
	LogTargets  map[string]logTarget     `yaml:"log-targets,omitempty"`
}

type pebbleService struct {
	Override    string            `yaml:"override"`
	Startup     string            `yaml:"startup"`
	Command     string            `yaml:"command"`
	Environment map[string]string `yaml:"environment"`
}

type logTarget struct {
	Override string   `yaml:"override"`
	Type     string   `yaml:"type"`
	Location string   `yaml:"location"`
	Services []string `yaml:"services"`
}

// Command is the workload entrypoint.
func Command() string {
	return fmt.Sprintf("/bin/smf -smfcfg %s -uerouting %s", core.ConfigFile, core.UERoutingFile)
}

// Environment is the environment of the smf service.
func Environment(podIP string) map[string]string {
	return map[string]string{
		"GRPC_GO_LOG_VERBOSITY_LEVEL": "99",
		"GRPC_GO_LOG_SEVERITY_LEVEL":  "info",
		"GRPC_TRACE":                  "all",
		"GRPC_VERBOSITY":              "debug",
		"PFCP_PORT_UPF":               strconv.Itoa(core.PFCPPort),
		"MANAGED_BY_CONFIG_POD":       "true",
		"POD_IP":                      podIP,
	}
}

// Layer renders the pebble layer for the smf service. A loki log target is added when
// lokiURL is set.
func Layer(command string, environment map[string]string, lokiURL string) ([]byte, error) {
	layer := pebbleLayer{
		Summary:     "smf layer",
		Description: "pebble config layer for smf",
		Services: map[string]pebbleService{
			core.ServiceName: {
				Override:    "replace",
				Startup:     "enabled",
				Command:     command,
				Environment: environment,
			},
		},
	}
	if lokiURL != "" {
		layer.LogTargets = map[string]logTarget{
			"loki": {Override: "replace", Type: "loki", Location: lokiURL, Services: []string{"all"}},
		}
	}
	out, err := yaml.Marshal(layer)
	if err != nil {
		return nil, fmt.Errorf("marshal pebble layer: %w", err)
	}
	return out, nil
}
