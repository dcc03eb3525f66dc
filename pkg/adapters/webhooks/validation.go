package webhooks

import (
	"fmt"
	"os"

	core "smfoperator/pkg/core"
)

const (
	// requireTLSEnv rejects specs that turn TLS off.
	requireTLSEnv = "SMF_WEBHOOK_REQUIRE_TLS"
	// immutableCommonNameEnv rejects changes of tls.commonName on update.
	immutableCommonNameEnv = "SMF_WEBHOOK_IMMUTABLE_COMMON_NAME"
)

// ValidateSMF runs the shared spec validation plus the guardrails enabled through the
// environment. oldSpec is nil on create.
func ValidateSMF(spec, oldSpec *core.SMFSpec) error {
	if err := core.ValidateSpec(spec); err != nil {
		return err
	}

	if parseBoolEnv(os.Getenv(requireTLSEnv)) && spec.TLS != nil && spec.TLS.Enabled != nil && !*spec.TLS.Enabled {
		return fmt.Errorf("tls.enabled=false is not allowed on this cluster")
	}

	if oldSpec != nil && parseBoolEnv(os.Getenv(immutableCommonNameEnv)) && commonName(oldSpec) != commonName(spec) {
		return fmt.Errorf("tls.commonName is immutable")
	}

	return nil
}

func commonName(spec *core.SMFSpec) string {
	if spec.TLS == nil || spec.TLS.CommonName == "" {
		return core.DefaultCommonName
	}
	return spec.TLS.CommonName
}
