package certificates

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/cloudflare/cfssl/csr"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/go-logr/logr"
	"github.com/juju/clock"

	"smfoperator/pkg/core"
)

// Authority is the certificate authority collaborator. RequestCertificate must be idempotent
// for the same CSR.
type Authority interface {
	RequestCertificate(ctx context.Context, csrPEM []byte) error
}

// Material is the persisted certificate material of one SMF instance.
type Material struct {
	PrivateKey  []byte
	CSR         []byte
	Certificate []byte
}

// Store persists Material across operator restarts.
type Store interface {
	Load(ctx context.Context) (Material, bool, error)
	Save(ctx context.Context, material Material) error
	Delete(ctx context.Context) error
}

// Options configure a Manager.
type Options struct {
	// Hosts are added as DNS SANs next to the common name.
	Hosts         []string
	RenewalWindow time.Duration
	Backoff       core.BackoffStrategy
}

// Manager drives the certificate lifecycle NotRequested -> Requested -> Issued -> Expired -> Requested.
type Manager struct {
	mu        sync.Mutex
	authority Authority
	store     Store
	clock     clock.Clock
	logger    logr.Logger
	opts      Options

	state   core.CertificateState
	emitted bool
	// reissue is set after a mismatching or denied certificate; a new CSR is
	// generated by EnsureRequested once retryAt has passed.
	reissue  bool
	failures int
	retryAt  time.Time
}

// NewManager returns a Manager in NotRequested state.
func NewManager(opts Options, authority Authority, store Store, clk clock.Clock, logger logr.Logger) *Manager {
	if opts.Backoff.BaseDelay <= 0 {
		opts.Backoff = core.CertificateRetryBackoff()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Manager{
		authority: authority,
		store:     store,
		clock:     clk,
		logger:    logger,
		opts:      opts,
		state:     core.CertificateState{Phase: core.CertificateNotRequested},
	}
}

// SetRenewalWindow updates how long before expiry a certificate is considered expired.
func (m *Manager) SetRenewalWindow(window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts.RenewalWindow = window
}

// Load restores state from the store. A stored certificate that does not match the stored
// CSR is discarded.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	material, found, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load certificate material: %w", err)
	}
	if !found || len(material.CSR) == 0 || len(material.PrivateKey) == 0 {
		return nil
	}

	m.state = core.CertificateState{
		Phase:      core.CertificateRequested,
		CSR:        material.CSR,
		PrivateKey: material.PrivateKey,
	}
	m.emitted = false

	if len(material.Certificate) == 0 {
		return nil
	}
	notAfter, err := matchCertificate(material.CSR, material.Certificate)
	if err != nil {
		m.logger.Info("discarding stored certificate", "reason", err.Error())
		return nil
	}
	m.state.Phase = core.CertificateIssued
	m.state.Certificate = material.Certificate
	m.state.NotAfter = notAfter
	m.emitted = true
	return nil
}

// State returns a copy of the current certificate state.
func (m *Manager) State() core.CertificateState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.state
	state.CSR = cloneBytes(state.CSR)
	state.Certificate = cloneBytes(state.Certificate)
	state.PrivateKey = cloneBytes(state.PrivateKey)
	return state
}

// Failures returns the number of consecutive mismatching or denied certificates.
func (m *Manager) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// ReissuePending reports whether the outstanding request was rejected and awaits a reissue.
func (m *Manager) ReissuePending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reissue
}

// RetryAfter returns how long until a pending reissue may happen, zero when none is pending.
func (m *Manager) RetryAfter() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.reissue {
		return 0
	}
	if wait := m.retryAt.Sub(m.clock.Now()); wait > 0 {
		return wait
	}
	return 0
}

// EnsureRequested makes sure an outstanding CSR exists and was handed to the authority.
// It generates a fresh key pair and CSR from NotRequested or Expired, or from Requested when a
// reissue is due. It reports whether a CSR was emitted.
func (m *Manager) EnsureRequested(ctx context.Context, commonName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Phase {
	case core.CertificateIssued:
		return false, nil
	case core.CertificateRequested:
		if m.reissue {
			if m.clock.Now().Before(m.retryAt) {
				return false, nil
			}
			return m.request(ctx, commonName)
		}
		if m.emitted {
			return false, nil
		}
		return m.emit(ctx)
	default:
		return m.request(ctx, commonName)
	}
}

func (m *Manager) request(ctx context.Context, commonName string) (bool, error) {
	if commonName == "" {
		commonName = core.DefaultCommonName
	}
	csrPEM, keyPEM, err := generateRequest(commonName, m.opts.Hosts)
	if err != nil {
		return false, fmt.Errorf("generate csr: %w", err)
	}

	if m.store != nil {
		if err := m.store.Save(ctx, Material{PrivateKey: keyPEM, CSR: csrPEM}); err != nil {
			return false, fmt.Errorf("persist csr: %w", err)
		}
	}

	m.state = core.CertificateState{
		Phase:      core.CertificateRequested,
		CSR:        csrPEM,
		PrivateKey: keyPEM,
	}
	m.reissue = false
	m.emitted = false
	m.logger.Info("generated certificate signing request", "commonName", commonName)
	return m.emit(ctx)
}

func (m *Manager) emit(ctx context.Context) (bool, error) {
	if m.authority == nil {
		return false, fmt.Errorf("no certificate authority configured")
	}
	if err := m.authority.RequestCertificate(ctx, m.state.CSR); err != nil {
		return false, fmt.Errorf("emit csr: %w", err)
	}
	m.emitted = true
	return true, nil
}

// OnCertificateAvailable ingests a certificate published by the authority for csrPEM.
// Certificates for a CSR other than the outstanding one are stale and ignored. A certificate
// whose public key differs from the CSR keeps the state Requested, schedules a reissue and
// returns a CertificateMismatchError. It never emits a CSR.
func (m *Manager) OnCertificateAvailable(ctx context.Context, certPEM, csrPEM []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(bytes.TrimSpace(certPEM)) == 0 {
		return nil
	}
	if m.state.Phase != core.CertificateRequested && m.state.Phase != core.CertificateIssued {
		return nil
	}
	if len(bytes.TrimSpace(csrPEM)) > 0 && !samePEM(csrPEM, m.state.CSR) {
		return nil
	}
	if m.state.Phase == core.CertificateIssued && samePEM(certPEM, m.state.Certificate) {
		return nil
	}
	notAfter, err := matchCertificate(m.state.CSR, certPEM)
	if err != nil {
		if m.state.Phase == core.CertificateIssued || m.reissue {
			return err
		}
		m.scheduleReissue()
		m.logger.Info("rejected certificate", "reason", err.Error(), "retryAt", m.retryAt)
		return err
	}

	if m.store != nil {
		material := Material{PrivateKey: m.state.PrivateKey, CSR: m.state.CSR, Certificate: certPEM}
		if err := m.store.Save(ctx, material); err != nil {
			return fmt.Errorf("persist certificate: %w", err)
		}
	}

	m.state.Phase = core.CertificateIssued
	m.state.Certificate = cloneBytes(certPEM)
	m.state.NotAfter = notAfter
	m.failures = 0
	m.reissue = false
	m.retryAt = time.Time{}
	m.logger.Info("certificate issued", "notAfter", notAfter)
	return nil
}

// OnRevoked handles a revocation or denial of csrPEM. An issued certificate expires; a pending
// request is reissued after backoff.
func (m *Manager) OnRevoked(csrPEM []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(bytes.TrimSpace(csrPEM)) > 0 && !samePEM(csrPEM, m.state.CSR) {
		return false
	}
	switch m.state.Phase {
	case core.CertificateIssued:
		m.state.Phase = core.CertificateExpired
		m.logger.Info("certificate revoked")
		return true
	case core.CertificateRequested:
		if m.reissue {
			return false
		}
		m.scheduleReissue()
		m.logger.Info("certificate request denied", "retryAt", m.retryAt)
		return true
	}
	return false
}

// CheckExpiry moves an issued certificate to Expired once now is inside the renewal window.
func (m *Manager) CheckExpiry(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != core.CertificateIssued {
		return false
	}
	if now.Before(m.state.NotAfter.Add(-m.opts.RenewalWindow)) {
		return false
	}
	m.state.Phase = core.CertificateExpired
	m.logger.Info("certificate entered renewal window", "notAfter", m.state.NotAfter)
	return true
}

// Reset forgets all material, used when the certificates relation is broken.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx); err != nil {
			return fmt.Errorf("delete certificate material: %w", err)
		}
	}
	m.state = core.CertificateState{Phase: core.CertificateNotRequested}
	m.emitted = false
	m.reissue = false
	m.failures = 0
	m.retryAt = time.Time{}
	return nil
}

func (m *Manager) scheduleReissue() {
	m.failures++
	m.reissue = true
	m.retryAt = m.clock.Now().Add(m.opts.Backoff.Delay(m.failures))
}

func generateRequest(commonName string, hosts []string) ([]byte, []byte, error) {
	sans := []string{commonName}
	for _, host := range hosts {
		if host != "" && host != commonName {
			sans = append(sans, host)
		}
	}
	request := &csr.CertificateRequest{
		CN:         commonName,
		Hosts:      sans,
		KeyRequest: &csr.KeyRequest{A: "ecdsa", S: 256},
	}
	return csr.ParseRequest(request)
}

// matchCertificate checks that certPEM carries the public key of csrPEM and returns its expiry.
func matchCertificate(csrPEM, certPEM []byte) (time.Time, error) {
	request, err := helpers.ParseCSRPEM(csrPEM)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse csr: %w", err)
	}
	certificate, err := helpers.ParseCertificatePEM(certPEM)
	if err != nil {
		return time.Time{}, &core.CertificateMismatchError{Reason: fmt.Sprintf("unparsable certificate: %v", err)}
	}

	requestKey, err := x509.MarshalPKIXPublicKey(request.PublicKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal csr public key: %w", err)
	}
	certificateKey, err := x509.MarshalPKIXPublicKey(certificate.PublicKey)
	if err != nil {
		return time.Time{}, &core.CertificateMismatchError{Reason: fmt.Sprintf("unsupported public key: %v", err)}
	}
	if !bytes.Equal(requestKey, certificateKey) {
		return time.Time{}, &core.CertificateMismatchError{Reason: "public key differs from outstanding request"}
	}
	return certificate.NotAfter, nil
}

func samePEM(a, b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
