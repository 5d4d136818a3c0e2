// Package tls sets up HTTPS for the terminal server: Let's Encrypt via
// autocert, certificate files, or a generated development certificate.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antibyte/retrofunge/pkg/configuration"
	"github.com/antibyte/retrofunge/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

var (
	ErrMissingDomain = errors.New("domain is required when Let's Encrypt is enabled")
	ErrMissingEmail  = errors.New("letsencrypt_email is required when Let's Encrypt is enabled")
	ErrMissingCert   = errors.New("certificate file not found")
)

// Settings mirrors the [TLS] configuration section
type Settings struct {
	EnableTLS          bool
	EnableLetsEncrypt  bool
	SelfSigned         bool
	Domain             string
	LetsEncryptEmail   string
	CertCacheDir       string
	ForceHTTPSRedirect bool
	CertFile           string
	KeyFile            string
	HTTPPort           string
	HTTPSPort          string
}

// LoadSettings reads the [TLS] section
func LoadSettings() Settings {
	return Settings{
		EnableTLS:          configuration.GetBool("TLS", "enable_tls", false),
		EnableLetsEncrypt:  configuration.GetBool("TLS", "enable_letsencrypt", false),
		SelfSigned:         configuration.GetBool("TLS", "self_signed", false),
		Domain:             strings.TrimSpace(configuration.GetString("TLS", "domain", "")),
		LetsEncryptEmail:   strings.TrimSpace(configuration.GetString("TLS", "letsencrypt_email", "")),
		CertCacheDir:       configuration.GetString("TLS", "cert_cache_dir", "./certs"),
		ForceHTTPSRedirect: configuration.GetBool("TLS", "force_https_redirect", false),
		CertFile:           configuration.GetString("TLS", "cert_file", "./certs/server.crt"),
		KeyFile:            configuration.GetString("TLS", "key_file", "./certs/server.key"),
		HTTPPort:           configuration.GetString("TLS", "http_port", "8080"),
		HTTPSPort:          configuration.GetString("TLS", "https_port", "8443"),
	}
}

func (s Settings) validate() error {
	if !s.EnableTLS || !s.EnableLetsEncrypt {
		return nil
	}
	if s.Domain == "" {
		return ErrMissingDomain
	}
	if s.LetsEncryptEmail == "" {
		return ErrMissingEmail
	}
	if strings.Contains(s.Domain, "example.com") {
		logger.SecurityWarn("Using example domain %s for Let's Encrypt", s.Domain)
	}
	return nil
}

// Manager holds the server TLS setup
type Manager struct {
	settings    Settings
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// NewManager validates settings and prepares certificates when TLS is enabled
func NewManager(settings Settings) (*Manager, error) {
	if err := settings.validate(); err != nil {
		return nil, fmt.Errorf("TLS configuration validation failed: %w", err)
	}

	m := &Manager{settings: settings}
	if !settings.EnableTLS {
		return m, nil
	}

	var err error
	if settings.EnableLetsEncrypt {
		err = m.initLetsEncrypt()
	} else {
		err = m.initCertificateFiles()
	}
	if err != nil {
		return nil, fmt.Errorf("TLS initialization failed: %w", err)
	}
	return m, nil
}

func (m *Manager) initLetsEncrypt() error {
	logger.SecurityInfo("Initializing Let's Encrypt for domain: %s", m.settings.Domain)

	if err := os.MkdirAll(m.settings.CertCacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create certificate cache directory: %w", err)
	}

	allowed := []string{m.settings.Domain, "www." + m.settings.Domain}
	m.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(m.settings.CertCacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      m.settings.LetsEncryptEmail,
		HostPolicy: autocert.HostWhitelist(allowed...),
	}

	m.tlsConfig = m.autocertMgr.TLSConfig()
	m.tlsConfig.MinVersion = tls.VersionTLS12
	getCertificate := m.tlsConfig.GetCertificate
	m.tlsConfig.GetCertificate = func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		if hello.ServerName == "" {
			hello.ServerName = m.settings.Domain
		}
		cert, err := getCertificate(hello)
		if err != nil {
			logger.SecurityWarn("Failed to get certificate for %s: %v", hello.ServerName, err)
		}
		return cert, err
	}
	return nil
}

func (m *Manager) initCertificateFiles() error {
	certFile, keyFile := m.settings.CertFile, m.settings.KeyFile
	if !fileExists(certFile) || !fileExists(keyFile) {
		if !m.settings.SelfSigned {
			return fmt.Errorf("%w: %s", ErrMissingCert, certFile)
		}
		host := m.settings.Domain
		if host == "" {
			host = "localhost"
		}
		if err := GenerateSelfSignedCert(certFile, keyFile, host); err != nil {
			return err
		}
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("loading certificate: %w", err)
	}
	m.tlsConfig = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}
	logger.SecurityInfo("Using certificate %s", certFile)
	return nil
}

// Enabled reports whether the terminal is served over HTTPS
func (m *Manager) Enabled() bool {
	return m.settings.EnableTLS
}

// TLSConfig returns the server TLS configuration, nil when TLS is disabled
func (m *Manager) TLSConfig() *tls.Config {
	if !m.settings.EnableTLS {
		return nil
	}
	return m.tlsConfig
}

// HTTPSAddr is the listen address of the HTTPS server
func (m *Manager) HTTPSAddr() string {
	return ":" + m.settings.HTTPSPort
}

// HTTPAddr is the listen address of the plain HTTP server
func (m *Manager) HTTPAddr() string {
	return ":" + m.settings.HTTPPort
}

// NeedsHTTPServer reports whether a plain HTTP listener is needed next to
// the HTTPS one, for ACME challenges or redirects.
func (m *Manager) NeedsHTTPServer() bool {
	return m.settings.EnableTLS && (m.settings.EnableLetsEncrypt || m.settings.ForceHTTPSRedirect)
}

// HTTPHandler is the handler for the plain HTTP listener. It answers ACME
// challenges and either redirects to HTTPS or falls back to app.
func (m *Manager) HTTPHandler(app http.Handler) http.Handler {
	fallback := app
	if m.settings.ForceHTTPSRedirect {
		fallback = m.redirectHandler()
	}
	if m.autocertMgr != nil {
		return m.autocertMgr.HTTPHandler(fallback)
	}
	return fallback
}

func (m *Manager) redirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host
		if m.settings.HTTPSPort != "443" {
			target += ":" + m.settings.HTTPSPort
		}
		target += r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}

// GenerateSelfSignedCert writes an ECDSA certificate for host valid for one
// year. Intended for development only.
func GenerateSelfSignedCert(certFile, keyFile, host string) error {
	logger.SecurityWarn("Generating self-signed certificate for %s", host)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generating serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"retrofunge"}, CommonName: host},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding key: %w", err)
	}

	if err := writePEM(certFile, "CERTIFICATE", der, 0644); err != nil {
		return err
	}
	return writePEM(keyFile, "EC PRIVATE KEY", keyDER, 0600)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
