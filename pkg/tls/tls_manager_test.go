package tls

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestManagerDisabledByDefault(t *testing.T) {
	manager, err := NewManager(LoadSettings())
	if err != nil {
		t.Fatalf("Failed to create TLS manager: %v", err)
	}
	if manager.Enabled() {
		t.Error("TLS should be disabled by default")
	}
	if manager.TLSConfig() != nil {
		t.Error("Expected no TLS config when disabled")
	}
	if manager.NeedsHTTPServer() {
		t.Error("Expected no extra HTTP server when disabled")
	}
	if manager.HTTPAddr() != ":8080" {
		t.Errorf("Expected :8080, got %s", manager.HTTPAddr())
	}
}

func TestLetsEncryptValidation(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  error
	}{
		{"missing domain", Settings{EnableTLS: true, EnableLetsEncrypt: true, LetsEncryptEmail: "ops@retro.test"}, ErrMissingDomain},
		{"missing email", Settings{EnableTLS: true, EnableLetsEncrypt: true, Domain: "retro.test"}, ErrMissingEmail},
		{"disabled tls skips checks", Settings{EnableLetsEncrypt: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.settings)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestMissingCertificateFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewManager(Settings{
		EnableTLS: true,
		CertFile:  filepath.Join(dir, "server.crt"),
		KeyFile:   filepath.Join(dir, "server.key"),
	})
	if !errors.Is(err, ErrMissingCert) {
		t.Errorf("Expected ErrMissingCert, got %v", err)
	}
}

func TestSelfSignedCertificate(t *testing.T) {
	dir := t.TempDir()
	settings := Settings{
		EnableTLS:  true,
		SelfSigned: true,
		CertFile:   filepath.Join(dir, "certs", "server.crt"),
		KeyFile:    filepath.Join(dir, "certs", "server.key"),
		HTTPSPort:  "8443",
	}

	manager, err := NewManager(settings)
	if err != nil {
		t.Fatalf("Failed to create TLS manager: %v", err)
	}
	config := manager.TLSConfig()
	if config == nil || len(config.Certificates) != 1 {
		t.Fatal("Expected one loaded certificate")
	}

	// A second manager reuses the generated files
	if _, err := NewManager(settings); err != nil {
		t.Errorf("Expected existing certificate to load, got %v", err)
	}
}

func TestHTTPSRedirect(t *testing.T) {
	manager := &Manager{settings: Settings{EnableTLS: true, ForceHTTPSRedirect: true, HTTPSPort: "8443"}}
	if !manager.NeedsHTTPServer() {
		t.Error("Expected HTTP server for redirects")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://retro.test:8080/ws?x=1", nil)
	manager.HTTPHandler(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("Expected 301, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://retro.test:8443/ws?x=1" {
		t.Errorf("Expected redirect to https://retro.test:8443/ws?x=1, got %s", loc)
	}
}

func TestHTTPHandlerFallsBackToApp(t *testing.T) {
	manager := &Manager{settings: Settings{}}
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	manager.HTTPHandler(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected app handler, got %d", rec.Code)
	}
}
