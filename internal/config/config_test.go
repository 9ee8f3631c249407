package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlagsOverridesDefaults(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.BindFlags(fs)

	if err := fs.Parse([]string{"--port", "9000", "--workers", "4"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Port != 9000 || c.WorkerCount != 4 {
		t.Fatalf("unexpected config after flag parse: %+v", c)
	}
}

func TestApplyEnvOverridesDefaultsOnly(t *testing.T) {
	t.Setenv("PAGI_PORT", "1234")
	t.Setenv("PAGI_WORKERS", "8")

	c := Default()
	ApplyEnv(&c)

	if c.Port != 1234 || c.WorkerCount != 8 {
		t.Fatalf("expected env overrides applied, got %+v", c)
	}
}

func TestTLSEnabledRequiresBothFiles(t *testing.T) {
	c := Default()
	if c.TLSEnabled() {
		t.Fatalf("TLS should be disabled by default")
	}
	c.TLSCertFile = "cert.pem"
	if c.TLSEnabled() {
		t.Fatalf("TLS should require both cert and key")
	}
	c.TLSKeyFile = "key.pem"
	if !c.TLSEnabled() {
		t.Fatalf("TLS should be enabled once both are set")
	}
}

func writeSelfSignedCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "pagi-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	certOut, err := os.Create(certPath)
	if err != nil {
		t.Fatalf("create cert file: %v", err)
	}
	defer certOut.Close()
	pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("create key file: %v", err)
	}
	defer keyOut.Close()
	keyBytes := x509.MarshalPKCS1PrivateKey(key)
	pem.Encode(keyOut, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: keyBytes})
	return certPath, keyPath
}

func TestCertCacheLoadsAndReusesCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir)

	cc := NewCertCache(certPath, keyPath, time.Minute)
	cert, err := cc.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	if cert == nil || len(cert.Certificate) == 0 {
		t.Fatalf("expected a loaded certificate")
	}

	cert2, err := cc.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate (cached): %v", err)
	}
	if len(cert2.Certificate[0]) != len(cert.Certificate[0]) {
		t.Fatalf("cached certificate bytes should match original")
	}
}

func TestCertCacheErrorsOnMissingFiles(t *testing.T) {
	cc := NewCertCache("/nonexistent/cert.pem", "/nonexistent/key.pem", time.Minute)
	if _, err := cc.GetCertificate(nil); err == nil {
		t.Fatalf("expected error loading missing certificate files")
	}
}
