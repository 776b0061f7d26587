package certgen

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/SchoolBus/internal/client/api"
)

func parseCert(t *testing.T, certPEM []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(certPEM)
	if block == nil {
		t.Fatal("no PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return cert
}

func TestIssue_ChainsToAuthority(t *testing.T) {
	ca, err := NewAuthority("Test CA")
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	roots := x509.NewCertPool()
	roots.AddCert(ca.Cert)

	tests := []struct {
		name  string
		cn    string
		hosts []string
		usage Usage
	}{
		{"server with dns and ip", "localhost", []string{"localhost", "127.0.0.1"}, ServerAuth},
		{"client console", "dispatch-console", nil, ClientAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certPEM, keyPEM, err := ca.Issue(tt.cn, tt.hosts, tt.usage)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if _, err := tls.X509KeyPair(certPEM, keyPEM); err != nil {
				t.Fatalf("key pair mismatch: %v", err)
			}

			cert := parseCert(t, certPEM)
			if cert.Subject.CommonName != tt.cn {
				t.Errorf("CN = %q, want %q", cert.Subject.CommonName, tt.cn)
			}
			eku := x509.ExtKeyUsageServerAuth
			if tt.usage == ClientAuth {
				eku = x509.ExtKeyUsageClientAuth
			}
			opts := x509.VerifyOptions{Roots: roots, KeyUsages: []x509.ExtKeyUsage{eku}}
			if len(tt.hosts) > 0 {
				opts.DNSName = tt.hosts[0]
			}
			if _, err := cert.Verify(opts); err != nil {
				t.Fatalf("verify: %v", err)
			}
			if tt.usage == ServerAuth && len(cert.IPAddresses) != 1 {
				t.Errorf("IP SANs = %v", cert.IPAddresses)
			}
		})
	}
}

func TestLoadAuthority(t *testing.T) {
	dir := t.TempDir()
	ca, err := NewAuthority("Test CA")
	if err != nil {
		t.Fatal(err)
	}
	keyPEM, err := ca.KeyPEM()
	if err != nil {
		t.Fatal(err)
	}
	certPath := filepath.Join(dir, "ca.crt")
	keyPath := filepath.Join(dir, "ca.key")
	if err := writePair(certPath, keyPath, ca.CertPEM(), keyPEM); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadAuthority(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadAuthority: %v", err)
	}
	if !loaded.Cert.Equal(ca.Cert) {
		t.Error("loaded certificate differs")
	}
	if _, _, err := loaded.Issue("client", nil, ClientAuth); err != nil {
		t.Errorf("issue with loaded CA: %v", err)
	}

	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	leafCert, leafKey, err := ca.Issue("leaf", nil, ClientAuth)
	if err != nil {
		t.Fatal(err)
	}
	leafCertPath := filepath.Join(dir, "leaf.crt")
	leafKeyPath := filepath.Join(dir, "leaf.key")
	if err := writePair(leafCertPath, leafKeyPath, leafCert, leafKey); err != nil {
		t.Fatal(err)
	}

	errCases := []struct {
		name     string
		cert     string
		key      string
		contains string
	}{
		{"missing cert", filepath.Join(dir, "nope.crt"), keyPath, "read ca cert"},
		{"missing key", certPath, filepath.Join(dir, "nope.key"), "read ca key"},
		{"bad cert pem", garbage, keyPath, "invalid CA cert PEM"},
		{"bad key pem", certPath, garbage, "invalid CA key PEM"},
		{"leaf is not a CA", leafCertPath, leafKeyPath, "not a CA"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadAuthority(tc.cert, tc.key)
			if err == nil || !strings.Contains(err.Error(), tc.contains) {
				t.Fatalf("err = %v, want containing %q", err, tc.contains)
			}
		})
	}
}

func TestWriteDevBundle_MutualTLS(t *testing.T) {
	b, err := WriteDevBundle(filepath.Join(t.TempDir(), "certs"), []string{"localhost", "127.0.0.1"}, "dispatch-console")
	if err != nil {
		t.Fatalf("WriteDevBundle: %v", err)
	}

	info, err := os.Stat(b.ClientKey)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("client key mode = %o, want 600", perm)
	}

	serverCert, err := tls.LoadX509KeyPair(b.ServerCert, b.ServerKey)
	if err != nil {
		t.Fatalf("load server pair: %v", err)
	}
	caPEM, err := os.ReadFile(b.CACert)
	if err != nil {
		t.Fatal(err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caPEM)

	var gotCN string
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCN = r.TLS.PeerCertificates[0].Subject.CommonName
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
	srv.StartTLS()
	defer srv.Close()

	tr, err := api.NewTLSTransport(b.CACert, b.ClientCert, b.ClientKey)
	if err != nil {
		t.Fatalf("NewTLSTransport: %v", err)
	}
	resp, err := (&http.Client{Transport: tr}).Get(srv.URL)
	if err != nil {
		t.Fatalf("mutual TLS request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if gotCN != "dispatch-console" {
		t.Errorf("peer CN = %q", gotCN)
	}
}
