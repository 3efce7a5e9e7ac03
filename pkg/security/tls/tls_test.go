package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nanogov/governor/pkg/config"
)

type testCert struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	der  []byte
}

// issue creates a certificate for cn, self-signed when parent is nil.
func issue(t *testing.T, cn string, parent *testCert, notAfter time.Time, mutate func(*x509.Certificate)) *testCert {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if mutate != nil {
		mutate(tmpl)
	}
	signer, signerKey := tmpl, key
	if parent == nil {
		tmpl.IsCA = true
		tmpl.BasicConstraintsValid = true
	} else {
		signer, signerKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return &testCert{cert: cert, key: key, der: der}
}

func (c *testCert) write(t *testing.T, dir, name string) (certFile, keyFile string) {
	t.Helper()
	keyDER, err := x509.MarshalECPrivateKey(c.key)
	if err != nil {
		t.Fatal(err)
	}
	certFile = filepath.Join(dir, name+"-cert.pem")
	keyFile = filepath.Join(dir, name+"-key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func (c *testCert) tlsCertificate() tls.Certificate {
	return tls.Certificate{Certificate: [][]byte{c.der}, PrivateKey: c.key, Leaf: c.cert}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReloader_Start(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := issue(t, "governor-a", nil, time.Now().Add(90*24*time.Hour), nil).write(t, dir, "server")

	r := NewReloader(certFile, keyFile, 0, quietLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cert, err := r.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate() error = %v", err)
	}
	if cert.Leaf.Subject.CommonName != "governor-a" {
		t.Errorf("subject = %q, want governor-a", cert.Leaf.Subject.CommonName)
	}
	if err := r.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestReloader_StartErrors(t *testing.T) {
	dir := t.TempDir()
	expired := issue(t, "old", nil, time.Now().Add(-time.Minute), nil)
	expiredCert, expiredKey := expired.write(t, dir, "expired")

	tests := []struct {
		name string
		cert string
		key  string
	}{
		{"missing files", filepath.Join(dir, "none.pem"), filepath.Join(dir, "none-key.pem")},
		{"expired certificate", expiredCert, expiredKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReloader(tt.cert, tt.key, 0, quietLogger())
			if err := r.Start(context.Background()); err == nil {
				t.Error("Start() should fail")
			}
			if _, err := r.GetCertificate(nil); err == nil {
				t.Error("GetCertificate() should fail without a certificate")
			}
		})
	}
}

func TestReloader_ReloadIfChanged(t *testing.T) {
	dir := t.TempDir()
	notAfter := time.Now().Add(90 * 24 * time.Hour)
	certFile, keyFile := issue(t, "before", nil, notAfter, nil).write(t, dir, "server")

	r := NewReloader(certFile, keyFile, 0, quietLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.ReloadIfChanged() {
		t.Error("ReloadIfChanged() reloaded unchanged files")
	}

	issue(t, "after", nil, notAfter, nil).write(t, dir, "server")
	later := time.Now().Add(time.Minute)
	for _, f := range []string{certFile, keyFile} {
		if err := os.Chtimes(f, later, later); err != nil {
			t.Fatal(err)
		}
	}
	if !r.ReloadIfChanged() {
		t.Fatal("ReloadIfChanged() did not reload rotated files")
	}
	if got := r.Certificate().Leaf.Subject.CommonName; got != "after" {
		t.Errorf("subject = %q, want after", got)
	}

	// A broken rotation keeps the current certificate.
	if err := os.WriteFile(certFile, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	evenLater := later.Add(time.Minute)
	if err := os.Chtimes(certFile, evenLater, evenLater); err != nil {
		t.Fatal(err)
	}
	if r.ReloadIfChanged() {
		t.Error("ReloadIfChanged() accepted a broken certificate")
	}
	if got := r.Certificate().Leaf.Subject.CommonName; got != "after" {
		t.Errorf("subject = %q after failed reload, want after", got)
	}
}

func TestReloader_CheckExpired(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := issue(t, "short", nil, time.Now().Add(time.Hour), nil).write(t, dir, "server")

	r := NewReloader(certFile, keyFile, 0, quietLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := r.Check(context.Background()); err == nil {
		t.Error("Check() should fail for an expired certificate")
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	ca := issue(t, "mesh-ca", nil, time.Now().Add(24*time.Hour), nil)
	caFile, _ := ca.write(t, dir, "ca")
	certFile, keyFile := issue(t, "server", ca, time.Now().Add(24*time.Hour), nil).write(t, dir, "server")

	r := NewReloader(certFile, keyFile, 0, quietLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		cfg      config.TLSConfig
		wantErr  bool
		wantMin  uint16
		wantAuth tls.ClientAuthType
		wantCAs  bool
	}{
		{"disabled", config.TLSConfig{}, true, 0, 0, false},
		{"tls 1.3", config.TLSConfig{Enabled: true, MinVersion: "1.3"}, false, tls.VersionTLS13, tls.NoClientCert, false},
		{"tls 1.2", config.TLSConfig{Enabled: true, MinVersion: "1.2"}, false, tls.VersionTLS12, tls.NoClientCert, false},
		{"mutual", config.TLSConfig{Enabled: true, ClientCAFile: caFile, ClientAuth: "require"}, false, tls.VersionTLS13, tls.RequireAndVerifyClientCert, true},
		{"verify if given", config.TLSConfig{Enabled: true, ClientCAFile: caFile, ClientAuth: "verify_if_given"}, false, tls.VersionTLS13, tls.VerifyClientCertIfGiven, true},
		{"missing ca", config.TLSConfig{Enabled: true, ClientCAFile: filepath.Join(dir, "none.pem")}, true, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := Build(&tt.cfg, r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tc.MinVersion != tt.wantMin {
				t.Errorf("MinVersion = %x, want %x", tc.MinVersion, tt.wantMin)
			}
			if tc.ClientAuth != tt.wantAuth {
				t.Errorf("ClientAuth = %v, want %v", tc.ClientAuth, tt.wantAuth)
			}
			if (tc.ClientCAs != nil) != tt.wantCAs {
				t.Errorf("ClientCAs set = %v, want %v", tc.ClientCAs != nil, tt.wantCAs)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	cert := issue(t, "node-7", nil, time.Now().Add(time.Hour), func(c *x509.Certificate) {
		c.Subject.OrganizationalUnit = []string{"rack-3"}
		c.Subject.Organization = []string{"fleet"}
		c.DNSNames = []string{"node-7.mesh.local"}
	}).cert

	tests := map[string]string{
		"":           "node-7",
		"subject.CN": "node-7",
		"subject.OU": "rack-3",
		"subject.O":  "fleet",
		"SAN":        "node-7.mesh.local",
		"serial":     "",
	}
	for source, want := range tests {
		if got := identity(cert, source); got != want {
			t.Errorf("identity(%q) = %q, want %q", source, got, want)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := PeerIdentity(r, "subject.CN"); got != "" {
		t.Errorf("PeerIdentity() without TLS = %q, want empty", got)
	}
	r.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}
	if got := PeerIdentity(r, "subject.OU"); got != "rack-3" {
		t.Errorf("PeerIdentity() = %q, want rack-3", got)
	}
}

func TestMutualTLSEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ca := issue(t, "mesh-ca", nil, time.Now().Add(24*time.Hour), nil)
	caFile, _ := ca.write(t, dir, "ca")
	certFile, keyFile := issue(t, "governor", ca, time.Now().Add(24*time.Hour), nil).write(t, dir, "server")
	client := issue(t, "node-42", ca, time.Now().Add(24*time.Hour), nil)

	r := NewReloader(certFile, keyFile, 0, quietLogger())
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	tc, err := Build(&config.TLSConfig{Enabled: true, MinVersion: "1.3", ClientCAFile: caFile, ClientAuth: "require"}, r)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.WriteString(w, PeerIdentity(req, "subject.CN"))
	}))
	srv.TLS = tc
	srv.StartTLS()
	defer srv.Close()

	roots := x509.NewCertPool()
	roots.AddCert(ca.cert)
	newClient := func(certs ...tls.Certificate) *http.Client {
		return &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
			RootCAs:      roots,
			Certificates: certs,
			MinVersion:   tls.VersionTLS13,
		}}}
	}

	resp, err := newClient(client.tlsCertificate()).Get(srv.URL)
	if err != nil {
		t.Fatalf("request with client certificate failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "node-42" {
		t.Errorf("peer identity = %q, want node-42", body)
	}

	if resp, err := newClient().Get(srv.URL); err == nil {
		resp.Body.Close()
		t.Error("request without client certificate succeeded")
	}
}

func TestSelfSigned(t *testing.T) {
	now := time.Now()
	certPEM, keyPEM, err := SelfSigned([]string{"governor.local", "10.0.0.7"}, "Nano", 24*time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	cert, err := ValidatePair(certFile, keyFile, "", now)
	if err != nil {
		t.Fatalf("ValidatePair() error = %v", err)
	}
	if cert.Subject.CommonName != "governor.local" {
		t.Errorf("CN = %q", cert.Subject.CommonName)
	}
	if len(cert.DNSNames) != 1 || len(cert.IPAddresses) != 1 {
		t.Errorf("SANs = %v %v", cert.DNSNames, cert.IPAddresses)
	}

	// Self-signed certificates chain to themselves.
	if _, err := ValidatePair(certFile, keyFile, certFile, now); err != nil {
		t.Errorf("ValidatePair() with own CA error = %v", err)
	}

	read, err := ReadCertificate(certFile)
	if err != nil {
		t.Fatal(err)
	}
	if !read.Equal(cert) {
		t.Error("ReadCertificate() returned a different certificate")
	}
	if _, err := ReadCertificate(keyFile); err == nil {
		t.Error("ReadCertificate() accepted a private key")
	}

	if _, _, err := SelfSigned(nil, "Nano", time.Hour, now); err == nil {
		t.Error("SelfSigned() accepted no hosts")
	}
	if _, _, err := SelfSigned([]string{"a"}, "Nano", 0, now); err == nil {
		t.Error("SelfSigned() accepted zero validity")
	}
}

func TestValidatePairErrors(t *testing.T) {
	dir := t.TempDir()
	ca := issue(t, "ca", nil, time.Now().Add(time.Hour), nil)
	caFile, _ := ca.write(t, dir, "ca")
	other := issue(t, "other", nil, time.Now().Add(time.Hour), nil)
	otherCert, otherKey := other.write(t, dir, "other")
	expired := issue(t, "old", nil, time.Now().Add(-time.Minute), nil)
	oldCert, oldKey := expired.write(t, dir, "old")

	if _, err := ValidatePair(otherCert, otherKey, caFile, time.Now()); err == nil {
		t.Error("ValidatePair() accepted a certificate from another CA")
	}
	if _, err := ValidatePair(oldCert, oldKey, "", time.Now()); err == nil {
		t.Error("ValidatePair() accepted an expired certificate")
	}
	if _, err := ValidatePair(otherCert, oldKey, "", time.Now()); err == nil {
		t.Error("ValidatePair() accepted a mismatched key")
	}
}
