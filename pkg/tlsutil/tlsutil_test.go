package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/hapticlink/errors"
)

// generateTestCert creates a self-signed certificate for testing
func generateTestCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test Org"},
			CommonName:   "127-0-0-1.lovense.club",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})
	return certPEM, keyPEM
}

func writeTestFiles(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()
	certPEM, keyPEM := generateTestCert(t)
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, certPEM, 0644))
	require.NoError(t, os.WriteFile(keyFile, keyPEM, 0600))
	return certFile, keyFile
}

func boolPtr(b bool) *bool { return &b }

func TestBuild_Defaults(t *testing.T) {
	cfg, err := ClientConfig{}.Build(true)
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)

	cfg, err = ClientConfig{}.Build(false)
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
}

func TestBuild_ExplicitVerifyOverridesDefault(t *testing.T) {
	cfg, err := ClientConfig{InsecureSkipVerify: boolPtr(false), MinVersion: "1.3"}.Build(true)
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestBuild_CAFiles(t *testing.T) {
	certFile, _ := writeTestFiles(t)

	cfg, err := ClientConfig{CAFiles: []string{certFile}}.Build(false)
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)

	_, err = ClientConfig{CAFiles: []string{"/nonexistent/ca.pem"}}.Build(false)
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0644))
	_, err = ClientConfig{CAFiles: []string{bad}}.Build(false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestBuild_ClientCertificate(t *testing.T) {
	certFile, keyFile := writeTestFiles(t)

	cfg, err := ClientConfig{
		MTLS: MTLS{Enabled: true, CertFile: certFile, KeyFile: keyFile},
	}.Build(true)
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)

	_, err = ClientConfig{
		MTLS: MTLS{Enabled: true, CertFile: certFile, KeyFile: "/missing.pem"},
	}.Build(true)
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	for in, want := range map[string]uint16{"": tls.VersionTLS12, "1.2": tls.VersionTLS12, "1.3": tls.VersionTLS13} {
		got, err := ParseVersion(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseVersion("1.0")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = ClientConfig{MinVersion: "1.1"}.Build(true)
	assert.True(t, errors.IsFatal(err))
}

func TestValidate(t *testing.T) {
	certFile, _ := writeTestFiles(t)

	assert.NoError(t, ClientConfig{}.Validate())
	assert.NoError(t, ClientConfig{CAFiles: []string{certFile}, MinVersion: "1.3"}.Validate())
	assert.Error(t, ClientConfig{CAFiles: []string{"/nonexistent/ca.pem"}}.Validate())
	assert.ErrorIs(t, ClientConfig{MTLS: MTLS{Enabled: true, CertFile: certFile}}.Validate(), errors.ErrInvalidConfig)
	assert.ErrorContains(t, ClientConfig{MinVersion: "tls1"}.Validate(), "invalid TLS version")
}
