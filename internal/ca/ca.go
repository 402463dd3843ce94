// Package ca mints and validates the long-lived root certificate authority
// shared by the proxy engines and the test clients.
package ca

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/tturner/proxyja4/internal/artifact"
	"github.com/tturner/proxyja4/internal/errors"
)

const (
	DefaultCommonName    = "ProxyJA4CA"
	DefaultKeyBits       = 4096
	DefaultValidityYears = 10
	DefaultKeyFile       = "proxy-ca.key.pem"
	DefaultCertFile      = "proxy-ca.cert.pem"
)

// Options configures where the CA lives and how it is minted.
type Options struct {
	Dir           string
	KeyFile       string
	CertFile      string
	CommonName    string
	KeyBits       int
	ValidityYears int
}

// DefaultOptions returns the layout used by the squid runtime mount.
func DefaultOptions() Options {
	return Options{
		Dir:           filepath.Join("configs", "squid", "runtime"),
		KeyFile:       DefaultKeyFile,
		CertFile:      DefaultCertFile,
		CommonName:    DefaultCommonName,
		KeyBits:       DefaultKeyBits,
		ValidityYears: DefaultValidityYears,
	}
}

// Material is the CA key pair as loaded from or written to disk.
type Material struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	KeyPath     string
	CertPath    string
	Generated   bool // false when existing files were reused
}

// NotBefore returns the certificate's validity start.
func (m *Material) NotBefore() time.Time { return m.Certificate.NotBefore }

// NotAfter returns the certificate's validity end.
func (m *Material) NotAfter() time.Time { return m.Certificate.NotAfter }

// Fingerprint returns the SHA-256 fingerprint of the certificate.
func (m *Material) Fingerprint() string {
	sum := sha256.Sum256(m.Certificate.Raw)
	return fmt.Sprintf("%X", sum[:])
}

// Authority owns the CA files at a fixed path.
type Authority struct {
	opts Options
	now  func() time.Time
}

// New creates an Authority, filling unset options from DefaultOptions.
func New(opts Options) *Authority {
	def := DefaultOptions()
	if opts.Dir == "" {
		opts.Dir = def.Dir
	}
	if opts.KeyFile == "" {
		opts.KeyFile = def.KeyFile
	}
	if opts.CertFile == "" {
		opts.CertFile = def.CertFile
	}
	if opts.CommonName == "" {
		opts.CommonName = def.CommonName
	}
	if opts.KeyBits == 0 {
		opts.KeyBits = def.KeyBits
	}
	if opts.ValidityYears == 0 {
		opts.ValidityYears = def.ValidityYears
	}
	return &Authority{opts: opts, now: time.Now}
}

// KeyPath returns the private key path.
func (a *Authority) KeyPath() string {
	return filepath.Join(a.opts.Dir, a.opts.KeyFile)
}

// CertPath returns the certificate path.
func (a *Authority) CertPath() string {
	return filepath.Join(a.opts.Dir, a.opts.CertFile)
}

// Ensure returns the CA material, generating it only when no valid CA exists.
// Existing valid material is never re-signed: proxies and clients may already
// trust it.
func (a *Authority) Ensure() (*Material, error) {
	keyPath, certPath := a.KeyPath(), a.CertPath()

	if artifact.Exists(keyPath) && IsValidCA(certPath) {
		m, err := a.load()
		if err == nil {
			return m, nil
		}
		// Unreadable key next to a good cert: fall through and mint a new pair.
	}

	return a.generate()
}

// Exists reports whether both CA files are present.
func (a *Authority) Exists() bool {
	return artifact.Exists(a.KeyPath()) && artifact.Exists(a.CertPath())
}

func (a *Authority) load() (*Material, error) {
	cert, err := readCertificate(a.CertPath())
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(a.KeyPath())
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("key file is not PEM")
	}
	key, err := parseRSAKey(block)
	if err != nil {
		return nil, err
	}
	if !key.PublicKey.Equal(cert.PublicKey) {
		return nil, fmt.Errorf("key does not match certificate")
	}
	return &Material{
		PrivateKey:  key,
		Certificate: cert,
		KeyPath:     a.KeyPath(),
		CertPath:    a.CertPath(),
	}, nil
}

func (a *Authority) generate() (*Material, error) {
	const op = "generate CA"

	key, err := rsa.GenerateKey(rand.Reader, a.opts.KeyBits)
	if err != nil {
		return nil, errors.New(errors.KindGeneration, op, fmt.Errorf("generate key: %w", err))
	}

	serial, err := randomSerialNumber()
	if err != nil {
		return nil, errors.New(errors.KindGeneration, op, err)
	}

	notBefore := a.now().UTC()
	name := pkix.Name{CommonName: a.opts.CommonName}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               name,
		Issuer:                name,
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(a.opts.ValidityYears, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            -1, // unbounded
		SignatureAlgorithm:    x509.SHA256WithRSA,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.New(errors.KindGeneration, op, fmt.Errorf("sign certificate: %w", err))
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, errors.New(errors.KindGeneration, op, fmt.Errorf("parse signed certificate: %w", err))
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	// Key first: a reader that sees the certificate can rely on the key.
	if err := artifact.WriteFile(a.KeyPath(), keyPEM, 0600); err != nil {
		return nil, errors.NewPath(errors.KindGeneration, "write CA key", a.KeyPath(), err)
	}
	if err := artifact.WriteFile(a.CertPath(), certPEM, 0644); err != nil {
		return nil, errors.NewPath(errors.KindGeneration, "write CA certificate", a.CertPath(), err)
	}

	return &Material{
		PrivateKey:  key,
		Certificate: cert,
		KeyPath:     a.KeyPath(),
		CertPath:    a.CertPath(),
		Generated:   true,
	}, nil
}

// IsValidCertificate reports whether path holds a non-empty, well-formed
// PEM X.509 certificate. It never panics.
func IsValidCertificate(path string) bool {
	_, err := readCertificate(path)
	return err == nil
}

// IsValidCA reports whether path holds a valid certificate with the CA
// basic constraint set.
func IsValidCA(path string) bool {
	cert, err := readCertificate(path)
	if err != nil {
		return false
	}
	return cert.BasicConstraintsValid && cert.IsCA
}

// ValidateCertificate is IsValidCertificate with the reason for rejection.
func ValidateCertificate(path string) error {
	_, err := readCertificate(path)
	return err
}

func readCertificate(path string) (cert *x509.Certificate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cert, err = nil, fmt.Errorf("parse %s: %v", path, r)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s has no PEM certificate block", path)
	}
	cert, err = x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cert, nil
}

func parseRSAKey(block *pem.Block) (*rsa.PrivateKey, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is %T, want RSA", k)
		}
		return rsaKey, nil
	}
	return nil, fmt.Errorf("unsupported key block %q", block.Type)
}

// randomSerialNumber returns a random 128-bit serial.
func randomSerialNumber() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	return serial, nil
}
