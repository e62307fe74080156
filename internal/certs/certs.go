// Package certs creates and loads the self-signed certificate the server
// presents. Clients do not validate it.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

const (
	CommonName = "localhost"
	// Validity is applied both before and after the current time.
	Validity = 48 * time.Hour
)

// Generated holds the PEM encoded certificate and key.
type Generated struct {
	CertPEM []byte
	KeyPEM  []byte
	// Fingerprint is the base64 SHA-256 digest of the DER encoded public key.
	Fingerprint string
}

// New creates an ECDSA P-256 certificate for localhost valid from now-48h
// to now+48h.
func New(now time.Time) (*Generated, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: CommonName},
		DNSNames:              []string{CommonName},
		NotBefore:             now.Add(-Validity),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	digest := sha256.Sum256(pubDER)

	return &Generated{
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		Fingerprint: base64.StdEncoding.EncodeToString(digest[:]),
	}, nil
}

// Generate writes a new certificate and key to the given paths and returns
// the public key fingerprint.
func Generate(certPath, keyPath string) (string, error) {
	g, err := New(time.Now())
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(certPath, g.CertPEM, 0o644); err != nil {
		return "", fmt.Errorf("write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, g.KeyPEM, 0o600); err != nil {
		return "", fmt.Errorf("write key: %w", err)
	}
	return g.Fingerprint, nil
}

// Load reads a PEM certificate and key pair.
func Load(certPath, keyPath string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load certificate %s with key %s: %w", certPath, keyPath, err)
	}
	return cert, nil
}

// SelfSigned returns an in-memory certificate, for tests and ad hoc servers.
func SelfSigned() (tls.Certificate, error) {
	g, err := New(time.Now())
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(g.CertPEM, g.KeyPEM)
}
