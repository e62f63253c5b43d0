package tlsutil

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"time"

	talosx509 "github.com/siderolabs/crypto/x509"
)

// ServerConfig loads the certificate and key into a server-side TLS configuration.
// No maximum version is set, so the newest version supported by both ends is negotiated.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading key pair %s/%s: %w", certPath, keyPath, err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// CertificateInfo summarizes a certificate on disk.
type CertificateInfo struct {
	Path        string    `yaml:"path"`
	Subject     string    `yaml:"subject"`
	Issuer      string    `yaml:"issuer"`
	Serial      string    `yaml:"serial"`
	DNSNames    []string  `yaml:"dns_names"`
	IPAddresses []string  `yaml:"ip_addresses"`
	NotBefore   time.Time `yaml:"not_before"`
	NotAfter    time.Time `yaml:"not_after"`
	Fingerprint string    `yaml:"spki_sha256"`
}

// Describe parses the PEM certificate at path.
func Describe(path string) (*CertificateInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}

	pair := &talosx509.PEMEncodedCertificateAndKey{Crt: data}

	cert, err := pair.GetCert()
	if err != nil {
		return nil, err
	}

	ips := make([]string, 0, len(cert.IPAddresses))
	for _, ip := range cert.IPAddresses {
		ips = append(ips, ip.String())
	}

	return &CertificateInfo{
		Path:        path,
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		Serial:      strings.ToUpper(cert.SerialNumber.Text(16)),
		DNSNames:    cert.DNSNames,
		IPAddresses: ips,
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		Fingerprint: talosx509.SPKIFingerprint(cert).String(),
	}, nil
}
