package tlsutil

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

const (
	// DefaultKeyBits is the RSA modulus size of generated keys.
	DefaultKeyBits = 2048
	// DefaultValidity is how long a generated certificate stays valid.
	DefaultValidity = 365 * 24 * time.Hour
)

// Generator produces a PEM-encoded certificate and private key.
type Generator interface {
	Generate() (certPEM []byte, keyPEM []byte, err error)
}

// SelfSignedGenerator builds self-signed localhost certificates backed by an RSA key.
type SelfSignedGenerator struct {
	// Bits defaults to DefaultKeyBits.
	Bits int
	// Validity defaults to DefaultValidity.
	Validity time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSelfSignedGenerator returns a generator with the default key size and validity.
func NewSelfSignedGenerator() *SelfSignedGenerator {
	return &SelfSignedGenerator{
		Bits:     DefaultKeyBits,
		Validity: DefaultValidity,
		Now:      time.Now,
	}
}

// Subject is the fixed subject and issuer name of generated certificates.
func Subject() pkix.Name {
	return pkix.Name{
		Country:      []string{"US"},
		Province:     []string{"State"},
		Locality:     []string{"City"},
		Organization: []string{"PWA Dev"},
		CommonName:   "localhost",
	}
}

// Generate generates a self-signed X.509 certificate and private key
// and returns them as PEM-encoded byte slices.
func (g *SelfSignedGenerator) Generate() (certPEM []byte, keyPEM []byte, err error) {
	bits := g.Bits
	if bits == 0 {
		bits = DefaultKeyBits
	}
	validity := g.Validity
	if validity == 0 {
		validity = DefaultValidity
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generating rsa key: %w", err)
	}

	notBefore := now()
	notAfter := notBefore.Add(validity)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("generating serial number: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      Subject(),
		NotBefore:    notBefore,
		NotAfter:     notAfter,

		SignatureAlgorithm:    x509.SHA256WithRSA,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,

		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("creating certificate: %w", err)
	}

	certBuf := new(bytes.Buffer)
	if err := pem.Encode(certBuf, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, nil, err
	}

	keyBuf := new(bytes.Buffer)
	if err := pem.Encode(keyBuf, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}); err != nil {
		return nil, nil, err
	}

	return certBuf.Bytes(), keyBuf.Bytes(), nil
}
