package tlsutil

import (
	"crypto"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	talosx509 "github.com/siderolabs/crypto/x509"
)

const (
	// DefaultCertFile is the file name of the persisted certificate.
	DefaultCertFile = "localhost.crt"
	// DefaultKeyFile is the file name of the persisted private key.
	DefaultKeyFile = "localhost.key"
)

var (
	// ErrGeneratorUnavailable is returned when no certificate exists and none can be generated.
	ErrGeneratorUnavailable = errors.New("certificate generation unavailable")
	// ErrCertificateExpired is returned by verification of an expired certificate.
	ErrCertificateExpired = errors.New("certificate has expired")
	// ErrCertificateNotYetValid is returned by verification of a certificate whose validity has not started.
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")
	// ErrKeyMismatch is returned when the private key does not belong to the certificate.
	ErrKeyMismatch = errors.New("private key does not match certificate")
)

// Paths locates a certificate and its private key on disk.
type Paths struct {
	Cert string
	Key  string
}

// Options controls EnsureCertificate.
type Options struct {
	// CertFile and KeyFile are resolved against the base directory unless absolute.
	CertFile string
	KeyFile  string
	// Generator creates a new pair when none is on disk. A nil Generator
	// means generation is not available.
	Generator Generator
	// VerifyExisting checks validity and key correspondence of a pair found on disk.
	VerifyExisting bool
	Now            func() time.Time
	Logger         *slog.Logger
}

// DefaultOptions returns options for the localhost.crt/localhost.key pair
// backed by a SelfSignedGenerator.
func DefaultOptions() Options {
	return Options{
		CertFile:  DefaultCertFile,
		KeyFile:   DefaultKeyFile,
		Generator: NewSelfSignedGenerator(),
		Now:       time.Now,
	}
}

// ResolvePaths joins the configured file names with baseDir.
func ResolvePaths(baseDir string, opts Options) Paths {
	certFile := opts.CertFile
	if certFile == "" {
		certFile = DefaultCertFile
	}
	keyFile := opts.KeyFile
	if keyFile == "" {
		keyFile = DefaultKeyFile
	}
	if !filepath.IsAbs(certFile) {
		certFile = filepath.Join(baseDir, certFile)
	}
	if !filepath.IsAbs(keyFile) {
		keyFile = filepath.Join(baseDir, keyFile)
	}
	return Paths{Cert: certFile, Key: keyFile}
}

// EnsureCertificate returns the paths of the certificate and key under baseDir,
// generating and persisting a new pair if either file is missing. An existing
// pair is reused as is unless VerifyExisting is set.
func EnsureCertificate(baseDir string, opts Options) (Paths, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := ResolvePaths(baseDir, opts)

	if fileExists(paths.Cert) && fileExists(paths.Key) {
		logger.Info("certificates found", "cert", paths.Cert, "key", paths.Key)
		if opts.VerifyExisting {
			now := time.Now
			if opts.Now != nil {
				now = opts.Now
			}
			if err := VerifyPair(paths, now()); err != nil {
				return Paths{}, err
			}
		}
		return paths, nil
	}

	if opts.Generator == nil {
		return Paths{}, ErrGeneratorUnavailable
	}

	logger.Info("generating self-signed certificate")
	certPEM, keyPEM, err := opts.Generator.Generate()
	if err != nil {
		return Paths{}, fmt.Errorf("%w: %w", ErrGeneratorUnavailable, err)
	}

	if err := writePair(paths, certPEM, keyPEM); err != nil {
		return Paths{}, fmt.Errorf("writing certificate pair: %w", err)
	}

	logger.Info("certificate created", "cert", paths.Cert)
	logger.Info("private key created", "key", paths.Key)

	return paths, nil
}

// VerifyPair checks that the certificate at paths.Cert is valid at now and
// that paths.Key holds its private key.
func VerifyPair(paths Paths, now time.Time) error {
	pair, err := talosx509.NewCertificateAndKeyFromFiles(paths.Cert, paths.Key)
	if err != nil {
		return fmt.Errorf("reading certificate pair: %w", err)
	}

	cert, err := pair.GetCert()
	if err != nil {
		return err
	}

	if now.Before(cert.NotBefore) {
		return fmt.Errorf("%w: valid from %s", ErrCertificateNotYetValid, cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("%w: expired at %s", ErrCertificateExpired, cert.NotAfter.Format(time.RFC3339))
	}

	key, err := pair.GetKey()
	if err != nil {
		return err
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return fmt.Errorf("unsupported private key type %T", key)
	}

	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(cert.PublicKey) {
		return ErrKeyMismatch
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// writePair stages both files next to their targets and renames them into
// place only once both are fully written. On failure the previous key, if
// any, is left as it was.
func writePair(paths Paths, certPEM, keyPEM []byte) (err error) {
	keyTmp, err := writeTemp(filepath.Dir(paths.Key), keyPEM, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(keyTmp)
		}
	}()

	certTmp, err := writeTemp(filepath.Dir(paths.Cert), certPEM, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(certTmp)
		}
	}()

	// A key left over from a half pair is set aside rather than overwritten,
	// so a failed swap puts it back.
	prevKey := ""
	if fileExists(paths.Key) {
		prevKey = keyTmp + ".prev"
		if err = os.Rename(paths.Key, prevKey); err != nil {
			return err
		}
	}
	restoreKey := func() {
		if prevKey != "" {
			os.Rename(prevKey, paths.Key)
		}
	}

	if err = os.Rename(keyTmp, paths.Key); err != nil {
		restoreKey()
		return err
	}
	if err = os.Rename(certTmp, paths.Cert); err != nil {
		os.Remove(paths.Key)
		restoreKey()
		return err
	}
	if prevKey != "" {
		os.Remove(prevKey)
	}

	return nil
}

func writeTemp(dir string, data []byte, mode os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, ".localhost-*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()

	if err := f.Chmod(mode); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}

	return name, nil
}
