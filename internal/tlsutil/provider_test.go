package tlsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	inner Generator
	calls int
}

func (g *countingGenerator) Generate() ([]byte, []byte, error) {
	g.calls++
	return g.inner.Generate()
}

type failingGenerator struct{}

func (failingGenerator) Generate() ([]byte, []byte, error) {
	return nil, nil, errors.New("rsa unavailable")
}

func readPair(t *testing.T, paths Paths) (cert, key []byte) {
	t.Helper()
	cert, err := os.ReadFile(paths.Cert)
	require.NoError(t, err)
	key, err = os.ReadFile(paths.Key)
	require.NoError(t, err)
	return cert, key
}

func TestEnsureCertificateGenerates(t *testing.T) {
	dir := t.TempDir()

	paths, err := EnsureCertificate(dir, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "localhost.crt"), paths.Cert)
	assert.Equal(t, filepath.Join(dir, "localhost.key"), paths.Key)

	keyInfo, err := os.Stat(paths.Key)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), keyInfo.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files should be left behind")
}

func TestEnsureCertificateIdempotent(t *testing.T) {
	dir := t.TempDir()
	gen := &countingGenerator{inner: NewSelfSignedGenerator()}
	opts := DefaultOptions()
	opts.Generator = gen

	first, err := EnsureCertificate(dir, opts)
	require.NoError(t, err)
	certBefore, keyBefore := readPair(t, first)
	statBefore, err := os.Stat(first.Cert)
	require.NoError(t, err)

	second, err := EnsureCertificate(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	certAfter, keyAfter := readPair(t, second)
	assert.Equal(t, certBefore, certAfter)
	assert.Equal(t, keyBefore, keyAfter)

	statAfter, err := os.Stat(second.Cert)
	require.NoError(t, err)
	assert.Equal(t, statBefore.ModTime(), statAfter.ModTime())
	assert.Equal(t, 1, gen.calls)
}

func TestEnsureCertificateReusesExistingFilesVerbatim(t *testing.T) {
	dir := t.TempDir()
	// Existing files are trusted without being parsed.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localhost.crt"), []byte("known cert"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localhost.key"), []byte("known key"), 0o600))

	gen := &countingGenerator{inner: NewSelfSignedGenerator()}
	opts := DefaultOptions()
	opts.Generator = gen

	paths, err := EnsureCertificate(dir, opts)
	require.NoError(t, err)

	cert, key := readPair(t, paths)
	assert.Equal(t, "known cert", string(cert))
	assert.Equal(t, "known key", string(key))
	assert.Zero(t, gen.calls)
}

func TestEnsureCertificateRegeneratesWhenKeyMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localhost.crt"), []byte("orphan"), 0o644))

	paths, err := EnsureCertificate(dir, DefaultOptions())
	require.NoError(t, err)

	cert, _ := readPair(t, paths)
	assert.NotEqual(t, "orphan", string(cert))
	assert.NoError(t, VerifyPair(paths, time.Now()))
}

func TestEnsureCertificateCustomFileNames(t *testing.T) {
	dir := t.TempDir()
	keyDir := t.TempDir()
	opts := DefaultOptions()
	opts.CertFile = "dev.pem"
	opts.KeyFile = filepath.Join(keyDir, "dev-key.pem")

	paths, err := EnsureCertificate(dir, opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dev.pem"), paths.Cert)
	assert.Equal(t, filepath.Join(keyDir, "dev-key.pem"), paths.Key)
	assert.FileExists(t, paths.Cert)
	assert.FileExists(t, paths.Key)
}

func TestEnsureCertificateGeneratorUnavailable(t *testing.T) {
	for name, gen := range map[string]Generator{
		"nil":     nil,
		"failing": failingGenerator{},
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			opts := DefaultOptions()
			opts.Generator = gen

			_, err := EnsureCertificate(dir, opts)
			require.ErrorIs(t, err, ErrGeneratorUnavailable)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestEnsureCertificateWriteFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.CertFile = filepath.Join(dir, "missing", "localhost.crt")

	_, err := EnsureCertificate(dir, opts)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnsureCertificateFailedSwapKeepsExistingKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "localhost.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("operator key"), 0o600))
	// A non-empty directory where the certificate should go makes the final rename fail.
	certPath := filepath.Join(dir, "localhost.crt")
	require.NoError(t, os.Mkdir(certPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(certPath, "keep"), nil, 0o644))

	_, err := EnsureCertificate(dir, DefaultOptions())
	require.Error(t, err)

	key, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "operator key", string(key))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"localhost.crt", "localhost.key"}, names)
}

func TestEnsureCertificateReplacesHalfPairKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "localhost.key")
	require.NoError(t, os.WriteFile(keyPath, []byte("stale key"), 0o600))

	paths, err := EnsureCertificate(dir, DefaultOptions())
	require.NoError(t, err)

	_, key := readPair(t, paths)
	assert.NotEqual(t, "stale key", string(key))
	assert.NoError(t, VerifyPair(paths, time.Now()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEnsureCertificateVerifyExisting(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		dir := t.TempDir()
		_, err := EnsureCertificate(dir, DefaultOptions())
		require.NoError(t, err)

		opts := DefaultOptions()
		opts.VerifyExisting = true
		_, err = EnsureCertificate(dir, opts)
		assert.NoError(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		dir := t.TempDir()
		opts := DefaultOptions()
		opts.Generator = &SelfSignedGenerator{
			Validity: time.Hour,
			Now:      func() time.Time { return time.Now().Add(-48 * time.Hour) },
		}
		_, err := EnsureCertificate(dir, opts)
		require.NoError(t, err)

		opts.VerifyExisting = true
		_, err = EnsureCertificate(dir, opts)
		assert.ErrorIs(t, err, ErrCertificateExpired)
	})

	t.Run("not yet valid", func(t *testing.T) {
		dir := t.TempDir()
		opts := DefaultOptions()
		opts.Generator = &SelfSignedGenerator{
			Now: func() time.Time { return time.Now().Add(48 * time.Hour) },
		}
		_, err := EnsureCertificate(dir, opts)
		require.NoError(t, err)

		opts.VerifyExisting = true
		_, err = EnsureCertificate(dir, opts)
		assert.ErrorIs(t, err, ErrCertificateNotYetValid)
	})

	t.Run("mismatched key", func(t *testing.T) {
		dir := t.TempDir()
		other := t.TempDir()
		paths, err := EnsureCertificate(dir, DefaultOptions())
		require.NoError(t, err)
		otherPaths, err := EnsureCertificate(other, DefaultOptions())
		require.NoError(t, err)

		_, otherKey := readPair(t, otherPaths)
		require.NoError(t, os.WriteFile(paths.Key, otherKey, 0o600))

		opts := DefaultOptions()
		opts.VerifyExisting = true
		_, err = EnsureCertificate(dir, opts)
		assert.ErrorIs(t, err, ErrKeyMismatch)
	})
}
