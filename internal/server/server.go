// Package server runs the HTTPS static file server.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AngieZuGa/pwa-final/internal/fileserver"
	"github.com/AngieZuGa/pwa-final/internal/tlsutil"
)

// Runner serves Dir over TLS on Port, bootstrapping the certificate pair first.
type Runner struct {
	Port int
	// Dir is served and holds the certificate pair unless CertOptions points elsewhere.
	Dir string
	// CertOptions usually starts from tlsutil.DefaultOptions; the zero value cannot generate.
	CertOptions tlsutil.Options
	// Out receives the startup banner and shutdown message.
	Out    io.Writer
	Logger *slog.Logger
}

// DefaultDir returns the directory containing the running executable.
func DefaultDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// Run listens on all interfaces at r.Port and serves until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(r.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", r.Port, err)
	}
	return r.Serve(ctx, ln)
}

// Serve prepares the certificate, wraps ln with TLS and serves requests on it
// until ctx is done. In-flight requests are not drained. ln is closed on return.
func (r *Runner) Serve(ctx context.Context, ln net.Listener) error {
	logger := r.logger()
	out := r.out()

	paths, err := tlsutil.EnsureCertificate(r.Dir, r.certOptions(logger))
	if err != nil {
		ln.Close()
		return fmt.Errorf("preparing certificate: %w", err)
	}

	tlsConfig, err := tlsutil.ServerConfig(paths.Cert, paths.Key)
	if err != nil {
		ln.Close()
		return err
	}

	info, err := tlsutil.Describe(paths.Cert)
	if err != nil {
		logger.Warn("could not inspect certificate", "err", err)
	}
	r.printBanner(out, info)

	srv := &http.Server{
		Handler:  fileserver.New(r.Dir, logger.With("module", "fileserver")),
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(tls.NewListener(ln, tlsConfig))
	}()

	select {
	case <-ctx.Done():
		srv.Close()
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("server stopped with error", "err", err)
		}
		fmt.Fprintln(out, "\n\nServer stopped")
		return nil
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	}
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

func (r *Runner) certOptions(logger *slog.Logger) tlsutil.Options {
	opts := r.CertOptions
	if opts.Logger == nil {
		opts.Logger = logger.With("module", "tlsutil")
	}
	return opts
}

func (r *Runner) printBanner(w io.Writer, info *tlsutil.CertificateInfo) {
	rule := strings.Repeat("=", 50)

	fmt.Fprintf(w, "\n%s\nPWA server - local HTTPS\n%s\n", rule, rule)
	fmt.Fprintf(w, "\nServing on:\n")
	fmt.Fprintf(w, "   https://localhost:%d\n", r.Port)
	fmt.Fprintf(w, "   https://127.0.0.1:%d\n", r.Port)
	fmt.Fprintf(w, "\nFrom another machine (replace with your IP):\n")
	fmt.Fprintf(w, "   https://192.168.X.X:%d\n", r.Port)
	fmt.Fprintf(w, "\nWarning: self-signed certificate (this is expected)\n")
	fmt.Fprintf(w, "   Accept the certificate in your browser\n\n")
	if info != nil {
		fmt.Fprintf(w, "Certificate: %s (expires %s)\n", info.Path, info.NotAfter.Format("2006-01-02"))
		fmt.Fprintf(w, "SPKI SHA-256: %s\n", info.Fingerprint)
	}
	fmt.Fprintf(w, "Directory: %s\n", r.Dir)
	fmt.Fprintf(w, "Press Ctrl+C to stop\n\n")
}
