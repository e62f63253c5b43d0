package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AngieZuGa/pwa-final/internal/tlsutil"
)

// Execute runs the root command and returns the process exit status.
func Execute() int {
	return ExitCode(rootCmd.Execute(), os.Stderr)
}

// ExitCode reports err on w and maps it to an exit status. A clean shutdown
// after an interrupt returns nil and maps to 0.
func ExitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}

	fmt.Fprintf(w, "\nError: %v\n", err)

	if errors.Is(err, tlsutil.ErrGeneratorUnavailable) {
		fmt.Fprintln(w, "\nCould not create the certificate.")
		fmt.Fprintln(w, "Place localhost.crt and localhost.key in the serving directory, for example with:")
		fmt.Fprintln(w, "   openssl req -x509 -newkey rsa:2048 -nodes -days 365 \\")
		fmt.Fprintln(w, "     -keyout localhost.key -out localhost.crt -subj /CN=localhost \\")
		fmt.Fprintln(w, "     -addext subjectAltName=DNS:localhost,IP:127.0.0.1")
	}

	return 1
}
