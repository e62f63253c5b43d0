package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AngieZuGa/pwa-final/internal/tlsutil"
)

var (
	outputFile string
	certCmd    = &cobra.Command{
		Use:   "cert",
		Short: "Create the certificate if missing and print a summary",
		Long:  `Ensure localhost.crt and localhost.key exist in the serving directory and write a YAML summary of the certificate.`,
		RunE:  dumpCertificate,
	}
)

func init() {
	certCmd.Flags().StringVarP(&outputFile, "output", "o", "", "path to output YAML file (default: stdout)")
	rootCmd.AddCommand(certCmd)
}

func dumpCertificate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	paths, err := tlsutil.EnsureCertificate(cfg.Directory, certOptions(cfg))
	if err != nil {
		return fmt.Errorf("preparing certificate: %w", err)
	}

	info, err := tlsutil.Describe(paths.Cert)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(struct {
		Certificate *tlsutil.CertificateInfo `yaml:"certificate"`
		Key         string                   `yaml:"key"`
	}{info, paths.Key})
	if err != nil {
		return fmt.Errorf("marshaling certificate summary: %w", err)
	}

	if outputFile == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputFile, err)
	}

	logger.Info("certificate summary written", "path", outputFile)
	return nil
}
