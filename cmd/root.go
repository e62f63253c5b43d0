package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AngieZuGa/pwa-final/config"
	"github.com/AngieZuGa/pwa-final/internal/server"
	"github.com/AngieZuGa/pwa-final/internal/tlsutil"
)

const (
	flagConfig         = "config"
	flagLogLevel       = "log-level"
	flagPort           = "port"
	flagDirectory      = "directory"
	flagVerifyExisting = "verify-existing"
)

var (
	logger  *slog.Logger
	rootCmd = &cobra.Command{
		Use:   "pwa-serve",
		Short: "Serve a PWA over local HTTPS",
		Long: `Serve static files over HTTPS for local PWA development. A self-signed
certificate for localhost and 127.0.0.1 is generated on first start and reused afterwards.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		RunE:              runServer,
	}
)

func init() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`))
	viper.SetEnvPrefix("pwa_serve")

	pf := rootCmd.PersistentFlags()
	pf.String(flagConfig, "pwa-serve.yaml", "path to server configuration file")
	pf.String(flagLogLevel, "info", "log level (error, warn, info, debug)")
	pf.IntP(flagPort, "p", config.DefaultPort, "port to listen on")
	pf.StringP(flagDirectory, "d", "", "directory to serve files from (default: directory of the executable)")
	pf.Bool(flagVerifyExisting, false, "check expiry and key match of an existing certificate before using it")

	if err := viper.BindPFlags(pf); err != nil {
		panic(err)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString(flagLogLevel))); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(cmd.OutOrStdout(), &slog.HandlerOptions{
		Level: level,
	})).With("command", cmd.Name())

	return nil
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (*config.ServerConfig, error) {
	cfg, err := config.LoadServerConfig(viper.GetString(flagConfig))
	if err != nil {
		return nil, err
	}

	if viper.IsSet(flagPort) {
		cfg.Port = viper.GetInt(flagPort)
	}
	if viper.IsSet(flagDirectory) {
		cfg.Directory = viper.GetString(flagDirectory)
	}
	if viper.IsSet(flagVerifyExisting) {
		cfg.TLS.VerifyExisting = viper.GetBool(flagVerifyExisting)
	}

	if cfg.Directory == "" {
		if cfg.Directory, err = server.DefaultDir(); err != nil {
			return nil, err
		}
	}
	if cfg.Directory, err = filepath.Abs(cfg.Directory); err != nil {
		return nil, fmt.Errorf("resolving directory: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func certOptions(cfg *config.ServerConfig) tlsutil.Options {
	opts := tlsutil.DefaultOptions()
	opts.CertFile = cfg.TLS.CertFile
	opts.KeyFile = cfg.TLS.KeyFile
	opts.VerifyExisting = cfg.TLS.VerifyExisting
	opts.Logger = logger.With("module", "tlsutil")
	return opts
}
