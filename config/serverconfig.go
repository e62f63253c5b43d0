package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPort is the HTTPS port the server binds on all interfaces.
const DefaultPort = 8443

// TLSConfigSettings holds configuration for the certificate pair
type TLSConfigSettings struct {
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
	VerifyExisting bool   `yaml:"verify_existing"`
}

// ServerConfig represents the main server configuration
type ServerConfig struct {
	Port int `yaml:"port"`
	// Directory is served and holds the certificate pair. Empty means the
	// directory of the running executable.
	Directory string            `yaml:"directory"`
	TLS       TLSConfigSettings `yaml:"tls"`
}

// Default returns the configuration used when no file is present
func Default() *ServerConfig {
	return &ServerConfig{
		Port: DefaultPort,
		TLS: TLSConfigSettings{
			CertFile: "localhost.crt",
			KeyFile:  "localhost.key",
		},
	}
}

// LoadServerConfig loads the server configuration from a YAML file.
// Fields absent from the file keep their defaults.
func LoadServerConfig(configPath string) (*ServerConfig, error) {
	config := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("reading server config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing server config file: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.TLS.CertFile == "" {
		return errors.New("config: tls.cert_file cannot be empty")
	}
	if c.TLS.KeyFile == "" {
		return errors.New("config: tls.key_file cannot be empty")
	}
	return nil
}
