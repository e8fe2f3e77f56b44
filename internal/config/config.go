// Package config loads the server configuration from an HCL file
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config represents the complete server configuration. The store and
// providers blocks are optional in the file.
type Config struct {
	Server    ServerSettings    `hcl:"server,block"`
	Store     *StoreSettings    `hcl:"store,block"`
	Providers *ProviderSettings `hcl:"providers,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address   string `hcl:"address,optional"`
	Port      int    `hcl:"port,optional"`
	PublicURL string `hcl:"public_url,optional"`
	CORS      string `hcl:"cors_origin,optional"`
	LogLevel  string `hcl:"log_level,optional"`
}

// StoreSettings configures the durable room store
type StoreSettings struct {
	Path     string `hcl:"path,optional"`
	TTLHours int    `hcl:"ttl_hours,optional"`
}

// ProviderSettings holds credentials for the external collaborators
// (auth, email, object storage) that sit outside this service
type ProviderSettings struct {
	EmailAPIKey       string `hcl:"email_api_key,optional"`
	ObjectStoreKey    string `hcl:"object_store_key,optional"`
	ObjectStoreSecret string `hcl:"object_store_secret,optional"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Store: &StoreSettings{
			Path:     "cardroom.db",
			TTLHours: 24,
		},
		Providers: &ProviderSettings{},
	}
}

// Load reads configuration from an HCL file, falling back to defaults
// when the file does not exist
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Store == nil {
		cfg.Store = &StoreSettings{}
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "cardroom.db"
	}
	if cfg.Store.TTLHours == 0 {
		cfg.Store.TTLHours = 24
	}
	if cfg.Providers == nil {
		cfg.Providers = &ProviderSettings{}
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Store.TTLHours < 1 {
		return fmt.Errorf("store ttl_hours must be positive, got %d", c.Store.TTLHours)
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s", c.Server.LogLevel)
	}
	return nil
}

// ListenAddress returns the full listen address
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
