package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rolekeeper/rolekeeper/internal/hasura"
)

// YAMLConfig represents the top-level rolekeeper configuration file.
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Hasura  HasuraConfig  `yaml:"hasura"`
	MCP     MCPConfig     `yaml:"mcp"`
	Logging LoggingConfig `yaml:"logging"`
	DataDir string        `yaml:"data_dir"`
}

// ServerConfig controls the HTTP console.
type ServerConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	MaxBodySize     string          `yaml:"max_body_size"`
	ShutdownTimeout string          `yaml:"shutdown_timeout"`
	CORS            CORSConfig      `yaml:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// RateLimitConfig throttles the console API per client address.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// HasuraConfig selects the metadata endpoint and its admin secret.
type HasuraConfig struct {
	Endpoint    string `yaml:"endpoint"`
	AdminSecret string `yaml:"admin_secret"`
	Timeout     string `yaml:"timeout"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
	ReadOnly  bool   `yaml:"read_only"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ClientConfig converts the hasura section into a transport config. Empty
// values fall back to the transport defaults.
func (h HasuraConfig) ClientConfig() (hasura.Config, error) {
	cfg := hasura.Config{Endpoint: h.Endpoint, AdminSecret: h.AdminSecret}
	if h.Timeout != "" {
		d, err := time.ParseDuration(h.Timeout)
		if err != nil {
			return hasura.Config{}, fmt.Errorf("parse hasura timeout %q: %w", h.Timeout, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
// Values missing from the file keep their defaults.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			MaxBodySize:     "32MB",
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 600,
			},
		},
		Hasura: HasuraConfig{
			Endpoint:    hasura.DefaultEndpoint,
			AdminSecret: hasura.DefaultAdminSecret,
			Timeout:     hasura.DefaultTimeout.String(),
		},
		MCP: MCPConfig{
			Enabled:   true,
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes a commented configuration file holding the
// defaults. The admin secret is read from the environment on load.
func WriteDefaultConfig(path string) error {
	return os.WriteFile(path, []byte(defaultConfigFile), 0644)
}

const defaultConfigFile = `# rolekeeper configuration

# Metadata API of the GraphQL engine
hasura:
  endpoint: http://localhost:8080/v1/metadata
  admin_secret: ${HASURA_ADMIN_SECRET}
  timeout: 30s

# HTTP console ('rolekeeper serve')
server:
  host: 0.0.0.0
  port: 8090
  max_body_size: 32MB
  shutdown_timeout: 30s
  cors:
    origins:
      - "*"
  rate_limit:
    enabled: false
    requests_per_minute: 600

# MCP server ('rolekeeper mcp', and /mcp on the console)
mcp:
  enabled: true
  transport: stdio
  read_only: false

# Logging
logging:
  level: info    # debug, info, warn, error
  format: text   # text or json

# Local store for settings and the activity log (default: ~/.rolekeeper)
# data_dir: /var/lib/rolekeeper
`

// ParseByteSize parses sizes such as "32MB", "512KB" or a plain byte count.
func ParseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			mult = unit.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
