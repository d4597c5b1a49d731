package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/rolekeeper/rolekeeper/internal/config"
	"github.com/rolekeeper/rolekeeper/internal/console"
	"github.com/rolekeeper/rolekeeper/internal/hasura"
)

// resolveDataDir returns the data directory from --data-dir,
// ROLEKEEPER_DATA_DIR, the config file, or ~/.rolekeeper as fallback.
func resolveDataDir(cfg *config.YAMLConfig) string {
	if dataDir != "" {
		return dataDir
	}
	if dir := viper.GetString("data_dir"); dir != "" {
		return dir
	}
	if cfg != nil && cfg.DataDir != "" {
		return cfg.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rolekeeper")
}

// resolveConfigFile returns the config file to read, or "" when none exists.
func resolveConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	if env := os.Getenv("ROLEKEEPER_CONFIG"); env != "" {
		return env
	}
	candidates := []string{"rolekeeper.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".rolekeeper", "rolekeeper.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadConfig builds the effective configuration. Later sources win:
// defaults, config file, settings saved in store, environment, flags.
// store may be nil.
func loadConfig(ctx context.Context, store *config.Store) (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	if path := resolveConfigFile(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if store != nil {
		if err := applyStoredSettings(ctx, store, cfg); err != nil {
			return nil, err
		}
	}
	applyOverrides(cfg)

	if promptSecret {
		secret, err := readSecret("Admin secret: ")
		if err != nil {
			return nil, err
		}
		cfg.Hasura.AdminSecret = secret
	}
	return cfg, nil
}

func applyStoredSettings(ctx context.Context, store *config.Store, cfg *config.YAMLConfig) error {
	for key, dst := range map[string]*string{
		config.SettingHasuraEndpoint:    &cfg.Hasura.Endpoint,
		config.SettingHasuraAdminSecret: &cfg.Hasura.AdminSecret,
	} {
		v, err := store.GetSetting(ctx, key)
		if errors.Is(err, config.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read setting %s: %w", key, err)
		}
		*dst = v
	}
	return nil
}

// applyOverrides copies values set through the environment or flags.
func applyOverrides(cfg *config.YAMLConfig) {
	if viper.IsSet("hasura.endpoint") {
		cfg.Hasura.Endpoint = viper.GetString("hasura.endpoint")
	}
	if viper.IsSet("hasura.admin_secret") {
		cfg.Hasura.AdminSecret = viper.GetString("hasura.admin_secret")
	}
	if viper.IsSet("hasura.timeout") {
		cfg.Hasura.Timeout = viper.GetString("hasura.timeout")
	}
	if viper.IsSet("server.host") {
		cfg.Server.Host = viper.GetString("server.host")
	}
	if viper.IsSet("server.port") {
		cfg.Server.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.rate_limit.requests_per_minute") {
		cfg.Server.RateLimit.Enabled = true
		cfg.Server.RateLimit.RequestsPerMinute = viper.GetInt("server.rate_limit.requests_per_minute")
	}
	if viper.IsSet("logging.level") {
		cfg.Logging.Level = viper.GetString("logging.level")
	}
	if viper.IsSet("mcp.read_only") {
		cfg.MCP.ReadOnly = viper.GetBool("mcp.read_only")
	}
	if devMode {
		cfg.Logging.Level = "debug"
	}
}

// readSecret reads a line from the terminal without echoing it.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--prompt-secret needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read admin secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// newLogger creates the stderr logger configured by the logging section.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// workspace bundles what most commands need: configuration, the local
// store, a metadata client and an editing session over it.
type workspace struct {
	cfg     *config.YAMLConfig
	store   *config.Store
	logger  *slog.Logger
	client  *hasura.Client
	session *console.Session
}

// openWorkspace opens the local store and builds a session. The document
// is not fetched yet.
func openWorkspace(ctx context.Context, opts ...hasura.Option) (*workspace, error) {
	// The data dir may come from the config file, so read it once without
	// stored settings to locate the store.
	base, err := loadConfigFile()
	if err != nil {
		return nil, err
	}
	store, err := config.NewStore(resolveDataDir(base))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	cfg, err := loadConfig(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	clientCfg, err := cfg.Hasura.ClientConfig()
	if err != nil {
		store.Close()
		return nil, err
	}

	logger := newLogger(cfg.Logging)
	client := hasura.NewClient(clientCfg, opts...)
	return &workspace{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		client:  client,
		session: console.NewSession(client, store, logger),
	}, nil
}

// load fetches the metadata document into the session.
func (w *workspace) load(ctx context.Context) error {
	if _, err := w.session.Load(ctx); err != nil {
		if hasura.IsTransportError(err) {
			return fmt.Errorf("load metadata from %s: %w (check --endpoint and --admin-secret)", w.client.Endpoint(), err)
		}
		return fmt.Errorf("load metadata from %s: %w", w.client.Endpoint(), err)
	}
	return nil
}

func (w *workspace) Close() error {
	return w.store.Close()
}

func loadConfigFile() (*config.YAMLConfig, error) {
	if path := resolveConfigFile(); path != "" {
		return config.LoadYAMLConfig(path)
	}
	return config.DefaultYAMLConfig(), nil
}

// openConfigStore opens the local store without contacting the engine.
func openConfigStore() (*config.Store, error) {
	base, err := loadConfigFile()
	if err != nil {
		return nil, err
	}
	return config.NewStore(resolveDataDir(base))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
