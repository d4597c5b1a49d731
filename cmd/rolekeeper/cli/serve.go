package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rolekeeper/rolekeeper/internal/config"
	"github.com/rolekeeper/rolekeeper/internal/hasura"
	rmcp "github.com/rolekeeper/rolekeeper/internal/mcp"
	"github.com/rolekeeper/rolekeeper/internal/server"
	"github.com/rolekeeper/rolekeeper/internal/server/middleware"
)

const banner = `
           _      _
 _ __ ___ | | ___| | _____  ___ _ __   ___ _ __
| '__/ _ \| |/ _ \ |/ / _ \/ _ \ '_ \ / _ \ '__|
| | | (_) | |  __/   <  __/  __/ |_) |  __/ |
|_|  \___/|_|\___|_|\_\___|\___| .__/ \___|_|
                               |_|
`

func newServeCmd() *cobra.Command {
	var noUI bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the role console",
		Long:  "Start the HTTP console: a JSON API and a browser UI for editing role permissions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), noUI)
		},
	}

	cmd.Flags().IntP("port", "p", 8090, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().Int("rate-limit", 0, "Requests per minute per client on /api/v1 (0 keeps the config value)")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Disable the browser UI")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("server.rate_limit.requests_per_minute", cmd.Flags().Lookup("rate-limit"))

	return cmd
}

func runServe(ctx context.Context, noUI bool) error {
	fmt.Print(banner)
	fmt.Println()

	metrics := middleware.NewMetrics(nil)
	ws, err := openWorkspace(ctx, hasura.WithObserver(metrics))
	if err != nil {
		return err
	}
	defer ws.Close()
	logger := ws.logger
	logger.Info("local store initialized", "path", resolveDataDir(ws.cfg))

	srvCfg, err := serverConfig(ws.cfg)
	if err != nil {
		return err
	}
	srvCfg.EnableUI = !noUI

	opts := []server.Option{server.WithMetrics(metrics)}
	if ws.cfg.MCP.Enabled {
		mcpSrv := rmcp.NewMCPServer(ws.session, ws.store, rmcp.Options{
			Version:  versionString(),
			ReadOnly: ws.cfg.MCP.ReadOnly,
		}, logger)
		opts = append(opts, server.WithMCP(mcpSrv.HTTPHandler()))
	}
	srv := server.New(srvCfg, ws.session, ws.store, logger, opts...)

	host := srvCfg.Host
	if host == "0.0.0.0" {
		host = "localhost"
	}
	fmt.Printf("→ rolekeeper %s\n", versionString())
	fmt.Printf("→ Metadata API: %s\n", ws.client.Endpoint())
	fmt.Printf("→ Listening on  http://%s:%d\n", host, srvCfg.Port)
	if srvCfg.EnableUI {
		fmt.Printf("→ Console:      http://%s:%d/\n", host, srvCfg.Port)
	}
	fmt.Printf("→ OpenAPI:      http://%s:%d/openapi.json\n", host, srvCfg.Port)
	if ws.cfg.MCP.Enabled {
		fmt.Printf("→ MCP:          http://%s:%d/mcp\n", host, srvCfg.Port)
	}
	fmt.Println()

	return srv.ListenAndServe()
}

// serverConfig converts the server section into a server.Config.
func serverConfig(cfg *config.YAMLConfig) (server.Config, error) {
	out := server.DefaultConfig()
	out.Host = cfg.Server.Host
	out.Port = cfg.Server.Port
	out.Version = versionString()
	if len(cfg.Server.CORS.Origins) > 0 {
		out.CORSOrigins = cfg.Server.CORS.Origins
	}
	if len(cfg.Server.CORS.Methods) > 0 {
		out.CORSMethods = cfg.Server.CORS.Methods
	}
	if cfg.Server.MaxBodySize != "" {
		n, err := config.ParseByteSize(cfg.Server.MaxBodySize)
		if err != nil {
			return server.Config{}, fmt.Errorf("server.max_body_size: %w", err)
		}
		out.MaxBodySize = n
	}
	if cfg.Server.ShutdownTimeout != "" {
		d, err := time.ParseDuration(cfg.Server.ShutdownTimeout)
		if err != nil {
			return server.Config{}, fmt.Errorf("server.shutdown_timeout: %w", err)
		}
		out.ShutdownTimeout = d
	}
	if cfg.Server.RateLimit.Enabled {
		out.RateLimit = cfg.Server.RateLimit.RequestsPerMinute
	}
	return out, nil
}
