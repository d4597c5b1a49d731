package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	dataDir      string
	devMode      bool
	promptSecret bool
	appVersion   string // set in Execute, reported by serve and mcp
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rolekeeper",
		Short: "Manage role permissions in GraphQL engine metadata",
		Long: `rolekeeper edits the role permissions stored in a GraphQL engine's metadata.

It exports the metadata document over the metadata API, lets you list roles,
copy the permissions of one role to a new one or remove a role everywhere, and
replaces the document in one call. Use it from the command line, from the
browser console started by 'rolekeeper serve', or from AI agents through
'rolekeeper mcp'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./rolekeeper.yaml)")
	flags.StringVar(&dataDir, "data-dir", "", "data directory for the local store (default: ~/.rolekeeper)")
	flags.String("endpoint", "", "metadata API URL (env HASURA_ENDPOINT)")
	flags.String("admin-secret", "", "admin secret sent with every call (env HASURA_ADMIN_SECRET)")
	flags.BoolVar(&promptSecret, "prompt-secret", false, "read the admin secret from the terminal")
	flags.BoolVar(&devMode, "dev", false, "verbose logging")

	cobra.OnInitialize(initConfig)
	viper.BindPFlag("hasura.endpoint", flags.Lookup("endpoint"))
	viper.BindPFlag("hasura.admin_secret", flags.Lookup("admin-secret"))

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRoleCmd())
	cmd.AddCommand(newTableCmd())
	cmd.AddCommand(newSourceCmd())
	cmd.AddCommand(newMetadataCmd())
	cmd.AddCommand(newActivityCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newOpenAPICmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

// initConfig binds environment variables. The config file itself is read
// by loadConfig so that values saved in the local store can sit between
// the file and the environment.
func initConfig() {
	viper.SetEnvPrefix("ROLEKEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("hasura.endpoint", "ROLEKEEPER_HASURA_ENDPOINT", "HASURA_ENDPOINT")
	viper.BindEnv("hasura.admin_secret", "ROLEKEEPER_HASURA_ADMIN_SECRET", "HASURA_ADMIN_SECRET")
	viper.BindEnv("hasura.timeout")
	viper.BindEnv("server.host")
	viper.BindEnv("server.port")
	viper.BindEnv("server.rate_limit.requests_per_minute")
	viper.BindEnv("logging.level")
	viper.BindEnv("mcp.read_only")
	viper.BindEnv("data_dir")
}
