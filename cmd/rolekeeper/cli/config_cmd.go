package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rolekeeper/rolekeeper/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rolekeeper configuration",
		Long: `Initialize a configuration file, display the effective configuration, or
read and write settings saved in the local store. Saved settings override the
config file; environment variables and flags override both.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigUnsetCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default rolekeeper.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

func runConfigInit(force bool) error {
	path := "rolekeeper.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Set HASURA_ADMIN_SECRET or edit the file, then run 'rolekeeper status'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return fmt.Errorf("open local store: %w", err)
			}
			defer store.Close()

			cfg, err := loadConfig(cmd.Context(), store)
			if err != nil {
				return err
			}
			if !reveal && cfg.Hasura.AdminSecret != "" {
				cfg.Hasura.AdminSecret = maskedValue
			}

			if path := resolveConfigFile(); path != "" {
				fmt.Printf("# Config file: %s\n", path)
			} else {
				fmt.Println("# Config file: (none found, using defaults)")
			}
			fmt.Printf("# Data dir:    %s\n", resolveDataDir(cfg))

			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the admin secret in clear")

	return cmd
}

const maskedValue = "********"

// ---------- config set / get / unset ----------

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Save a setting in the local store",
		Example: `  rolekeeper config set hasura.endpoint https://engine.example.com/v1/metadata
  rolekeeper config set console.default_copy_from user`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return fmt.Errorf("open local store: %w", err)
			}
			defer store.Close()

			if err := store.SetSetting(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", args[0])
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print saved settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return fmt.Errorf("open local store: %w", err)
			}
			defer store.Close()
			ctx := cmd.Context()

			if len(args) == 1 {
				v, err := store.GetSetting(ctx, args[0])
				if errors.Is(err, config.ErrNotFound) {
					return fmt.Errorf("setting %q is not set", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			}

			settings, err := store.ListSettings(ctx)
			if err != nil {
				return err
			}
			if len(settings) == 0 {
				fmt.Println("No settings saved.")
				return nil
			}
			t := newTable(os.Stdout, "KEY", "VALUE")
			for _, s := range settings {
				v := s.Value
				if strings.HasSuffix(s.Key, "secret") {
					v = maskedValue
				}
				t.AppendRow([]interface{}{s.Key, v})
			}
			t.Render()
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Delete a saved setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore()
			if err != nil {
				return fmt.Errorf("open local store: %w", err)
			}
			defer store.Close()

			err = store.DeleteSetting(cmd.Context(), args[0])
			if errors.Is(err, config.ErrNotFound) {
				return fmt.Errorf("setting %q is not set", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}
