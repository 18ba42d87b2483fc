package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/recidx/configs"
	"github.com/Aman-CERP/recidx/internal/config"
	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
	"github.com/Aman-CERP/recidx/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage recidx configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config ($XDG_CONFIG_HOME/recidx/config.yaml)
  3. Project config (.recidx.yaml in --dir)
  4. Environment variables (RECIDX_*)`,
		Example: `  # Write a project config with defaults
  recidx config init

  # Show effective configuration
  recidx config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults",
		Long: `Write a commented configuration file holding the default settings.

Without --user the project file .recidx.yaml is written in --dir. An
existing file is left alone unless --force is given, in which case it is
backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, template := filepath.Join(projectDir, config.ProjectFileName), configs.ProjectConfigTemplate
			if user {
				path, template = config.GetUserConfigPath(), configs.UserConfigTemplate
			}
			return runConfigInit(output.New(cmd.OutOrStdout()), path, template, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file after backing it up")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func runConfigInit(out *output.Writer, path, template string, force bool) error {
	if fileExists(path) {
		if !force {
			out.Warningf("configuration already exists: %s", path)
			out.Status("💡", "", "Use --force to replace it (a backup is kept)")
			return nil
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return fmt.Errorf("failed to back up config: %w", err)
		}
		out.Status("💾", "backup", backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	out.Successf("wrote %s", path)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(projectDir)
			if err != nil {
				return err
			}
			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			project := config.ProjectConfigPath(projectDir)
			if project == "" {
				project = "(none)"
			}
			user := config.GetUserConfigPath()
			if !config.UserConfigExists() {
				user += " (missing)"
			}
			output.NewPlain(cmd.OutOrStdout()).KeyValue(
				"user", user,
				"project", project,
			)
			return nil
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore a configuration file from a backup",
		Long: `Replace the configuration file with one of its backups. Without an
argument the newest backup is used. The current file is backed up first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(projectDir, config.ProjectFileName)
			if user {
				path = config.GetUserConfigPath()
			}
			backup := ""
			if len(args) == 1 {
				backup = args[0]
			}
			return runConfigRestore(output.New(cmd.OutOrStdout()), path, backup)
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Restore the user config instead of the project config")

	return cmd
}

func runConfigRestore(out *output.Writer, path, backup string) error {
	if backup == "" {
		backups, err := config.ListBackups(path)
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			return rxerrors.ValidationError("no backups of "+path, nil).
				WithSuggestion("Backups are written by 'recidx config init --force'")
		}
		backup = backups[0]
	}

	if err := config.RestoreBackup(path, backup); err != nil {
		return err
	}
	out.Successf("restored %s from %s", path, backup)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
