package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/database"
)

// MigrateCmd returns the migrate command with up and down subcommands
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().String("migrations", "migrations", "Directory holding the SQL migrations")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := migrationTarget(cmd)
			if err != nil {
				return err
			}
			return database.Migrate(cfg.DatabaseURL, dir, newLogger(cfg))
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := migrationTarget(cmd)
			if err != nil {
				return err
			}
			steps, _ := cmd.Flags().GetInt("steps")
			return database.MigrateDown(cfg.DatabaseURL, dir, steps, newLogger(cfg))
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func migrationTarget(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, "", fmt.Errorf("DOCQA_DATABASE_URL is required")
	}
	dir, _ := cmd.Flags().GetString("migrations")
	return cfg, dir, nil
}
