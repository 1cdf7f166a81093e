package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Manage the phonoecho score database schema",
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return run(cmd, func(m *migrate.Migrate) error {
			if steps > 0 {
				return m.Steps(steps)
			}
			return m.Up()
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		return run(cmd, func(m *migrate.Migrate) error {
			if steps > 0 {
				return m.Steps(-steps)
			}
			return m.Down()
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Set the schema version without running migrations (fixes dirty state)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return run(cmd, func(m *migrate.Migrate) error {
			return m.Force(version)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := open(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("No migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Version: %d, Dirty: %v\n", version, dirty)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database URL (overrides DATABASE_URL env var)")
	rootCmd.PersistentFlags().String("path", "migrations", "Path to migration files")
	upCmd.Flags().Int("steps", 0, "Number of migrations to apply (0 = all)")
	downCmd.Flags().Int("steps", 0, "Number of migrations to roll back (0 = all)")

	rootCmd.AddCommand(upCmd, downCmd, forceCmd, versionCmd)
}

// open resolves the database URL from --db, then DATABASE_URL.
func open(cmd *cobra.Command) (*migrate.Migrate, error) {
	dbURL, _ := cmd.Flags().GetString("db")
	if dbURL == "" {
		_ = godotenv.Load()
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, errors.New("database URL is required: set --db or DATABASE_URL")
	}
	path, _ := cmd.Flags().GetString("path")

	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func run(cmd *cobra.Command, step func(*migrate.Migrate) error) error {
	m, err := open(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	err = step(m)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, _ := m.Version()
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Printf("No migrations to apply. Current version: %d\n", version)
	} else {
		fmt.Printf("Migration successful! Version: %d, Dirty: %v\n", version, dirty)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
