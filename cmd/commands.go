package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"water_heater/internal/config"
	"water_heater/internal/repository"
	"water_heater/internal/repository/db"
	"water_heater/internal/service"
)

func newInitConfigCmd() *cobra.Command {
	var (
		path  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a default config file with a fresh JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			cfg.HTTP.JWTSecret = uuid.NewString()
			if err := config.WriteDefault(path, cfg, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "output", "o", config.DefaultPath, "destination file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API operators",
	}

	var password string
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an operator account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return errors.New("--password is required")
			}
			return withRepos(*configPath, func(cfg *config.Config, repos *repository.Repository) error {
				auth := service.NewAuthService(repos.Auth, cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL)
				id, err := auth.SignUp(cmd.Context(), args[0], password)
				if err != nil {
					return fmt.Errorf("create user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", args[0], id)
				return nil
			})
		},
	}
	add.Flags().StringVarP(&password, "password", "p", "", "operator password")

	cmd.AddCommand(add)
	return cmd
}

// newStatusCmd prints the last persisted snapshot. It reads the database
// only, so it works while the controller is running.
func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last persisted controller state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepos(*configPath, func(_ *config.Config, repos *repository.Repository) error {
				st, err := service.NewMonitoringService(repos.StateRepo).GetState(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			})
		},
	}
}

func withRepos(configPath string, fn func(*config.Config, *repository.Repository) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer closeDB(conn)
	return fn(cfg, repository.NewRepository(conn))
}

func closeDB(conn *sql.DB) {
	_ = conn.Close()
}

