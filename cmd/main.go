// @title        Water Heater Controller API
// @version      1.0
// @description  Read-only operator API for the water heater and circulation pump controller.
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "water_heater/docs"
	"water_heater/internal/config"
	"water_heater/internal/service"
	"water_heater/internal/version"
)

// exitRestart tells the service manager to start the process again.
const exitRestart = 3

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, service.ErrRestartRequested) {
			os.Exit(exitRestart)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "water-heater",
		Short:         "Water heater and circulation pump controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runController(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath+")")

	root.AddCommand(
		newRunCmd(&configPath),
		newInitConfigCmd(),
		newUserCmd(&configPath),
		newStatusCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the controller (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runController(cmd.Context(), *configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
