package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "quadops",
	Short:        "Operate quadlet applications managed by quadopsd",
	SilenceUsage: true,
}

func defaultConfigPath() string {
	if env := os.Getenv("QUADOPS_CONFIG"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "quadops", "config.yaml")
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the configuration file")

	rootCmd.AddCommand(
		newListCmd(),
		newStatusCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newDeployCmd(),
		newManifestsCmd(),
		newBackupsCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
