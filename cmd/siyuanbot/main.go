// Package main is the entry point of the SiYuan inbox bot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is injected at build time via ldflags.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "siyuan-bot",
		Short:   "Chat bot that forwards messages into a SiYuan inbox",
		Version: version,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and its ops HTTP endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			runServe(configPath)
			return nil
		},
	}
}
