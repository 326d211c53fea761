package main

import (
	"os"

	"github.com/checkpoint-edu/checkpoint/cmd/do/cmd"
	"github.com/checkpoint-edu/checkpoint/internal/config"
	"github.com/checkpoint-edu/checkpoint/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), "")

	rootCmd := &cobra.Command{
		Use:          "do",
		Short:        "Operator tools for checkpoint",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cmd.MigrateCmd(cfg))
	rootCmd.AddCommand(cmd.StorageCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
