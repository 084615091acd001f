package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalambet/void/internal/engine"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "void",
	Short:         "Conversational shell over a local or remote text engine",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().Bool("trim-output", false, "register the built-in output trimming hook")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(chatCmd, askCmd)
	rootCmd.AddCommand(historyCmd, pluginsCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var engErr *engine.Error
		if errors.As(err, &engErr) {
			printError("%s", engine.Describe(err))
		} else {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
