package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config string
	user   string
}

var rootCmd = &cobra.Command{
	Use:   "volition",
	Short: "Personal autonomous agent runtime",
	Long: "Volition runs a personal agent: a plan/act/observe loop over trust-gated\n" +
		"skills, plus an agency pipeline that generates, reviews, and executes the\n" +
		"agent's own desires under a risk policy.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.config, "config", "", "config file (default ~/.volition/config.yaml)")
	pf.StringVar(&rootFlags.user, "user", "", "override the configured user")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(desireCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}
