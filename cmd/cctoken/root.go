package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "cctoken",
		Short: "Acquire and inspect OAuth2 client credentials tokens",
		Long: `cctoken requests access tokens with the OAuth2 client credentials grant,
verifies JWT access tokens against a JWKS endpoint, and runs a local
authorization server for testing.

Defaults are read from CCTOKEN_* environment variables; flags override them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP timeout for outbound requests")
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Log requests and token events")

	root.AddCommand(newTokenCmd(cfg), newVerifyCmd(cfg), newServeCmd(cfg))
	return root
}
