package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	envEndpoint   = "OTC_ENDPOINT"
	envCaller     = "OTC_CALLER"
	envToken      = "OTC_TOKEN"
	envPassphrase = "OTC_KEYSTORE_PASSPHRASE"
)

var (
	// Global flags
	endpoint       string
	callerFlag     string
	tokenFlag      string
	keystoreFlag   string
	idempotencyKey string
	timeout        time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "otc-cli",
	Short: "Command line client for the otcd escrow API",
	Long: `otc-cli talks to a running otcd instance over its JSON/HTTP API.

Requests are signed with a bearer token when --token (or OTC_TOKEN) is set.
Against a daemon running with authentication disabled, the caller is sent in
the X-OTC-Caller header instead, taken from --caller or derived from --keystore.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", envOr(envEndpoint, "http://127.0.0.1:8080"), "otcd base URL")
	rootCmd.PersistentFlags().StringVar(&callerFlag, "caller", os.Getenv(envCaller), "caller address sent when auth is disabled")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv(envToken), "bearer token for authenticated requests")
	rootCmd.PersistentFlags().StringVar(&keystoreFlag, "keystore", "", "keystore whose address is used as the caller")
	rootCmd.PersistentFlags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency-Key header for signed requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
