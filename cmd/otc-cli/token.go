package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"otcswap/config"
	"otcswap/crypto"
	"otcswap/gateway/middleware"
)

var (
	tokenSecret   string
	tokenSubject  string
	tokenScopes   []string
	tokenIssuer   string
	tokenAudience string
	tokenTTL      time.Duration
	keyOut        string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an HS256 bearer token for a caller address (development only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = os.Getenv(config.EnvHMACSecret)
		}
		subject := strings.TrimSpace(tokenSubject)
		if subject == "" {
			return fmt.Errorf("--subject is required")
		}
		if _, err := crypto.ParseAddress(subject); err != nil {
			return fmt.Errorf("subject: %w", err)
		}
		signed, err := middleware.IssueToken(secret, tokenIssuer, tokenAudience, subject, tokenScopes, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
		return err
	},
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage local caller keys",
}

var keyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a key into an encrypted keystore and print its address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(keyOut); err == nil {
			return fmt.Errorf("keystore %s already exists", keyOut)
		}
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return err
		}
		pass, err := keystorePassphrase.get()
		if err != nil {
			return err
		}
		if err := crypto.SaveToKeystore(keyOut, key, pass); err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), crypto.FormatAccount(key.PubKey().Address().Bytes()))
		return err
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd, keyCmd)
	keyCmd.AddCommand(keyNewCmd)

	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HMAC secret (defaults to "+config.EnvHMACSecret+")")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "caller address carried in the sub claim")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", nil, "granted scope (repeatable, e.g. otc:admin)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "iss claim")
	tokenCmd.Flags().StringVar(&tokenAudience, "audience", "", "aud claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")

	keyNewCmd.Flags().StringVar(&keyOut, "out", "caller.keystore", "keystore output path")
}
