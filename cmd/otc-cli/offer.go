package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var (
	createOfferID     uint64
	createInputAsset  string
	createOutputAsset string
	createAmount      uint64
	createExpected    uint64
	createDeadline    int64
	createTTL         time.Duration
	createTakers      []string

	whitelistAdd    []string
	whitelistRemove []string
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Create, inspect and settle offers",
}

var offerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new offer and deposit its input tokens into the vault",
	Example: `  otc-cli offer create --id 1 --input-asset asset1... --output-asset asset1... \
      --amount 1000 --expected 2000 --ttl 24h --taker otc1...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		deadline := createDeadline
		if deadline == 0 {
			if createTTL <= 0 {
				return fmt.Errorf("either --deadline or --ttl is required")
			}
			deadline = time.Now().Add(createTTL).Unix()
		}
		body := map[string]any{
			"offerId":             createOfferID,
			"inputAsset":          createInputAsset,
			"outputAsset":         createOutputAsset,
			"tokenAmount":         createAmount,
			"expectedTotalAmount": createExpected,
			"deadline":            deadline,
		}
		if len(createTakers) > 0 {
			body["takers"] = createTakers
		}
		return call(cmd, http.MethodPost, "/v1/offers", body)
	},
}

var offerGetCmd = &cobra.Command{
	Use:   "get <offer>",
	Short: "Show an offer, including completed and cancelled ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, "/v1/offers/"+url.PathEscape(args[0]), nil)
	},
}

var offerByIDCmd = &cobra.Command{
	Use:   "by-id <maker> <offer-id>",
	Short: "Resolve an offer from its maker and numeric id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := strconv.ParseUint(args[1], 10, 64); err != nil {
			return fmt.Errorf("invalid offer id %q", args[1])
		}
		return call(cmd, http.MethodGet, "/v1/makers/"+url.PathEscape(args[0])+"/offers/"+args[1], nil)
	},
}

var offerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List offers that can still be filled",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, http.MethodGet, "/v1/offers", nil)
	},
}

var offerFillCmd = &cobra.Command{
	Use:   "fill <offer> <amount>",
	Short: "Take part or all of an offer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}
		return call(cmd, http.MethodPost, "/v1/offers/"+url.PathEscape(args[0])+"/fill", map[string]any{"amount": amount})
	},
}

var offerCancelCmd = &cobra.Command{
	Use:   "cancel <offer>",
	Short: "Cancel an offer and refund the remaining tokens to the maker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodPost, "/v1/offers/"+url.PathEscape(args[0])+"/cancel", nil)
	},
}

var offerExpireCmd = &cobra.Command{
	Use:   "expire <offer>",
	Short: "Mark an offer past its deadline as expired (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodPost, "/v1/offers/"+url.PathEscape(args[0])+"/expire", nil)
	},
}

var offerFillsCmd = &cobra.Command{
	Use:   "fills <offer>",
	Short: "List the indexed fills of an offer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, "/v1/offers/"+url.PathEscape(args[0])+"/fills", nil)
	},
}

var offerWhitelistCmd = &cobra.Command{
	Use:   "whitelist <offer>",
	Short: "Show or edit the taker allow-list of an offer",
	Long: `Without --add or --remove the current allow-list is printed. Otherwise
the maker's edits are applied; removals are processed before additions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/v1/offers/" + url.PathEscape(args[0]) + "/whitelist"
		if len(whitelistAdd) == 0 && len(whitelistRemove) == 0 {
			return call(cmd, http.MethodGet, path, nil)
		}
		return call(cmd, http.MethodPatch, path, map[string]any{
			"add":    whitelistAdd,
			"remove": whitelistRemove,
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show protocol-wide offer statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, http.MethodGet, "/v1/stats", nil)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the fee, whitelist and mint configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, http.MethodGet, "/v1/config", nil)
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance <account> <asset>",
	Short: "Show an account balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodGet, "/v1/balances/"+url.PathEscape(args[0])+"/"+url.PathEscape(args[1]), nil)
	},
}

func init() {
	rootCmd.AddCommand(offerCmd, statsCmd, configCmd, balanceCmd)
	offerCmd.AddCommand(offerCreateCmd, offerGetCmd, offerByIDCmd, offerListCmd, offerFillCmd,
		offerCancelCmd, offerExpireCmd, offerFillsCmd, offerWhitelistCmd)

	offerCreateCmd.Flags().Uint64Var(&createOfferID, "id", 0, "maker-chosen offer id")
	offerCreateCmd.Flags().StringVar(&createInputAsset, "input-asset", "", "asset the maker sells")
	offerCreateCmd.Flags().StringVar(&createOutputAsset, "output-asset", "", "asset the maker is paid in")
	offerCreateCmd.Flags().Uint64Var(&createAmount, "amount", 0, "input tokens deposited into the vault")
	offerCreateCmd.Flags().Uint64Var(&createExpected, "expected", 0, "total output tokens for the whole offer")
	offerCreateCmd.Flags().Int64Var(&createDeadline, "deadline", 0, "deadline as unix seconds")
	offerCreateCmd.Flags().DurationVar(&createTTL, "ttl", 0, "deadline relative to now (alternative to --deadline)")
	offerCreateCmd.Flags().StringSliceVar(&createTakers, "taker", nil, "initial whitelisted taker (repeatable)")
	for _, name := range []string{"input-asset", "output-asset", "amount", "expected"} {
		_ = offerCreateCmd.MarkFlagRequired(name)
	}

	offerWhitelistCmd.Flags().StringSliceVar(&whitelistAdd, "add", nil, "taker to add (repeatable)")
	offerWhitelistCmd.Flags().StringSliceVar(&whitelistRemove, "remove", nil, "taker to remove (repeatable)")
}

// call performs one request using the global flags and prints the result.
func call(cmd *cobra.Command, method, path string, body any) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), raw)
}
