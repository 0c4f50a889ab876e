package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	initFee              uint64
	initFeeWallet        string
	initRequireWhitelist bool
	initMints            []string
	expireDueLimit       int
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Protocol administration (requires the otc:admin scope)",
}

var adminInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialise the admin configuration with the caller as admin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, http.MethodPost, "/v1/admin/init", map[string]any{
			"feePercentage":    initFee,
			"feeWallet":        initFeeWallet,
			"requireWhitelist": initRequireWhitelist,
			"mints":            initMints,
		})
	},
}

var adminFeeCmd = &cobra.Command{
	Use:   "fee <basis-points>",
	Short: "Set the fee applied to offers created from now on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bps, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid fee %q", args[0])
		}
		return call(cmd, http.MethodPut, "/v1/admin/fee", map[string]any{"feePercentage": bps})
	},
}

var adminFeeAddressCmd = &cobra.Command{
	Use:   "fee-address <wallet>",
	Short: "Set the wallet that receives fees on new offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodPut, "/v1/admin/fee-address", map[string]any{"wallet": args[0]})
	},
}

var adminToggleWhitelistCmd = &cobra.Command{
	Use:   "toggle-whitelist",
	Short: "Flip the global taker whitelist requirement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, http.MethodPost, "/v1/admin/whitelist/toggle", nil)
	},
}

var adminMintsCmd = &cobra.Command{
	Use:   "mints",
	Short: "Edit the allowed asset list",
}

var adminMintsAddCmd = &cobra.Command{
	Use:   "add <mint>...",
	Short: "Allow assets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodPost, "/v1/admin/mints", map[string]any{"mints": args})
	},
}

var adminMintsRemoveCmd = &cobra.Command{
	Use:   "remove <mint>...",
	Short: "Disallow assets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, http.MethodDelete, "/v1/admin/mints", map[string]any{"mints": args})
	},
}

var adminExpireDueCmd = &cobra.Command{
	Use:   "expire-due",
	Short: "Expire every offer past its deadline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return call(cmd, http.MethodPost, "/v1/admin/expire-due", map[string]any{"limit": expireDueLimit})
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminInitCmd, adminFeeCmd, adminFeeAddressCmd, adminToggleWhitelistCmd, adminMintsCmd, adminExpireDueCmd)
	adminMintsCmd.AddCommand(adminMintsAddCmd, adminMintsRemoveCmd)

	adminInitCmd.Flags().Uint64Var(&initFee, "fee", 0, "fee in basis points")
	adminInitCmd.Flags().StringVar(&initFeeWallet, "fee-wallet", "", "fee wallet (defaults to the caller)")
	adminInitCmd.Flags().BoolVar(&initRequireWhitelist, "require-whitelist", false, "require a taker whitelist on every offer")
	adminInitCmd.Flags().StringSliceVar(&initMints, "mint", nil, "allowed asset (repeatable)")

	adminExpireDueCmd.Flags().IntVar(&expireDueLimit, "limit", 0, "maximum offers to expire (0 for all)")
}
