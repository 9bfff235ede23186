package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-bookstore/internal/orders"
	"github.com/imrishuroy/go-bookstore/internal/payment"
)

func ordersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect orders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [order-id]",
		Short: "Print an order as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			o, err := orders.NewStore(a.clients.DynamoDB, a.cfg.Tables.Orders).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if o == nil {
				return fmt.Errorf("order %s not found", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(o)
		},
	})
	return cmd
}

func signCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sign [gateway-order-id] [payment-id]",
		Short: "Print the checkout signature the gateway would send",
		Long: `Print the HMAC-SHA256 signature for a gateway order and payment,
keyed with the configured gateway secret. Useful for exercising
/verify-payment against a test deployment.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			if a.cfg.Gateway.KeySecret == "" {
				return fmt.Errorf("RAZORPAY_KEY_SECRET is not configured")
			}
			fmt.Fprintln(cmd.OutOrStdout(), payment.Sign(a.cfg.Gateway.KeySecret, args[0], args[1]))
			return nil
		},
	}
}
