package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-bookstore/internal/aws"
	"github.com/imrishuroy/go-bookstore/internal/config"
)

var Version = "dev"

type app struct {
	configPath string
	cfg        *config.Config
	clients    *aws.AWSClients
}

// load reads config and builds concrete AWS clients up front.
func (a *app) load(ctx context.Context) error {
	if a.cfg != nil {
		return nil
	}
	path := a.configPath
	if path == "" {
		path = os.Getenv("BOOKSTORE_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	clients, err := aws.NewEagerAWSClients(ctx, cfg.AWS.Settings())
	if err != nil {
		return fmt.Errorf("init aws clients: %w", err)
	}
	a.cfg = cfg
	a.clients = clients
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "bookstorectl",
		Short:         "Bookstore admin tool",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (default $BOOKSTORE_CONFIG)")

	rootCmd.AddCommand(booksCmd(a))
	rootCmd.AddCommand(ordersCmd(a))
	rootCmd.AddCommand(signCmd(a))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
