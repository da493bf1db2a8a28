// skillpay-mcp runs the SkillPay MCP plugin over stdio.
//
// Add it to an MCP client configuration with SKILLPAY_PRIVATE_KEY set, or
// start without a key and call skillpay_setup.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/skillpay/x402-skills/config"
	"github.com/skillpay/x402-skills/mcp"
	"github.com/skillpay/x402-skills/spend"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start skillpay MCP server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var overrides config.Config
	var envFile, limit string

	flagSet := pflag.NewFlagSet("skillpay-mcp", pflag.ContinueOnError)
	flagSet.StringVar(&overrides.APIURL, "api-url", "", "skill server URL (default $SKILLPAY_API_URL)")
	flagSet.StringVar(&overrides.Network, "network", "", "network name (default $SKILLPAY_NETWORK or base)")
	flagSet.StringVar(&envFile, "env-file", ".env", "optional env file")
	flagSet.StringVar(&limit, "spend-limit", "", "session budget in USD, e.g. 1.00")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(overrides, envFile)
	if err != nil {
		return err
	}

	// stdout carries the MCP transport
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	governor := spend.New()
	if limit != "" {
		if err := governor.SetLimit(limit); err != nil {
			return err
		}
	}

	plugin, err := mcp.NewPlugin(mcp.Config{
		PrivateKey: cfg.PrivateKey,
		APIURL:     cfg.APIURL,
		Network:    cfg.Network,
		Logger:     logger,
	}, governor)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mcp.Serve(ctx, plugin)
}
