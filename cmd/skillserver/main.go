// skillserver serves the built-in chain skills behind an x402 payment gate.
//
// Usage:
//
//	skillserver --pay-to 0x... [--port 4020] [--network base] [--rpc URL]
//
// Settings fall back to SKILLPAY_* environment variables and ./.env.
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
	"github.com/skillpay/x402-skills/server"
	"github.com/skillpay/x402-skills/skills"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var overrides config.Config
	var envFile, manifestName string
	var disableCORS, verbose bool

	flagSet := pflag.NewFlagSet("skillserver", pflag.ContinueOnError)
	flagSet.IntVar(&overrides.Port, "port", 0, "listen port (default $PORT or 4020)")
	flagSet.StringVar(&overrides.PayTo, "pay-to", "", "address receiving payments (default $SKILLPAY_PAY_TO)")
	flagSet.StringVar(&overrides.Network, "network", "", "network name (default $SKILLPAY_NETWORK or base)")
	flagSet.StringVar(&overrides.FacilitatorURL, "facilitator", "", "facilitator URL (default $SKILLPAY_FACILITATOR_URL)")
	flagSet.StringVar(&overrides.RPCURL, "rpc", "", "chain RPC URL (default $SKILLPAY_RPC_URL or the network's public RPC)")
	flagSet.StringVar(&envFile, "env-file", ".env", "optional env file")
	flagSet.StringVar(&manifestName, "manifest-name", "skillpay", "name published in /manifest.json")
	flagSet.BoolVar(&disableCORS, "no-cors", false, "disable CORS headers")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
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
	if err := cfg.RequirePayTo(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpc, err := skills.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer rpc.Close()

	srv := server.New(server.Config{
		PayTo:          cfg.PayTo,
		Network:        cfg.Network,
		FacilitatorURL: cfg.FacilitatorURL,
		DisableCORS:    disableCORS,
		Logger:         logger,
	})
	if err := skills.Register(srv, skills.New(rpc, cfg.Network, skills.WithLogger(logger))); err != nil {
		return err
	}
	if err := srv.ServeManifest(manifestName, "On-chain skills for agents, paid per call in USDC via x402"); err != nil {
		return err
	}

	logger.Info("starting skill server", "addr", cfg.Addr(), "network", cfg.Network, "pay_to", cfg.PayTo)
	return srv.Listen(ctx, cfg.Addr())
}
