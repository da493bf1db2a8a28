// x402pay calls an x402-paywalled URL, paying with a local key.
//
// Usage:
//
//	x402pay [--method POST] [--data '{"q":1}'] [--header K:V] [--max-amount 10000] URL
//
// The key comes from SKILLPAY_PRIVATE_KEY or WALLET_KEY. The call result is
// printed to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	x402 "github.com/skillpay/x402-skills"
	"github.com/skillpay/x402-skills/client"
	"github.com/skillpay/x402-skills/config"
)

type output struct {
	Status     int             `json:"status"`
	PaidAmount string          `json:"paidAmount"`
	ElapsedMs  int64           `json:"responseTimeMs"`
	Data       json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var method, data, maxAmount, envFile string
	var headers []string
	var timeout time.Duration
	var verbose bool

	flagSet := pflag.NewFlagSet("x402pay", pflag.ContinueOnError)
	flagSet.StringVarP(&method, "method", "X", "GET", "HTTP method")
	flagSet.StringVarP(&data, "data", "d", "", "JSON request body")
	flagSet.StringArrayVarP(&headers, "header", "H", nil, "extra request header as Name:Value, repeatable")
	flagSet.StringVar(&maxAmount, "max-amount", client.DefaultPayMaxAmount, "maximum payment in atomic USDC")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall call timeout")
	flagSet.StringVar(&envFile, "env-file", ".env", "optional env file")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log the payment flow to stderr")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("%w: expected exactly one URL argument", x402.ErrValidation)
	}

	cfg, err := config.Load(config.Config{}, envFile)
	if err != nil {
		return err
	}
	if err := cfg.RequireKey(); err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	c, err := client.New(client.Config{
		PrivateKey: cfg.PrivateKey,
		Network:    cfg.Network,
		Logger:     slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	})
	if err != nil {
		return err
	}

	opts := client.PayOptions{Method: method, MaxAmount: maxAmount}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return fmt.Errorf("%w: --data is not valid JSON", x402.ErrValidation)
		}
		opts.Body = json.RawMessage(data)
	}
	if len(headers) > 0 {
		opts.Headers = make(map[string]string, len(headers))
		for _, header := range headers {
			name, value, ok := strings.Cut(header, ":")
			if !ok {
				return fmt.Errorf("%w: header %q is not Name:Value", x402.ErrValidation, header)
			}
			opts.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.Pay(ctx, flagSet.Arg(0), opts)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output{
		Status:     result.Status,
		PaidAmount: result.PaidAmount,
		ElapsedMs:  result.ElapsedMs(),
		Data:       result.Data,
	})
}
