// Command riskctl is the operator CLI for a running riskd.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"risk-engine/internal/client"
	"risk-engine/internal/common"
	"risk-engine/internal/features"
)

const usage = `usage: riskctl [flags] <command> [args]

commands:
  health                      service and model status
  models                      loaded models
  score [file]                score a transaction (JSON, stdin when no file)
  explain [file]              top contributing fraud features
  record [file]               add a completed transaction to velocity history
  assess [file]               assess a credit request
  explain-credit [file]       top contributing credit features
  rules                       credit decision-tree rules
  drift <family>              recent score drift against the training baseline
  versions <family>           stored versions, newest first
  reload <family>             reload the active version
  activate <family> <version> activate and load a stored version
  rollback <family>           activate the previous version
`

func main() {
	var (
		addr    = flag.String("addr", serverURL(), "riskd base URL")
		timeout = flag.Duration("timeout", 10*time.Second, "Request timeout")
		top     = flag.Int("top", 5, "Factors returned by explain")
		depth   = flag.Int("depth", 5, "Maximum depth printed by rules")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := client.New(*addr, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := dispatch(ctx, c, args, *top, *depth)
	var apiErr *client.APIError
	if out != nil && (err == nil || errors.As(err, &apiErr) && args[0] == "score") {
		printJSON(out)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Request failed")
	}
}

func dispatch(ctx context.Context, c *client.Client, args []string, top, depth int) (any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "health":
		return c.Health(ctx)
	case "models":
		return c.Models(ctx)
	case "score":
		var t features.Transaction
		if err := readInput(rest, &t); err != nil {
			return nil, err
		}
		// the assessment body is still meaningful on a non-OK outcome
		return c.ScoreFraud(ctx, t)
	case "explain":
		var t features.Transaction
		if err := readInput(rest, &t); err != nil {
			return nil, err
		}
		return c.ExplainFraud(ctx, t, top)
	case "record":
		var t features.Transaction
		if err := readInput(rest, &t); err != nil {
			return nil, err
		}
		return c.RecordTransaction(ctx, t)
	case "assess":
		var r features.CreditRequest
		if err := readInput(rest, &r); err != nil {
			return nil, err
		}
		return c.AssessCredit(ctx, r)
	case "explain-credit":
		var r features.CreditRequest
		if err := readInput(rest, &r); err != nil {
			return nil, err
		}
		return c.ExplainCredit(ctx, r, top)
	case "rules":
		rules, err := c.CreditRules(ctx, depth)
		if err != nil {
			return nil, err
		}
		fmt.Print(rules)
		return nil, nil
	case "drift", "versions", "reload", "rollback":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%s needs a family", cmd)
		}
		switch cmd {
		case "drift":
			return c.Drift(ctx, rest[0])
		case "versions":
			return c.Versions(ctx, rest[0])
		case "reload":
			return c.Reload(ctx, rest[0])
		}
		return c.Rollback(ctx, rest[0])
	case "activate":
		if len(rest) != 2 {
			return nil, fmt.Errorf("activate needs a family and a version")
		}
		return c.Activate(ctx, rest[0], rest[1])
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func serverURL() string {
	if v := os.Getenv(common.EnvServerURL); v != "" {
		return v
	}
	return common.DefaultServerURL
}

// readInput decodes the JSON body from the named file, or stdin.
func readInput(args []string, v any) error {
	var r io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to print response")
	}
}
