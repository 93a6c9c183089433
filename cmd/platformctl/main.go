// Package main provides a command line client for the platform API that
// reads through, inspects and maintains the local caches.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/guarzo/platformapi/common"
	"github.com/guarzo/platformapi/modules/platform"
	"github.com/guarzo/platformapi/modules/standings"
)

const usage = `usage: platformctl <command> [flags] [args]

commands:
  get [-ttl d] [-persist] [-no-cache] <endpoint>   fetch an endpoint through the cache
  standings [-refresh] <contest-id>                  print a contest scoreboard
  invalidate [-prefix] [-regexp] <pattern>           drop matching cache entries
  clear                                              drop every cache entry
  prune                                              drop expired durable entries
  stats                                              print durable tier counters
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	logger := common.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.SetOutput(stderr)

	stack, err := platform.NewStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Errorf("close stack: %v", err)
		}
	}()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "get":
		return runGet(ctx, stack, rest, stdout, stderr)
	case "standings":
		return runStandings(ctx, stack, rest, stdout, stderr)
	case "invalidate":
		return runInvalidate(ctx, stack, rest, stderr)
	case "clear":
		stack.Invalidate.All(ctx)
		return nil
	case "prune":
		n, err := stack.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "pruned %d entries\n", n)
		return nil
	case "stats":
		return writeJSON(stdout, map[string]any{
			"session":    stack.Stores.Session.Stats(),
			"persistent": stack.Stores.Persistent.Stats(),
			"degraded":   stack.Stores.Session.Degraded() || stack.Stores.Persistent.Degraded(),
		})
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runGet(ctx context.Context, stack *platform.Stack, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ttl := fs.Duration("ttl", stack.Config.DefaultCacheTTL, "how long to cache the response")
	persist := fs.Bool("persist", false, "cache in the persistent tier instead of the session tier")
	noCache := fs.Bool("no-cache", false, "bypass the caches")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("get takes exactly one endpoint")
	}

	var policy *platform.CachePolicy
	switch {
	case *noCache:
	case *persist:
		policy = platform.PersistFor(*ttl)
	default:
		policy = platform.CacheFor(*ttl)
	}

	data, err := stack.Client.GetBytes(ctx, fs.Arg(0), policy)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s (status %d)", apiErr.Message, apiErr.StatusCode)
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var pretty any
	if err := json.Unmarshal(data, &pretty); err != nil {
		return err
	}
	return writeJSON(stdout, pretty)
}

func runStandings(ctx context.Context, stack *platform.Stack, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("standings", flag.ContinueOnError)
	fs.SetOutput(stderr)
	refresh := fs.Bool("refresh", false, "drop cached pages before fetching")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("standings takes exactly one contest id")
	}
	contestID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid contest id %q: %w", fs.Arg(0), err)
	}

	svc := standings.NewStandingsService(
		standings.NewStandingsClient(stack.Client, stack.Invalidate),
		stack.Service,
		common.DiscardLogger(),
	)
	get := svc.GetStandings
	if *refresh {
		get = svc.Refresh
	}

	started := time.Now()
	rows, err := get(ctx, contestID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		fmt.Fprintf(stdout, "%4d  %-24s %8.1f  %3d\n", r.Rank, r.Username, r.Score, r.Solved)
	}
	fmt.Fprintf(stderr, "%d rows in %s\n", len(rows), time.Since(started).Round(time.Millisecond))
	return nil
}

func runInvalidate(ctx context.Context, stack *platform.Stack, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("invalidate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.Bool("prefix", false, "treat the pattern as a key prefix")
	re := fs.Bool("regexp", false, "treat the pattern as a regular expression")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("invalidate takes exactly one pattern")
	}
	if *prefix && *re {
		return errors.New("-prefix cannot be combined with -regexp")
	}

	pattern := fs.Arg(0)
	switch {
	case *prefix:
		stack.Invalidate.Prefix(ctx, pattern)
	case *re:
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		stack.Invalidate.Regexp(ctx, compiled)
	default:
		stack.Invalidate.Pattern(ctx, pattern)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
