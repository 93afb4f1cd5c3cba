// Command partview normalizes, renders and follows agent network chat
// threads.
//
// # Subcommands
//
//	normalize -in conv.json                 print the normalized conversation
//	render    -in conv.json [-status ready] print the rendering plan
//	import    -in conv.json -thread ID      save a conversation to the store
//	publish   -in arrivals.jsonl -thread ID publish live arrivals to Pulse
//	follow    -thread ID [-persist]         render history then live arrivals
//	delete    -thread ID                    remove a stored thread
//
// # Configuration
//
// Environment variables:
//
//	PARTVIEW_MONGO_URI        - MongoDB URI; selects the Mongo thread store
//	PARTVIEW_MONGO_DB         - MongoDB database (default: "partview")
//	REDIS_URL                 - Redis address; selects the replicated store and
//	                            enables Pulse transport
//	REDIS_PASSWORD            - Redis password (optional)
//	PARTVIEW_PRODUCTION       - "true" silences missing renderer warnings
//	PARTVIEW_REGISTRY_CONFIG  - YAML file of renderer priority overrides
//
// When neither PARTVIEW_MONGO_URI nor REDIS_URL is set threads are kept in
// memory for the lifetime of the process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"goa.design/clue/log"
)

type config struct {
	mongoURI       string
	mongoDB        string
	redisURL       string
	redisPassword  string
	production     bool
	registryConfig string
	debug          bool
	strict         bool
	out            io.Writer
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cfg := config{
		mongoURI:       os.Getenv("PARTVIEW_MONGO_URI"),
		mongoDB:        envOr("PARTVIEW_MONGO_DB", "partview"),
		redisURL:       os.Getenv("REDIS_URL"),
		redisPassword:  os.Getenv("REDIS_PASSWORD"),
		production:     envBoolOr("PARTVIEW_PRODUCTION", false),
		registryConfig: os.Getenv("PARTVIEW_REGISTRY_CONFIG"),
		out:            os.Stdout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	err := run(ctx, cfg, cmd, args)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if errors.Is(err, errUsage) {
		usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf(logContext(ctx, cfg), err, "partview %s", cmd)
	}
}

var errUsage = errors.New("unknown subcommand")

func run(ctx context.Context, cfg config, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		inF     = fs.String("in", "", "Input file (\"-\" reads stdin)")
		threadF = fs.String("thread", "", "Thread identifier")
		statusF = fs.String("status", string(defaultStatus), "Stream status used to render the last message")
		healthF = fs.String("health-addr", "", "Serve the health check on this address (follow only)")
		viewerF = fs.String("viewer", "", "Pulse consumer group name (follow only)")
		persF   = fs.Bool("persist", false, "Append live messages to the store when the stream settles (follow only)")
		strictF = fs.Bool("strict", false, "Validate part records against the part JSON Schema")
		dbgF    = fs.Bool("debug", false, "Enable debug logs")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.debug = *dbgF
	cfg.strict = *strictF
	ctx = logContext(ctx, cfg)

	switch cmd {
	case "normalize":
		return normalizeCmd(ctx, cfg, *inF)
	case "render":
		return renderCmd(ctx, cfg, *inF, *statusF)
	case "import":
		return importCmd(ctx, cfg, *inF, *threadF)
	case "publish":
		return publishCmd(ctx, cfg, *inF, *threadF)
	case "follow":
		return followCmd(ctx, cfg, *threadF, *viewerF, *healthF, *persF)
	case "delete":
		return deleteCmd(ctx, cfg, *threadF)
	default:
		return errUsage
	}
}

func logContext(ctx context.Context, cfg config) context.Context {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx = log.Context(ctx, log.WithFormat(format), log.WithOutput(os.Stderr))
	if cfg.debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	return ctx
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: partview normalize|render|import|publish|follow|delete [flags]")
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envBoolOr returns the environment variable as bool or a default.
func envBoolOr(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
