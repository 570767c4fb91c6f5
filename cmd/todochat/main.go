// Todochat is a natural-language task assistant. A reasoning service is
// given six task tools and drives them on behalf of an authenticated owner
// until it can answer the user's message.
//
// Usage:
//
//	todochat serve                       Start the API server
//	todochat init [dir]                  Write an example config.yaml
//	todochat ask -user <owner> <message> Run one chat turn from the shell
//	todochat token -user <owner>         Mint an API bearer token
//	todochat version                     Print version and build information
//	todochat -o json version             Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/laraib28/todo-k8s/internal/api"
	"github.com/laraib28/todo-k8s/internal/auth"
	"github.com/laraib28/todo-k8s/internal/buildinfo"
	"github.com/laraib28/todo-k8s/internal/config"
	"github.com/laraib28/todo-k8s/internal/connwatch"
)

// main only builds the OS-level environment and hands off to run, so the
// whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package's global FlagSet gets in the way of calling run from parallel
// tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case args[i] == "-user" && i+1 < len(args):
			// Subcommand flag; ownerFlag parses it.
			cmdArgs = append(cmdArgs, args[i], args[i+1])
			i++
		case strings.HasPrefix(args[i], "-user="):
			cmdArgs = append(cmdArgs, args[i])
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		case !strings.HasPrefix(args[i], "-"):
			cmdArgs = append(cmdArgs, args[i])
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		owner, rest, err := ownerFlag(cmdArgs)
		if err != nil {
			return err
		}
		if owner == "" || len(rest) == 0 {
			return fmt.Errorf("usage: todochat ask -user <owner> <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, owner, strings.Join(rest, " "))
	case "token":
		owner, rest, err := ownerFlag(cmdArgs)
		if err != nil {
			return err
		}
		if owner == "" || len(rest) > 0 {
			return fmt.Errorf("usage: todochat token -user <owner>")
		}
		return runToken(stdout, configPath, owner)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// ownerFlag extracts "-user <owner>" or "-user=<owner>" from args and
// returns the remaining arguments.
func ownerFlag(args []string) (string, []string, error) {
	var owner string
	var rest []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-user":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("-user requires a value")
			}
			owner = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-user="):
			owner = strings.TrimPrefix(args[i], "-user=")
		default:
			rest = append(rest, args[i])
		}
	}
	return strings.TrimSpace(owner), rest, nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "todochat - natural-language task assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: todochat [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                         Start the API server")
	fmt.Fprintln(w, "  init [dir]                    Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  ask -user <owner> <message>   Run one chat turn")
	fmt.Fprintln(w, "  token -user <owner>           Mint an API bearer token")
	fmt.Fprintln(w, "  version                       Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/todochat/config.yaml, /etc/todochat/config.yaml")
	return nil
}

// runAsk runs a single chat turn through the full stack, against the
// configured database and reasoning service.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, owner, message string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stderr, level, cfg.LogFormat)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.loop.ProcessMessage(ctx, owner, message)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(stdout, resp.Message)
	if md := resp.Metadata; md != nil {
		line := "[" + md.Action
		if md.TaskID != nil {
			line += fmt.Sprintf(" task_id=%d", *md.TaskID)
		}
		if md.Count != nil {
			line += fmt.Sprintf(" count=%d", *md.Count)
		}
		fmt.Fprintln(stdout, line+"]")
	}
	return nil
}

// runToken prints a bearer token for owner signed with auth.jwt_secret.
func runToken(stdout io.Writer, configPath, owner string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}
	tok, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), owner, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(stdout, tok)
	return nil
}

// runServe starts the API server and blocks until SIGINT or SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stdout, level, cfg.LogFormat)
	logger.Info("starting todochat", "version", buildinfo.Version, "config", cfgPath)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Auth.DevOwner != "" {
		logger.Warn("unauthenticated requests are attributed to the dev owner", "dev_owner", cfg.Auth.DevOwner)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Some provider pings are billed requests, so they poll less often
	// than the database.
	providerSchedule := connwatch.DefaultSchedule
	providerSchedule.PollInterval = 5 * time.Minute

	watch := connwatch.NewManager(logger)
	defer watch.Stop()
	for name, p := range a.providers {
		watch.Watch(ctx, name, p.Ping, providerSchedule, func(ready bool, _ error) {
			a.metrics.DependencyUp(name, ready)
		})
	}
	watch.Watch(ctx, "database", a.db.PingContext, connwatch.DefaultSchedule, func(ready bool, _ error) {
		a.metrics.DependencyUp("database", ready)
	})

	srv := api.NewServer(api.Config{
		Address:        cfg.Listen.Address,
		Port:           cfg.Listen.Port,
		Logger:         logger,
		Chat:           a.loop,
		History:        a.memory,
		Usage:          a.usage,
		Auth:           auth.NewResolver([]byte(cfg.Auth.JWTSecret), cfg.Auth.DevOwner),
		Metrics:        a.metrics,
		DB:             a.db,
		Deps:           watch,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// loadConfig locates and parses the YAML configuration file. An explicit
// path must exist; otherwise the default locations are searched.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
