package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/junhyuck/slackpomo/internal/config"
	"github.com/junhyuck/slackpomo/internal/observability"
	"github.com/junhyuck/slackpomo/internal/slack"
	"github.com/junhyuck/slackpomo/internal/timer"
	"github.com/junhyuck/slackpomo/internal/tools"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve(os.Args[2:])
	case "tools":
		listTools(os.Args[2:])
	case "check":
		check(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  slackpomo serve [--config <file.yaml>]")
	fmt.Fprintln(os.Stderr, "  slackpomo tools [--config <file.yaml>]")
	fmt.Fprintln(os.Stderr, "  slackpomo check [--config <file.yaml>]")
}

func parseConfigFlag(args []string) string {
	var path string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			path = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}
	return path
}

// buildRegistry assembles the full dependency chain from configuration.
func buildRegistry(cfg *config.Config) (*tools.Registry, *slack.Client, error) {
	logger := observability.Logger()

	creds, err := slack.NewCredentialStore(cfg.BotToken, cfg.UserToken, observability.WithComponent("credentials"))
	if err != nil {
		return nil, nil, err
	}
	dispatcher := slack.NewDispatcher(creds, slack.DispatcherOptions{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout(),
		Backoff: slack.BackoffPolicy{
			BaseDelay:   cfg.RetryBaseDelay(),
			Factor:      cfg.BackoffFactor,
			MaxAttempts: cfg.MaxRetries,
		},
		Logger: observability.WithComponent("dispatcher"),
	})
	client := slack.NewClient(dispatcher, observability.WithComponent("client"))
	uploader := slack.NewUploader(client, slack.Thresholds{
		InlineMax:   cfg.Upload.InlineMaxBytes,
		SnippetMax:  cfg.Upload.SnippetMaxBytes,
		StandardMax: cfg.Upload.StandardMaxBytes,
		ElevatedMax: cfg.Upload.ElevatedMaxBytes,
	}, observability.WithComponent("uploader"))
	timers := timer.NewManager(client, timer.DefaultsFrom(cfg.Timer), observability.WithComponent("timers"))

	registry, err := tools.BuildRegistry(tools.Deps{
		Client:   client,
		Uploader: uploader,
		Timers:   timers,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return registry, client, nil
}

// selfTest verifies the primary credential against the live API. A missing or
// bad elevated credential is reported but does not block startup: it only
// disables search and the largest upload tier.
func selfTest(ctx context.Context, client *slack.Client) error {
	logger := observability.WithComponent("startup")
	id, err := client.AuthTest(ctx, slack.CapabilityNone)
	if err != nil {
		return fmt.Errorf("primary credential check failed: %w", err)
	}
	logger.Info("authenticated", "user", id.User, "team", id.Team)

	if client.Dispatcher().HasElevated() {
		if _, err := client.AuthTest(ctx, slack.CapabilityElevated); err != nil {
			logger.Warn("elevated credential check failed, search disabled", "error", err)
		} else {
			logger.Info("elevated credential verified")
		}
	} else {
		logger.Info("no elevated credential configured, search disabled")
	}
	return nil
}

// request is one line of the stdin protocol.
type request struct {
	ID   string          `json:"id"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// response mirrors tools.Result with the request id echoed back.
type response struct {
	ID      string `json:"id,omitempty"`
	Tool    string `json:"tool"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

// serve runs the line-oriented dispatch loop: one JSON request per stdin
// line, one JSON response per stdout line. Logs go to stderr only.
func serve(args []string) {
	cfg, err := config.Load(parseConfigFlag(args))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	observability.Configure(cfg.LogLevel)
	logger := observability.WithComponent("serve")

	registry, client, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := selfTest(ctx, client); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Info("ready", "tools", len(registry.Names()))

	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(response{Output: fmt.Sprintf("invalid request JSON: %v", err), IsError: true})
			continue
		}
		res := registry.Dispatch(ctx, req.Tool, req.Args)
		_ = enc.Encode(response{ID: req.ID, Tool: res.Tool, Output: res.Output, IsError: res.IsError})

		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("stdin read failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}

// listTools prints the registered tool definitions as JSON.
func listTools(args []string) {
	cfg, err := config.Load(parseConfigFlag(args))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	observability.Configure(cfg.LogLevel)

	registry, _, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defs := registry.Definitions()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(defs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// check runs the credential self-test and exits.
func check(args []string) {
	cfg, err := config.Load(parseConfigFlag(args))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	observability.Configure(cfg.LogLevel)

	_, client, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := selfTest(context.Background(), client); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("ok")
}
