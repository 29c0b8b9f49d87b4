package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/hookgate/internal/config"
	"github.com/mattjoyce/hookgate/internal/event"
	"github.com/mattjoyce/hookgate/internal/lock"
	"github.com/mattjoyce/hookgate/internal/log"
	"github.com/mattjoyce/hookgate/internal/payload"
	"github.com/mattjoyce/hookgate/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "config":
		return runConfigNoun(args)
	case "sign":
		if hasHelpFlag(args) {
			printSignHelp()
			return 0
		}
		return runSign(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: hookgate version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("hookgate %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, resolvedBuildTime); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`hookgate - Verified GitHub webhook receiver

Usage:
  hookgate <command> [flags]

Commands:
  start           Start the webhook gate in foreground
  config check    Validate configuration and print its fingerprint
  sign            Compute the X-Hub-Signature-256 value for a body
  version         Show version information
  help            Show this help message

Use 'hookgate <command> --help' for command flags.
`)
}

func printStartHelp() {
	fmt.Println("Usage: hookgate start [--config PATH]")
	fmt.Println("Loads configuration and serves the gated webhook endpoint until SIGINT/SIGTERM.")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: hookgate config <action> [flags]")
	fmt.Fprintln(w, "Actions:")
	fmt.Fprintln(w, "  check    Validate configuration and print its fingerprint")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, a := range args {
		if a == "--help" || a == "-h" {
			return true
		}
	}
	return false
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: hookgate config check [--config PATH]")
			return 0
		}
		return runConfigCheck(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

// resolveConfig returns the config file path and its loaded contents, falling
// back to discovery when configPath is empty.
func resolveConfig(configPath string) (string, *config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return "", nil, err
		}
		configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", configPath)
	}

	path, err := config.ResolvePath(configPath)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return "", nil, err
	}
	return path, cfg, nil
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	fingerprint, err := config.Fingerprint(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fingerprint config: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration valid: %s\n", path)
	fmt.Printf("fingerprint: %s\n", fingerprint)
	fmt.Printf("listen: %s%s\n", cfg.Webhook.Listen, cfg.Webhook.Path)
	fmt.Printf("secret: %s\n", config.SecretFingerprint(cfg.Webhook.SecretBytes))
	if len(cfg.Webhook.LogEvents) > 0 {
		fmt.Printf("log_events: %s\n", strings.Join(cfg.Webhook.LogEvents, ", "))
	}
	return 0
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, cfg, err := resolveConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	fingerprint, err := config.Fingerprint(path)
	if err != nil {
		logger.Error("failed to fingerprint config", "path", path, "error", err)
		return 1
	}
	logger.Info("hookgate starting",
		"version", version,
		"config", path,
		"config_fingerprint", fingerprint,
		"secret_fingerprint", config.SecretFingerprint(cfg.Webhook.SecretBytes),
	)

	if cfg.Service.PIDFile != "" {
		pidLock, err := lock.Acquire(cfg.Service.PIDFile)
		if err != nil {
			logger.Error("failed to acquire pid file (another instance may be running)", "path", cfg.Service.PIDFile, "error", err)
			return 1
		}
		defer pidLock.Release()
		logger.Info("acquired pid file", "path", pidLock.Path())
	}

	registry, err := buildRegistry(cfg.Webhook.LogEvents, log.WithComponent("handler"))
	if err != nil {
		logger.Error("failed to build event registry", "error", err)
		return 1
	}
	if registry.Len() == 0 {
		logger.Warn("no event handlers registered; every delivery will be answered with 501")
	}

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure webhook server", "error", err)
		return 1
	}
	server, err := webhook.NewServer(webhookConfig, registry, log.WithComponent("webhook"))
	if err != nil {
		logger.Error("failed to create webhook server", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("hookgate running (press Ctrl+C to stop)")
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webhook server failed", "error", err)
		return 1
	}

	logger.Info("hookgate stopped")
	return 0
}

// buildRegistry registers the built-in logging handler for every named event
// type. Names outside the recognized set are added to it.
func buildRegistry(names []string, logger *slog.Logger) (*event.Registry, error) {
	b := event.NewBuilder()
	for _, name := range names {
		t, err := event.ParseType(name)
		if errors.Is(err, event.ErrUnknownEventType) {
			t, err = event.RegisterType(name)
		}
		if err != nil {
			return nil, fmt.Errorf("log_events %q: %w", name, err)
		}
		b.On(t, loggingHandler(t, logger))
	}
	return b.Build()
}

func loggingHandler(t event.Type, logger *slog.Logger) event.HandlerFunc {
	return func(ctx context.Context, p *payload.Payload) error {
		sender := ""
		if p.Sender != nil {
			sender = p.Sender.GetLogin()
		}
		log.WithEvent(logger, string(t), "").Info("webhook received",
			"action", string(p.Action),
			"repository", p.RepositoryName(),
			"sender", sender,
		)
		return nil
	}
}
