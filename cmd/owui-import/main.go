// owui-import converts a ChatGPT GDPR conversations.json export into Open
// WebUI chats and uploads them through /chats/import, skipping conversations
// that were already delivered in earlier runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/chatmigrate/owui-import/internal/config"
	"github.com/chatmigrate/owui-import/internal/convert"
	"github.com/chatmigrate/owui-import/internal/export"
	"github.com/chatmigrate/owui-import/internal/importer"
	"github.com/chatmigrate/owui-import/internal/webui"
)

// Exit codes: 0 success (including tolerated partial failure), 1 run failure,
// 2 invalid input or missing credentials.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: load config: %v\n", err)
		return exitUsage
	}

	source := pflag.String("source", "", "path to GDPR conversations.json (required)")
	count := pflag.String("count", "3", `number of conversations to import, or "all"`)
	seed := pflag.Int64("seed", 0, "random seed for reproducible selection")
	noShuffle := pflag.Bool("no-shuffle", false, "select in source order instead of shuffling")
	chunkSize := pflag.Int("chunk-size", 0, "conversations per import request (0 = one request)")
	fallback := pflag.Bool("fallback-on-error", false, "retry a failed chunk one conversation at a time")
	allowDup := pflag.Bool("allow-duplicates", false, "skip duplicate detection (local state and remote query)")
	dryRun := pflag.Bool("dry-run", false, "convert and select, but do not upload")
	output := pflag.String("output", "", "write the generated import payload JSON to this path")
	includeSystem := pflag.Bool("include-system", false, "include system messages")
	includeTool := pflag.Bool("include-tool", false, "include tool messages")
	keepEmpty := pflag.Bool("keep-empty", false, "keep messages with empty extracted content")
	baseURL := pflag.String("base-url", "", "Open WebUI API base URL (or OPENWEBUI_BASE_URL)")
	token := pflag.String("token", "", "bearer token (or OPENWEBUI_TOKEN)")
	email := pflag.String("email", "", "account email for /auths/signin (or OPENWEBUI_EMAIL)")
	password := pflag.String("password", "", "account password (or OPENWEBUI_PASSWORD; prompted if omitted)")
	statePath := pflag.String("state-file", "", "path to the imported-ids state file")
	pflag.Parse()

	setupLogging(cfg.LogLevel)

	applyOverride(&cfg.BaseURL, *baseURL)
	applyOverride(&cfg.Token, *token)
	applyOverride(&cfg.Email, *email)
	applyOverride(&cfg.Password, *password)
	applyOverride(&cfg.StatePath, config.ExpandHome(*statePath))

	all := strings.EqualFold(*count, "all")
	var target int
	if !all {
		n, err := strconv.Atoi(*count)
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "ERROR: --count must be a positive integer or \"all\"\n")
			return exitUsage
		}
		target = n
	}

	if *chunkSize < 0 {
		fmt.Fprintf(os.Stderr, "ERROR: --chunk-size must be >= 0\n")
		return exitUsage
	}

	if *source == "" {
		fmt.Fprintf(os.Stderr, "ERROR: --source is required\n")
		return exitUsage
	}

	convos, err := export.Load(*source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitUsage
	}

	state, err := importer.LoadState(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := webui.NewClient(cfg.BaseURL)

	// Authentication is needed for delivery and for the remote dedup query;
	// a dry run with duplicates allowed touches neither.
	if !(*dryRun && *allowDup) {
		if code := authenticate(ctx, client, cfg); code != exitOK {
			return code
		}
	}

	runner := importer.NewRunner(importer.Config{
		Count:           target,
		All:             all,
		Shuffle:         !*noShuffle,
		Seed:            *seed,
		SeedSet:         pflag.CommandLine.Changed("seed"),
		ChunkSize:       *chunkSize,
		FallbackOnError: *fallback,
		AllowDuplicates: *allowDup,
		DryRun:          *dryRun,
		OutputPath:      *output,
		Convert: convert.Options{
			IncludeSystem: *includeSystem,
			IncludeTool:   *includeTool,
			KeepEmpty:     *keepEmpty,
		},
	}, client, state, slog.Default())

	result, err := runner.Run(ctx, convos)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return exitFailure
	}

	if result.Failed > 0 {
		slog.Warn("run finished with individual failures", "failed", result.Failed, "imported", result.Imported)
	}
	return exitOK
}

// authenticate resolves a bearer token: an explicit token wins, then email +
// password (prompting for the password on a terminal when absent).
func authenticate(ctx context.Context, client *webui.Client, cfg *config.Config) int {
	if strings.TrimSpace(cfg.Token) != "" {
		client.SetToken(cfg.Token)
		return exitOK
	}

	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		fmt.Fprintln(os.Stderr, "ERROR: authentication required. Pass --token or --email (and --password or prompt).")
		return exitUsage
	}

	password := cfg.Password
	if password == "" {
		p, err := promptPassword(email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: read password: %v\n", err)
			return exitFailure
		}
		password = p
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "ERROR: password is required when using --email.")
		return exitUsage
	}

	if _, err := client.SignIn(ctx, email, password); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR during signin: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func promptPassword(email string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no terminal available to prompt for password")
	}
	fmt.Fprintf(os.Stderr, "Open WebUI password for %s: ", email)
	defer fmt.Fprintln(os.Stderr)
	p, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func applyOverride(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
