// Package main is the entry point for the copilot-bridge CLI.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/copilot-bridge/internal/chat"
	"github.com/dshills/copilot-bridge/internal/config"
	"github.com/dshills/copilot-bridge/internal/copilot"
	"github.com/dshills/copilot-bridge/internal/logging"
	"github.com/dshills/copilot-bridge/internal/process"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var logLevel string
	var showVersion bool

	flag.StringVar(&configPath, "config", defaultConfigPath(), "Path to configuration file")
	flag.StringVar(&configPath, "c", defaultConfigPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "copilot-bridge - language server client and chat streamer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: copilot-bridge [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version              Print the language server version\n")
		fmt.Fprintf(os.Stderr, "  status               Print installation and sign-in status\n")
		fmt.Fprintf(os.Stderr, "  signin               Sign in with the device flow\n")
		fmt.Fprintf(os.Stderr, "  signout              Sign out\n")
		fmt.Fprintf(os.Stderr, "  chat <vendor> <msg>  Stream a chat completion to stdout\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("copilot-bridge %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return 2
	}

	switch args[0] {
	case "version":
		return withClient(ctx, cfg, logger, cmdVersion)
	case "status":
		return cmdStatus(ctx, cfg, logger)
	case "signin":
		return withClient(ctx, cfg, logger, cmdSignIn)
	case "signout":
		return withClient(ctx, cfg, logger, cmdSignOut)
	case "chat":
		return cmdChat(ctx, cfg, logger, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", args[0])
		flag.Usage()
		return 2
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/copilot-bridge/config.yaml"
	}
	return "copilot-bridge.yaml"
}

// withClient runs fn against a freshly launched language server and
// tears it down afterward.
func withClient(ctx context.Context, cfg config.Config, logger *logging.Logger, fn func(context.Context, *copilot.Client) error) int {
	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer client.Terminate()

	if err := fn(ctx, client); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newClient(ctx context.Context, cfg config.Config, logger *logging.Logger) (*copilot.Client, error) {
	if cfg.Server.Path == "" {
		return nil, errors.New("server.path is not configured")
	}

	opts := []copilot.Option{
		copilot.WithLogger(logger),
		copilot.WithEditorInfo(
			copilot.EditorInfo{Name: cfg.Editor.Name, Version: cfg.Editor.Version},
			copilot.EditorPluginInfo{Name: cfg.Editor.Name, Version: version},
		),
		copilot.WithCompletionRetry(cfg.Completion.RetryAttempts, cfg.Completion.RetryDelay),
		copilot.WithTerminateGrace(cfg.Server.TerminateGrace),
	}
	if cfg.Server.InstallDir != "" {
		opts = append(opts, copilot.WithInstallDir(cfg.Server.InstallDir))
	}
	if cfg.Editor.ProxyHost != "" || cfg.Editor.EnterpriseURI != "" || cfg.Editor.AuthProviderURL != "" {
		opts = append(opts, copilot.WithEditorConfiguration(copilot.EditorConfiguration{
			ProxyHost:       cfg.Editor.ProxyHost,
			ProxyPort:       cfg.Editor.ProxyPort,
			ProxyStrictSSL:  cfg.Editor.ProxyStrictSSL,
			EnterpriseURI:   cfg.Editor.EnterpriseURI,
			AuthProviderURL: cfg.Editor.AuthProviderURL,
		}))
	}

	return copilot.New(ctx, process.Spec{
		Path: cfg.Server.Path,
		Args: cfg.Server.Args,
		Env:  cfg.Server.Env,
	}, opts...)
}

func cmdVersion(ctx context.Context, client *copilot.Client) error {
	v, err := client.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func cmdStatus(ctx context.Context, cfg config.Config, logger *logging.Logger) int {
	if cfg.Server.InstallDir != "" {
		inst := copilot.CheckInstallation(cfg.Server.InstallDir)
		fmt.Printf("installation: %s (current %s, latest %s)\n",
			inst.State, orUnknown(inst.Current), inst.Latest)
		if inst.State == copilot.InstallNotInstalled {
			return 1
		}
	}

	return withClient(ctx, cfg, logger, func(ctx context.Context, client *copilot.Client) error {
		status, user, err := client.CheckStatus(ctx)
		if err != nil {
			return err
		}
		if user != "" {
			fmt.Printf("account: %s (%s)\n", status, user)
		} else {
			fmt.Printf("account: %s\n", status)
		}
		return nil
	})
}

func cmdSignIn(ctx context.Context, client *copilot.Client) error {
	session, err := client.SignInInitiate(ctx)
	if err != nil {
		return err
	}
	if session.Status == string(copilot.StatusAlreadySignedIn) {
		fmt.Println("already signed in")
		return nil
	}

	fmt.Printf("Open %s and enter code %s\n", session.VerificationURI, session.UserCode)
	fmt.Print("Press enter once authorized... ")
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		return err
	}

	status, user, err := client.SignInConfirm(ctx, session.UserCode)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (%s)\n", user, status)
	return nil
}

func cmdSignOut(ctx context.Context, client *copilot.Client) error {
	status, err := client.SignOut(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("account: %s\n", status)
	return nil
}

func cmdChat(ctx context.Context, cfg config.Config, logger *logging.Logger, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: copilot-bridge chat <openai|claude|google|ollama> <message>")
		return 2
	}

	vendor, model, err := buildVendor(cfg, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	adapter := chat.NewAdapter(vendor, chat.WithAdapterLogger(logger))
	stream, err := adapter.Stream(ctx, chat.Request{
		Model: model,
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: strings.Join(args[1:], " ")},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for chunk := range stream.Chunks() {
		fmt.Print(chunk.Delta.Content)
	}
	fmt.Println()
	if err := stream.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func buildVendor(cfg config.Config, name string) (chat.Vendor, string, error) {
	switch name {
	case "openai":
		v := cfg.Vendors.OpenAI
		return chat.NewOpenAI(v.APIKey, v.BaseURL), v.Model, nil
	case "claude":
		v := cfg.Vendors.Claude
		return chat.NewClaude(v.APIKey, v.BaseURL), v.Model, nil
	case "google":
		v := cfg.Vendors.Google
		return chat.NewGoogle(v.APIKey, v.BaseURL), v.Model, nil
	case "ollama":
		v := cfg.Vendors.Ollama
		return chat.NewOllama(v.BaseURL), v.Model, nil
	default:
		return nil, "", fmt.Errorf("unknown vendor %q", name)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
