// Command optbot is the entry point for the binary options trading engine.
// It loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/optionbot/internal/app"
	"github.com/alanyoungcy/optionbot/internal/config"
	"github.com/alanyoungcy/optionbot/internal/crypto"
)

// logLevels maps the config log_level strings onto slog levels.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// jsonLogger builds the process-wide structured logger and installs it as
// the slog default.
func jsonLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	// Subcommands run before the engine flags are parsed.
	if len(os.Args) > 1 && os.Args[1] == "encrypt-secret" {
		os.Exit(runEncryptSecret(os.Args[2:]))
	}

	configPath := flag.String("config", "config.toml", "path to the TOML config file")
	flag.Parse()

	// Info-level bootstrap logger until the configured level is known.
	logger := jsonLogger(slog.LevelInfo)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("cannot load configuration",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if level, ok := logLevels[cfg.LogLevel]; ok {
		logger = jsonLogger(level)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration rejected", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Debug("loaded configuration", slog.Any("config", config.RedactedConfig(cfg)))

	logger.Info("option bot starting",
		slog.String("mode", cfg.Mode),
		slog.String("account_type", cfg.Broker.AccountType),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A canceled root context is normal shutdown.
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("run failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("option bot stopped")
}

// runEncryptSecret encrypts a broker password for use with the
// encrypted_secret_path config key. The secret and passphrase are read from
// stdin so neither lands in shell history.
func runEncryptSecret(args []string) int {
	fs := flag.NewFlagSet("encrypt-secret", flag.ExitOnError)
	out := fs.String("out", "broker_secret.json", "output path for the encrypted secret")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Fprint(os.Stderr, "secret: ")
	secret, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "read secret: %v\n", err)
		return 1
	}
	fmt.Fprint(os.Stderr, "passphrase: ")
	passphrase, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "read passphrase: %v\n", err)
		return 1
	}

	blob, err := crypto.EncryptSecret(strings.TrimSpace(secret), strings.TrimSpace(passphrase))
	if err != nil {
		fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		return 1
	}

	fmt.Printf("encrypted secret written to %s\n", *out)
	return 0
}
