// Command cryptobot runs the market logger, the trader or the history
// bootstrap. It loads configuration, validates it, sets up signal handling,
// and starts the application in the configured mode.
//
// The keystore subcommand encrypts an API secret for keystore.encrypted_secret_path:
//
//	cryptobot keystore -out secret.json < secret.txt
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

	"github.com/alanyoungcy/cryptobot/internal/app"
	"github.com/alanyoungcy/cryptobot/internal/config"
	"github.com/alanyoungcy/cryptobot/internal/crypto"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "keystore" {
		if err := runKeystore(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "keystore: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (logger, trader, bootstrap)")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	// Set log level from config.
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("cryptobot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error",
			slog.String("error", err.Error()),
		)
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger.Info("cryptobot stopped")
}

// runKeystore reads a secret from stdin and writes it encrypted with the
// password from CRYPTOBOT_KEYSTORE_PASSWORD.
func runKeystore(args []string) error {
	fs := flag.NewFlagSet("keystore", flag.ContinueOnError)
	out := fs.String("out", "secret.json", "where to write the encrypted secret")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password := os.Getenv("CRYPTOBOT_KEYSTORE_PASSWORD")
	if password == "" {
		return errors.New("CRYPTOBOT_KEYSTORE_PASSWORD is not set")
	}
	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && secret == "" {
		return fmt.Errorf("read secret: %w", err)
	}

	data, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	fmt.Fprintf(os.Stderr, "encrypted secret written to %s\n", *out)
	return nil
}
