// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bureau-dm is a terminal client for Matrix direct messages. It signs in
// to (or registers on) a homeserver, lists the one-to-one conversations
// of the account, shows the open conversation live as the server pushes
// new events, and sends replies.
//
// Configuration comes from a YAML or JSONC file named by --config or
// BUREAU_DM_CONFIG. MATRIX_HOMESERVER_URL and --homeserver override the
// homeserver, in that order.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/bureau-dm/lib/config"
	"github.com/bureau-foundation/bureau-dm/lib/dm"
	"github.com/bureau-foundation/bureau-dm/lib/dmui"
	"github.com/bureau-foundation/bureau-dm/lib/version"
	"github.com/bureau-foundation/bureau-dm/messaging"
)

// errReported marks an error the command logger has already written.
var errReported = errors.New("error already reported")

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// report writes err through logger and returns it marked as reported, so
// main does not print it a second time. A nil err stays nil.
func report(logger *slog.Logger, message string, err error) error {
	if err == nil {
		return nil
	}
	logger.Error(message, "error", err)
	return fmt.Errorf("%s: %w (%w)", message, err, errReported)
}

func run() error {
	var configPath string
	var homeserver string
	var logOutput string

	flagSet := pflag.NewFlagSet("bureau-dm", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file, YAML or JSONC (default $"+config.ConfigPathVariable+")")
	flagSet.StringVar(&homeserver, "homeserver", "", "homeserver URL (overrides the config file and $"+config.HomeserverVariable+")")
	flagSet.StringVar(&logOutput, "log-output", "", "write JSON log records to this file (in addition to the status bar)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match the other binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("bureau-dm")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath, homeserver)
	if err != nil {
		return err
	}
	ownership, err := dm.ParseOwnership(cfg.Ownership)
	if err != nil {
		return err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	commandLogger := newCommandLogger(level)
	commandLogger.Debug("configuration loaded",
		"homeserver", cfg.HomeserverURL,
		"ownership", cfg.Ownership,
		"log_output", logOutput,
	)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return report(commandLogger, "cannot start", errors.New("bureau-dm needs an interactive terminal"))
	}

	// Warnings and errors go to the status bar while the TUI owns the
	// screen. The log file, when requested, gets everything at the
	// configured level.
	tuiHandler := dmui.NewTUILogHandler(slog.LevelWarn)
	var fileHandler slog.Handler
	if logOutput != "" {
		handler, closeFile, err := openFileLogHandler(logOutput, level)
		if err != nil {
			return report(commandLogger, "cannot open log file", fmt.Errorf("%s: %w", logOutput, err))
		}
		defer closeFile()
		fileHandler = handler
	}
	logger := slog.New(dmui.NewTeeHandler(tuiHandler, fileHandler))

	manager := dm.NewManager(dm.ManagerConfig{
		DeviceDisplayName: cfg.DeviceDisplayName,
		RegistrationToken: cfg.RegistrationToken,
		Feed: messaging.FeedConfig{
			Timeout:    cfg.SyncTimeout(),
			RetryDelay: cfg.SyncRetryDelay(),
			RetryLimit: cfg.Sync.RetryLimit,
		},
		Logger: logger,
	})
	synchronizer := dm.NewSynchronizer(dm.SynchronizerConfig{
		Ownership: ownership,
		Logger:    logger,
	})

	model := dmui.NewModel(dmui.Config{
		Services: dmui.Services{
			Manager:      manager,
			Directory:    dm.NewDirectory(logger),
			Synchronizer: synchronizer,
			Coordinator:  dm.NewCoordinator(synchronizer, dm.CoordinatorConfig{Logger: logger}),
		},
		ServerAddress: cfg.HomeserverURL,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())
	tuiHandler.SetProgram(program)

	_, runErr := program.Run()

	if session := manager.Current(); session != nil {
		commandLogger.Info("logging out", "user_id", session.UserID())
	}
	manager.End()
	return report(commandLogger, "terminal UI failed", runErr)
}

// loadConfig reads the configuration file (the --config path, else the
// environment) and applies the --homeserver override.
func loadConfig(path, homeserver string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if homeserver != "" {
		cfg.HomeserverURL = homeserver
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("--homeserver: %w", err)
		}
	}
	return cfg, nil
}

// newCommandLogger creates the logger used outside the TUI. When stderr
// is a terminal it writes human-readable text, otherwise JSON.
func newCommandLogger(level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// openFileLogHandler creates a slog.JSONHandler writing to path. The
// file is created or truncated.
func openFileLogHandler(path string, level slog.Level) (slog.Handler, func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return handler, func() { file.Close() }, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `bureau-dm: Matrix direct messages in the terminal.

Log in or create an account on the configured homeserver, then pick a
conversation from the list on the left. New messages arrive live.

Usage:
  bureau-dm [flags]

Examples:
  # Use matrix.org (the default homeserver)
  bureau-dm

  # Use a specific homeserver
  bureau-dm --homeserver https://matrix.example.org

  # Load settings from a file and keep a debug log
  bureau-dm --config ~/.config/bureau-dm.yaml --log-output /tmp/bureau-dm.log

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}

