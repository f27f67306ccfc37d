// Package main is the entry point for the bulletin board server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (flags, env vars, config file)
// 2. Create dependencies (logger, mailer)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/sakif/ivr-board/internal/config"
	"github.com/sakif/ivr-board/internal/mail"
	"github.com/sakif/ivr-board/internal/server"
)

func main() {
	// === 1. LOAD CONFIGURATION ===
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// === 2. SET UP LOGGING ===
	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll works like `mkdir -p`.
	if cfg.Database.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. MAIL ===
	// Without an SMTP host, mail is written to the log instead of sent.
	var mailer mail.Sender
	if cfg.Mail.Host != "" {
		mailer, err = mail.NewSMTPSender(mail.SMTPConfig{
			Host:      cfg.Mail.Host,
			Port:      cfg.Mail.Port,
			Username:  cfg.Mail.Username,
			Password:  cfg.Mail.Password,
			From:      cfg.Mail.From,
			TLSPolicy: cfg.Mail.TLSPolicy,
			Timeout:   cfg.Mail.Timeout.Duration,
		})
		if err != nil {
			logger.Error("failed to configure mail", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("SMTP host not set, emails will only be logged")
		mailer = mail.NewLogSender(logger)
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger, mailer)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}
