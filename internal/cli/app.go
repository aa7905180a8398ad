// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Component wiring shared by every command.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jeranaias/turochat/internal/cloud"
	"github.com/jeranaias/turochat/internal/config"
	"github.com/jeranaias/turochat/internal/credential"
	"github.com/jeranaias/turochat/internal/kv"
	"github.com/jeranaias/turochat/internal/logging"
	"github.com/jeranaias/turochat/internal/session"
	"github.com/jeranaias/turochat/internal/storage"
)

// ErrNotLoggedIn is returned by commands that need a stored API key.
var ErrNotLoggedIn = errors.New("no API key stored. Run: turochat auth login")

// App holds the wired components for one command invocation.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Backend       kv.Backend
	Credentials   *credential.Store
	Conversations *storage.Store
	Gateway       *cloud.Client
	Controller    *session.Controller

	logCloser io.Closer
}

// NewApp opens the storage medium and wires the session components.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, err
	}

	backend, err := kv.Open(ctx, cfg)
	if err != nil {
		closer.Close()
		return nil, NewCommandError("storage", "open", cfg.Storage.Driver, err)
	}
	logger.Debug("storage opened", "driver", cfg.Storage.Driver)

	creds := credential.NewStore(backend, cfg.Storage.Namespace, logger)
	convs := storage.NewStore(backend, cfg.Storage.Namespace,
		storage.WithTitleRunes(cfg.Session.TitleMaxRunes),
		storage.WithLogger(logger),
	)
	gateway := cloud.NewClient(creds, cfg.Cloud, logger)
	controller := session.NewController(creds, convs, gateway,
		session.WithStrictLoad(cfg.Session.StrictLoad),
		session.WithLogger(logger),
		session.WithOnChatChange(func(id string) {
			logger.Debug("active conversation changed", "id", id)
		}),
	)

	return &App{
		Config:        cfg,
		Logger:        logger,
		Backend:       backend,
		Credentials:   creds,
		Conversations: convs,
		Gateway:       gateway,
		Controller:    controller,
		logCloser:     closer,
	}, nil
}

// Credential returns the stored key or ErrNotLoggedIn.
func (a *App) Credential(ctx context.Context) (string, error) {
	key, ok, err := a.Credentials.Get(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotLoggedIn
	}
	return key, nil
}

// Close releases the storage medium and the log sink.
func (a *App) Close() error {
	// Abandon any cycle still in flight before the backend goes away.
	a.Controller.Cancel()

	var errs []error
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
	}
	if a.logCloser != nil {
		if err := a.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// formatTime renders a conversation timestamp for listings.
func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
