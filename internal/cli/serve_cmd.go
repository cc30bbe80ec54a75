// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve_cmd.go - run the arena HTTP API.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/promptarena/internal/battle"
	"github.com/jeranaias/promptarena/internal/cloud"
	"github.com/jeranaias/promptarena/internal/model"
	"github.com/jeranaias/promptarena/internal/ratelimit"
	"github.com/jeranaias/promptarena/internal/server"
)

// HandleServe wires the arena components from configuration and runs
// the HTTP API until interrupted.
func HandleServe(args *Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if args.Quiet {
		log.SetOutput(io.Discard)
	}

	registry, err := model.NewRegistry(cfg.RegistryModels())
	if err != nil {
		return err
	}

	tracker := ratelimit.NewTracker(cfg.CooldownWindow())
	client := cloud.NewClient(cfg.APIKey).
		WithBaseURL(cfg.APIBaseURL).
		WithTimeout(cfg.RequestTimeout()).
		WithMaxRetries(cfg.Battle.MaxRetries).
		WithThrottleHook(func(modelID string) {
			tracker.MarkThrottled(modelID, time.Now())
		})

	selector := battle.NewSelector(registry, tracker, rand.New(rand.NewSource(time.Now().UnixNano())))
	dispatcher := battle.NewDispatcher(client)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.NewServer(server.Options{
		Port:            cfg.Server.Port,
		Registry:        registry,
		Tracker:         tracker,
		Selector:        selector,
		Dispatcher:      dispatcher,
		Store:           store,
		MaxPromptLength: cfg.Battle.MaxPromptLength,
		BearerToken:     cfg.Server.BearerToken,
		RateLimitRPM:    cfg.Server.RateLimitRPM,
	})

	// Serve until SIGINT/SIGTERM, then drain in-flight rounds.
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		log.Printf("SIGNAL_RECEIVED | sig=%s", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
