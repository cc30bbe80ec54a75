// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// battle_cmd.go - one-shot terminal battle round.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/jeranaias/promptarena/internal/battle"
	"github.com/jeranaias/promptarena/internal/cloud"
	"github.com/jeranaias/promptarena/internal/config"
	"github.com/jeranaias/promptarena/internal/model"
	"github.com/jeranaias/promptarena/internal/ratelimit"
	"github.com/jeranaias/promptarena/internal/votes"
)

// HandleBattle runs a single blind round in the terminal: dispatch the
// prompt to two anonymized models, show both answers, take the vote,
// then reveal who was who.
func HandleBattle(args *Args) error {
	if strings.TrimSpace(args.Prompt) == "" {
		return fmt.Errorf("battle requires a prompt: promptarena battle \"your question\"")
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
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

	now := time.Now()
	idA, idB, err := selector.Select(now)
	if err != nil {
		return fmt.Errorf("cannot start round: %w", err)
	}

	sess := battle.NewSession("cli", store, cfg.Battle.MaxPromptLength)
	seq, req, _, err := sess.SubmitPrompt(args.Prompt, idA, idB, now)
	if err != nil {
		return err
	}

	fmt.Println("Running blind round with two models...")
	result := dispatcher.Dispatch(context.Background(), req)
	sess.ResultsReady(seq, result)

	printSide("A", result.SideA)
	printSide("B", result.SideB)

	choiceRaw := args.Choice
	if choiceRaw == "" {
		choiceRaw = promptForChoice()
	}
	choice, err := battle.ParseChoice(choiceRaw)
	if err != nil {
		return err
	}

	modelA, modelB, err := sess.CastVote(choice, time.Now())
	if err != nil {
		return err
	}

	fmt.Printf("\nVote recorded: %s\n", choice)
	fmt.Printf("  Side A was %s\n", modelA)
	fmt.Printf("  Side B was %s\n", modelB)

	// The insert runs detached; block until it lands so process exit
	// cannot lose the vote.
	sess.WaitPersisted()
	return nil
}

// loadConfig loads from the explicit path when given, otherwise the
// default location.
func loadConfig(args *Args) (*config.Config, error) {
	if args.ConfigPath != "" {
		return config.LoadFromPath(args.ConfigPath)
	}
	return config.Load()
}

// openStore opens the configured SQLite store, or the default path.
func openStore(cfg *config.Config) (votes.Store, error) {
	path := cfg.Store.Path
	if path == "" {
		var err error
		path, err = config.DefaultStorePath()
		if err != nil {
			return nil, err
		}
	}
	return votes.OpenSQLite(path)
}

func printSide(label string, side battle.SideResult) {
	fmt.Printf("\n=== Side %s ===\n", label)
	if side.OK {
		fmt.Println(side.Text)
		fmt.Printf("(%.2fs)\n", side.Latency.Seconds())
		return
	}
	fmt.Printf("[no answer: %s]\n", side.Failure)
}

func promptForChoice() string {
	fmt.Print("\nYour vote [A/B/Tie/BothBad]: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
