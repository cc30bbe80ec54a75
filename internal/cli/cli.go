// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for promptarena.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdServe Command = iota
	CmdBattle
	CmdModels
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Quiet      bool

	// Command-specific
	Prompt string
	Choice string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `promptarena - blind LLM battle arena

Submit one prompt, get anonymized side-by-side answers from two
randomly selected models, and record which one you preferred.

Usage:
  promptarena serve               Start the arena HTTP API
  promptarena battle "prompt"     Run a single round in the terminal
    --vote A|B|Tie|BothBad        Cast the vote non-interactively
  promptarena models              List the configured model pool
  promptarena version             Show version information
  promptarena help                Show this help

Global flags:
  --config PATH                   Use a specific config file
  --quiet                         Suppress request logging

Configuration:
  ~/.promptarena/config.toml      Model pool and tuning
  ARENA_API_KEY                   Completions API key (required)
  ARENA_API_BASE_URL              Completions API base URL
  ARENA_PORT                      HTTP API port (default 8787)
  ARENA_BEARER_TOKEN              Require bearer auth on the API
  ARENA_STORE_PATH                Vote database path
  ARENA_COOLDOWN_SECS             Throttle cooldown window
`

// Parse parses os.Args into a command and its arguments.
func Parse() (Command, *Args) {
	args := &Args{}
	argv := os.Args[1:]

	// Extract global flags first so they work in any position.
	rest := make([]string, 0, len(argv))
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "--config":
			if i+1 < len(argv) {
				i++
				args.ConfigPath = argv[i]
			}
		case "--quiet", "-q":
			args.Quiet = true
		case "--vote":
			if i+1 < len(argv) {
				i++
				args.Choice = argv[i]
			}
		default:
			rest = append(rest, argv[i])
		}
	}
	args.Raw = rest

	if len(rest) == 0 {
		return CmdServe, args
	}

	cmd := strings.ToLower(rest[0])
	args.Raw = rest[1:]

	switch cmd {
	case "serve":
		return CmdServe, args
	case "battle":
		if len(args.Raw) > 0 {
			args.Prompt = strings.Join(args.Raw, " ")
		}
		return CmdBattle, args
	case "models":
		return CmdModels, args
	case "version", "-v", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		return CmdHelp, args
	}
}

// PrintUsage prints the usage text.
func PrintUsage() {
	fmt.Print(usageText)
}

// HandleVersion prints version information.
func HandleVersion() {
	fmt.Printf("promptarena %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}
