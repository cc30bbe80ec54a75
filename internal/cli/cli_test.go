// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"testing"
)

func parseArgv(t *testing.T, argv ...string) (Command, *Args) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"promptarena"}, argv...)
	defer func() { os.Args = old }()
	return Parse()
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Command
	}{
		{"no args defaults to serve", nil, CmdServe},
		{"serve", []string{"serve"}, CmdServe},
		{"battle", []string{"battle", "hello"}, CmdBattle},
		{"models", []string{"models"}, CmdModels},
		{"version", []string{"version"}, CmdVersion},
		{"version flag", []string{"--version"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"unknown falls back to help", []string{"frobnicate"}, CmdHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := parseArgv(t, tt.argv...)
			if got != tt.want {
				t.Errorf("Parse(%v) = %v, want %v", tt.argv, got, tt.want)
			}
		})
	}
}

func TestParse_BattleJoinsPromptWords(t *testing.T) {
	cmd, args := parseArgv(t, "battle", "what", "is", "the", "capital")
	if cmd != CmdBattle {
		t.Fatalf("cmd = %v", cmd)
	}
	if args.Prompt != "what is the capital" {
		t.Errorf("prompt = %q", args.Prompt)
	}
}

func TestParse_GlobalFlags(t *testing.T) {
	cmd, args := parseArgv(t, "--config", "/tmp/arena.toml", "battle", "hi", "--vote", "Tie", "--quiet")
	if cmd != CmdBattle {
		t.Fatalf("cmd = %v", cmd)
	}
	if args.ConfigPath != "/tmp/arena.toml" {
		t.Errorf("config path = %q", args.ConfigPath)
	}
	if args.Choice != "Tie" {
		t.Errorf("choice = %q", args.Choice)
	}
	if !args.Quiet {
		t.Error("quiet flag not set")
	}
}
