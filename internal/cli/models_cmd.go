// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models_cmd.go - print the configured model pool.
package cli

import (
	"fmt"

	"github.com/jeranaias/promptarena/internal/model"
)

// HandleModels lists the configured pool.
func HandleModels(args *Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	registry, err := model.NewRegistry(cfg.RegistryModels())
	if err != nil {
		return err
	}

	fmt.Printf("Model pool (%d entries):\n\n", registry.Count())
	for _, m := range registry.List() {
		category := m.Category
		if category == "" {
			category = "general"
		}
		fmt.Printf("  %-32s %-24s %-10s %s\n", m.ID, m.Name, category, m.ContextString())
	}
	return nil
}
