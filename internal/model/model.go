// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the model catalog used for battle rounds.
package model

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound indicates the requested model is not in the registry.
	ErrNotFound = errors.New("model not found")

	// ErrTooFewModels indicates the registry holds fewer than two models.
	// A battle round needs two distinct models, so this is fatal at startup.
	ErrTooFewModels = errors.New("at least 2 models must be configured")

	// ErrDuplicateModel indicates two registry entries share an ID.
	ErrDuplicateModel = errors.New("duplicate model id")
)

// =============================================================================
// MODEL TYPE
// =============================================================================

// Model describes one entry in the battle pool.
// Models are loaded once at startup and never mutated afterwards.
type Model struct {
	// ID is the identifier sent to the chat-completions API.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Category is a coarse capability tag ("general", "code", "vision", ...).
	Category string `json:"category"`

	// ContextLength is the maximum context window size in tokens.
	ContextLength int `json:"context_length"`
}

// ContextString returns a formatted context window string.
func (m Model) ContextString() string {
	if m.ContextLength >= 1000 {
		return fmt.Sprintf("%dK tokens", m.ContextLength/1000)
	}
	return fmt.Sprintf("%d tokens", m.ContextLength)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry is the static catalog of models eligible for battles.
// It is read-only after construction and needs no synchronization.
type Registry struct {
	models map[string]Model
	order  []string // configured order, preserved for stable listing
}

// NewRegistry builds a registry from the configured models.
// It fails when fewer than two models are given or when IDs collide.
func NewRegistry(models []Model) (*Registry, error) {
	if len(models) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewModels, len(models))
	}

	r := &Registry{
		models: make(map[string]Model, len(models)),
		order:  make([]string, 0, len(models)),
	}

	for _, m := range models {
		if m.ID == "" {
			return nil, errors.New("model with empty id")
		}
		if _, exists := r.models[m.ID]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, m.ID)
		}
		r.models[m.ID] = m
		r.order = append(r.order, m.ID)
	}

	return r, nil
}

// List returns all models in configured order.
func (r *Registry) List() []Model {
	result := make([]Model, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.models[id])
	}
	return result
}

// Get looks up a model by ID.
func (r *Registry) Get(id string) (Model, error) {
	m, ok := r.models[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, nil
}

// IDs returns all model IDs in configured order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered models.
func (r *Registry) Count() int {
	return len(r.order)
}
