// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"testing"
)

func testPool() []Model {
	return []Model{
		{ID: "mistral:latest", Name: "Mistral", Category: "general", ContextLength: 32768},
		{ID: "phi4:latest", Name: "Phi-4", Category: "general", ContextLength: 16384},
		{ID: "codellama:latest", Name: "Code Llama", Category: "code", ContextLength: 16384},
	}
}

func TestNewRegistry_RequiresTwoModels(t *testing.T) {
	tests := []struct {
		name    string
		models  []Model
		wantErr error
	}{
		{
			name:    "empty",
			models:  nil,
			wantErr: ErrTooFewModels,
		},
		{
			name:    "single model",
			models:  testPool()[:1],
			wantErr: ErrTooFewModels,
		},
		{
			name:   "two models",
			models: testPool()[:2],
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry(tc.models)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("NewRegistry returned unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("NewRegistry error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	models := testPool()
	models = append(models, Model{ID: "mistral:latest", Name: "Dup"})

	_, err := NewRegistry(models)
	if !errors.Is(err, ErrDuplicateModel) {
		t.Errorf("NewRegistry error = %v, want ErrDuplicateModel", err)
	}
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	r, err := NewRegistry(testPool())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	got := r.List()
	want := testPool()
	if len(got) != len(want) {
		t.Fatalf("List returned %d models, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("List()[%d].ID = %s, want %s", i, got[i].ID, want[i].ID)
		}
	}
}

func TestRegistry_Get(t *testing.T) {
	r, err := NewRegistry(testPool())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	m, err := r.Get("phi4:latest")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if m.Name != "Phi-4" {
		t.Errorf("Get returned name %s, want Phi-4", m.Name)
	}

	_, err = r.Get("no-such-model")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestModel_ContextString(t *testing.T) {
	m := Model{ContextLength: 32768}
	if got := m.ContextString(); got != "32K tokens" {
		t.Errorf("ContextString = %q, want %q", got, "32K tokens")
	}

	small := Model{ContextLength: 512}
	if got := small.ContextString(); got != "512 tokens" {
		t.Errorf("ContextString = %q, want %q", got, "512 tokens")
	}
}
