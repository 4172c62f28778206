package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestSettingsMergePreservesOtherFields(t *testing.T) {
	store, err := NewSettingsStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.Save(domain.SettingsPatch{APIKey: strPtr("sk-test")}); err != nil {
		t.Fatalf("save key: %v", err)
	}
	if err := store.Save(domain.SettingsPatch{Model: strPtr("gpt-4o-mini")}); err != nil {
		t.Fatalf("save model: %v", err)
	}

	got := store.Get()
	if got.APIKey != "sk-test" {
		t.Fatalf("saving model must preserve apiKey, got %q", got.APIKey)
	}
	if got.Model != "gpt-4o-mini" {
		t.Fatalf("expected model to be saved, got %q", got.Model)
	}
}

func TestClearAPIKeyLeavesModelAndPrompt(t *testing.T) {
	store, err := NewSettingsStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	patch := domain.SettingsPatch{
		APIKey: strPtr("sk-test"),
		Model:  strPtr("gpt-4o"),
		Prompt: strPtr("transcribe carefully"),
	}
	if err := store.Save(patch); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.ClearAPIKey(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	got := store.Get()
	if got.APIKey != "" {
		t.Fatalf("expected apiKey cleared, got %q", got.APIKey)
	}
	if got.Model != "gpt-4o" || got.Prompt != "transcribe carefully" {
		t.Fatalf("model/prompt must survive a key clear: %+v", got)
	}
}

func TestGetNeverFails(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSettingsStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// Missing file: empty defaults.
	if got := store.Get(); got != (domain.Settings{}) {
		t.Fatalf("expected empty settings, got %+v", got)
	}

	// Corrupt file: also empty defaults, no error surfaced.
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if got := store.Get(); got != (domain.Settings{}) {
		t.Fatalf("corrupt settings must read as empty, got %+v", got)
	}
}
