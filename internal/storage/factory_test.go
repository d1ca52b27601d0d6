package storage_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/storage"
)

// ---------------------------------------------------------------------------
// Minimal mock Storage implementation for Register tests
// ---------------------------------------------------------------------------

type mockStorage struct{}

func (m *mockStorage) Put(_ context.Context, _ string, _ []byte, _ string) error { return nil }
func (m *mockStorage) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, storage.ErrNotFound
}
func (m *mockStorage) Delete(_ context.Context, _ string) error         { return nil }
func (m *mockStorage) Exists(_ context.Context, _ string) (bool, error) { return false, nil }
func (m *mockStorage) DeletePrefix(_ context.Context, _ string) error   { return nil }

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("test-backend", func(_ *config.Config) (storage.Storage, error) {
		return &mockStorage{}, nil
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "test-backend"

	s, err := storage.NewStorage(cfg)
	if err != nil {
		t.Fatalf("NewStorage() error: %v", err)
	}
	if s == nil {
		t.Fatal("NewStorage() returned nil")
	}
	if !slices.Contains(storage.Registered(), "test-backend") {
		t.Errorf("Registered() = %v, want it to include test-backend", storage.Registered())
	}
}

func TestRegister_FactoryErrorPropagates(t *testing.T) {
	want := errors.New("boom")
	storage.Register("failing-backend", func(_ *config.Config) (storage.Storage, error) {
		return nil, want
	})

	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "failing-backend"

	if _, err := storage.NewStorage(cfg); !errors.Is(err, want) {
		t.Errorf("NewStorage() error = %v, want %v", err, want)
	}
}

// ---------------------------------------------------------------------------
// NewStorage
// ---------------------------------------------------------------------------

func TestNewStorage_UnknownBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = "completely-unknown-backend"

	_, err := storage.NewStorage(cfg)
	if err == nil {
		t.Error("NewStorage() = nil error, want error for unregistered backend")
	}
}

func TestNewStorage_EmptyBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.DefaultBackend = ""

	_, err := storage.NewStorage(cfg)
	if err == nil {
		t.Error("NewStorage() = nil error, want error for empty backend name")
	}
}
