package storage

import (
	"errors"
	"testing"
)

func TestNewStoreMemory(t *testing.T) {
	for _, kind := range []string{"", DefaultStoreKind} {
		store, err := NewStore(kind, "")
		if err != nil {
			t.Fatalf("new memory store %q: %v", kind, err)
		}
		if _, ok := store.(*MemoryStore); !ok {
			t.Fatalf("expected memory store for %q, got %T", kind, store)
		}
		if err := CloseIfSupported(store); err != nil {
			t.Fatalf("close memory store: %v", err)
		}
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore("postgres", "")
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("expected ErrUnsupportedBackend, got %v", err)
	}
}
