package store

import (
	"errors"
	"sync"
	"testing"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	provider := NewMemoryProvider()

	if _, err := provider.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := provider.Set("incident:abc", []byte(`{"id":"INC-1"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := provider.Get("incident:abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != `{"id":"INC-1"}` {
		t.Fatalf("unexpected value: %s", value)
	}
	if provider.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", provider.Len())
	}
}

func TestMemoryProviderCopiesValues(t *testing.T) {
	provider := NewMemoryProvider()

	original := []byte("payload")
	if err := provider.Set("key", original); err != nil {
		t.Fatalf("set: %v", err)
	}
	original[0] = 'X'

	stored, err := provider.Get("key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored) != "payload" {
		t.Fatalf("stored value aliased caller slice: %s", stored)
	}

	stored[0] = 'Y'
	again, _ := provider.Get("key")
	if string(again) != "payload" {
		t.Fatalf("returned value aliased store: %s", again)
	}
}

func TestMemoryProviderConcurrentAccess(t *testing.T) {
	provider := NewMemoryProvider()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = provider.Set("shared", []byte("value"))
			_, _ = provider.Get("shared")
		}()
	}
	wg.Wait()

	if provider.Len() != 1 {
		t.Fatalf("expected 1 key, got %d", provider.Len())
	}
}

func TestNoopProviderNeverRetains(t *testing.T) {
	provider := NoopProvider{}

	if err := provider.Set("key", []byte("value")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get("key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
