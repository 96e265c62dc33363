package core

import (
	"testing"

	"NFTLend/internal/state"
)

func TestNewLendingCoreIdempotencyCapacity(t *testing.T) {
	c, err := NewLendingCore(0, state.DefaultProtocolParams(), nil, nil, 64, nil, nil)
	if err != nil {
		t.Fatalf("NewLendingCore failed: %v", err)
	}
	if got := c.idempotency.lru.capacity; got != 64 {
		t.Fatalf("lru capacity = %d, want 64", got)
	}

	c, err = NewLendingCore(0, state.DefaultProtocolParams(), nil, nil, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewLendingCore failed: %v", err)
	}
	if got := c.idempotency.lru.capacity; got != defaultIdempotencyLRUCapacity {
		t.Fatalf("lru capacity = %d, want default %d", got, defaultIdempotencyLRUCapacity)
	}
}

func TestIdempotencyLRUEviction(t *testing.T) {
	lru := NewIdempotencyLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Add("c")
	if lru.Contains("a") {
		t.Fatal("oldest entry survived past capacity")
	}
	if !lru.Contains("b") || !lru.Contains("c") {
		t.Fatal("recent entries evicted")
	}
}
