package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestBalanceCache_SetGetInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewBalanceCache(mr.Addr())
	defer c.Close()

	ctx := context.Background()

	if _, ok, err := c.GetBalance(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}

	if err := c.SetBalance(ctx, "u1", 42); err != nil {
		t.Fatalf("SetBalance error: %v", err)
	}

	balance, ok, err := c.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if !ok || balance != 42 {
		t.Fatalf("got ok=%v balance=%d, want ok=true balance=42", ok, balance)
	}

	if err := c.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("Invalidate error: %v", err)
	}

	if _, ok, _ := c.GetBalance(ctx, "u1"); ok {
		t.Fatalf("expected miss after invalidation")
	}
}

func TestBalanceCache_Disabled(t *testing.T) {
	c := NewBalanceCache("")

	ctx := context.Background()

	if err := c.SetBalance(ctx, "u1", 1); err != nil {
		t.Fatalf("disabled SetBalance error: %v", err)
	}
	if _, ok, err := c.GetBalance(ctx, "u1"); err != nil || ok {
		t.Fatalf("disabled cache must always miss, ok=%v err=%v", ok, err)
	}
	if err := c.Invalidate(ctx, "u1"); err != nil {
		t.Fatalf("disabled Invalidate error: %v", err)
	}
}
