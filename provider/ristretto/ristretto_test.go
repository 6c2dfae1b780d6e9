package ristretto

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64, Metrics: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close(ctx)

	if ok, err := p.Set(ctx, "snap:t:wishlist:u1", []byte("frame"), 5, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	got, ok, err := p.Get(ctx, "snap:t:wishlist:u1")
	if err != nil || !ok || !bytes.Equal(got, []byte("frame")) {
		t.Fatalf("Get = %q ok=%v err=%v", got, ok, err)
	}
	if p.Metrics() == nil {
		t.Fatalf("metrics requested but nil")
	}
	if err := p.Del(ctx, "snap:t:wishlist:u1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := p.Get(ctx, "snap:t:wishlist:u1"); ok {
		t.Fatalf("key survived Del")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
