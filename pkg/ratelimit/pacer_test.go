package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewPacer_Disabled(t *testing.T) {
	p := NewPacer(0, 5)
	if p != nil {
		t.Fatal("NewPacer(0) should return nil")
	}
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer Wait() error = %v", err)
	}
	if p.Limit() != 0 {
		t.Errorf("nil pacer Limit() = %v, want 0", p.Limit())
	}
}

func TestPacer_Wait(t *testing.T) {
	p := NewPacer(1000, 0)
	if p.Limit() != 1000 {
		t.Errorf("Limit() = %v, want 1000", p.Limit())
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
}

func TestPacer_WaitHonoursContext(t *testing.T) {
	p := NewPacer(0.001, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// first token is free
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if err := p.Wait(ctx); err == nil {
		t.Error("second Wait() should fail once the context deadline cannot be met")
	}
}
