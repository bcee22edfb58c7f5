package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/logging"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestAllow_FixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := New(client, 2, time.Minute, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, ActionResetRequest, "alice", ""); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	err := l.Allow(ctx, ActionResetRequest, "alice", "")
	if !errors.Is(err, apperror.ErrRateLimited) {
		t.Fatalf("third attempt: got %v, want ErrRateLimited", err)
	}

	if err := l.Allow(ctx, ActionSignup, "alice", ""); err != nil {
		t.Errorf("other actions have their own counter: %v", err)
	}
	if err := l.Allow(ctx, ActionResetRequest, "bob", ""); err != nil {
		t.Errorf("other identifiers have their own counter: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, ActionResetRequest, "alice", ""); err != nil {
		t.Errorf("after the window: unexpected error %v", err)
	}
}

func TestAllow_PerIP(t *testing.T) {
	_, client := newTestRedis(t)
	l := New(client, 1, time.Minute, logging.Discard())
	ctx := context.Background()

	if err := l.Allow(ctx, ActionResetRequest, "alice", "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	err := l.Allow(ctx, ActionResetRequest, "bob", "10.0.0.1")
	if !errors.Is(err, apperror.ErrRateLimited) {
		t.Fatalf("same ip, new name: got %v, want ErrRateLimited", err)
	}
}

func TestAllow_Disabled(t *testing.T) {
	var l *Limiter
	for i := 0; i < 10; i++ {
		if err := l.Allow(context.Background(), ActionSignup, "alice", "10.0.0.1"); err != nil {
			t.Fatalf("nil limiter must allow: %v", err)
		}
	}
}

func TestAllow_RedisDownFailsOpen(t *testing.T) {
	mr, client := newTestRedis(t)
	l := New(client, 1, time.Minute, logging.Discard())
	mr.Close()

	for i := 0; i < 3; i++ {
		if err := l.Allow(context.Background(), ActionResetRequest, "alice", ""); err != nil {
			t.Fatalf("attempt %d: want allowed while redis is down, got %v", i+1, err)
		}
	}
}
