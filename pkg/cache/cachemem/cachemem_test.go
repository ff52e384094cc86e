package cachemem

import (
	"context"
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := New()
	ctx := context.Background()

	if err := c.Set(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := c.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestGetExpired(t *testing.T) {
	c := New()
	ctx := context.Background()
	if err := c.Set(ctx, "k1", []byte("v1"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Fatal("expected expired entry to be a miss")
	}
}

func TestDeletePattern(t *testing.T) {
	c := New()
	ctx := context.Background()
	_ = c.Set(ctx, "user_scopes:42:t1", []byte("a"), 0)
	_ = c.Set(ctx, "user_scopes:42:t2", []byte("b"), 0)
	_ = c.Set(ctx, "user_scopes:7:t1", []byte("c"), 0)

	if err := c.DeletePattern(ctx, "user_scopes:42:*"); err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "user_scopes:42:t1"); ok {
		t.Fatal("expected user_scopes:42:t1 to be deleted")
	}
	if _, ok, _ := c.Get(ctx, "user_scopes:42:t2"); ok {
		t.Fatal("expected user_scopes:42:t2 to be deleted")
	}
	if _, ok, _ := c.Get(ctx, "user_scopes:7:t1"); !ok {
		t.Fatal("expected user_scopes:7:t1 to survive")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := New()
	ctx := context.Background()
	_ = c.Set(ctx, "k1", []byte("v1"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	c.Sweep()
	c.mu.RLock()
	_, found := c.entries["k1"]
	c.mu.RUnlock()
	if found {
		t.Fatal("expected Sweep to remove expired entry")
	}
}
