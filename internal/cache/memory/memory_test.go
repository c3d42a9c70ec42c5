package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/signon/internal/cache/memory"
)

func TestSetGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := memory.New(time.Minute)

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	got, ok := c.Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v; want v, true", got, ok)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("key survived Delete")
	}
}

func TestTake_SingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := memory.New(time.Minute)

	if err := c.Set(ctx, "once", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}

	got, ok := c.Take(ctx, "once")
	if !ok || string(got) != "x" {
		t.Fatalf("first Take = %q, %v; want x, true", got, ok)
	}
	if _, ok := c.Take(ctx, "once"); ok {
		t.Fatalf("second Take succeeded; value must be single-use")
	}
	if _, ok := c.Get(ctx, "once"); ok {
		t.Fatalf("value still readable after Take")
	}
}

func TestSet_TTLExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := memory.New(time.Minute)

	if err := c.Set(ctx, "ttl", []byte("y"), 20*time.Millisecond); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(ctx, "ttl"); ok {
		t.Fatalf("value survived its TTL")
	}
}
