package cache_test

import (
	"testing"
	"time"

	"github.com/dukapos/pos-core-go/internal/domain"
	"github.com/dukapos/pos-core-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[domain.HealthStatus](time.Minute)
	defer c.Close()

	c.Set("health", domain.HealthStatus{Status: "healthy", Version: "1.0.0"})
	got, ok := c.Get("health")
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if got.Status != "healthy" {
		t.Errorf("status = %q", got.Status)
	}
}

func TestCache_Miss(t *testing.T) {
	c := cache.New[string](time.Minute)
	defer c.Close()

	if _, ok := c.Get("absent"); ok {
		t.Fatal("expected miss for unset key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](30 * time.Millisecond)
	defer c.Close()

	c.Set("probe", "ok")
	time.Sleep(60 * time.Millisecond)

	if _, ok := c.Get("probe"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](time.Minute)
	defer c.Close()

	c.Set("probe", "ok")
	c.Delete("probe")

	if _, ok := c.Get("probe"); ok {
		t.Fatal("expected entry to be gone")
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Close()
	c.Close() // must not panic
}
