package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeCmdable struct {
	redis.Cmdable
	store map[string]string
	ttls  map[string]time.Duration
}

func newFake() *fakeCmdable {
	return &fakeCmdable{store: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := f.store[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		f.store[key] = v
	case []byte:
		f.store[key] = string(v)
	}
	f.ttls[key] = ttl
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.store, k)
		delete(f.ttls, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func TestSetGrowsMultiplierOnUnchangedContent(t *testing.T) {
	client := newFake()
	m := New(client, time.Hour, 5)
	ctx := context.Background()
	data := json.RawMessage(`{"price":"10.00"}`)

	if err := m.Set(ctx, "https://produto.mercadolivre.com.br/MLB-1", data, "<html>same</html>", "etag-1"); err != nil {
		t.Fatalf("first set: %v", err)
	}

	entry, ok := m.Get(ctx, "https://produto.mercadolivre.com.br/MLB-1")
	if !ok || entry.Multiplier != 1 {
		t.Fatalf("expected multiplier 1 after first set, got %+v ok=%v", entry, ok)
	}

	if err := m.Set(ctx, "https://produto.mercadolivre.com.br/MLB-1", data, "<html>same</html>", "etag-1"); err != nil {
		t.Fatalf("second set: %v", err)
	}
	entry, ok = m.Get(ctx, "https://produto.mercadolivre.com.br/MLB-1")
	if !ok || entry.Multiplier != 2 {
		t.Fatalf("expected multiplier 2 after unchanged content, got %+v ok=%v", entry, ok)
	}
}

func TestSetResetsMultiplierOnChangedContent(t *testing.T) {
	client := newFake()
	m := New(client, time.Hour, 5)
	ctx := context.Background()
	data := json.RawMessage(`{"price":"10.00"}`)

	_ = m.Set(ctx, "u", data, "<html>v1</html>", "")
	_ = m.Set(ctx, "u", data, "<html>v1</html>", "")
	entry, _ := m.Get(ctx, "u")
	if entry.Multiplier != 2 {
		t.Fatalf("expected multiplier 2, got %d", entry.Multiplier)
	}

	_ = m.Set(ctx, "u", data, "<html>v2-different</html>", "")
	entry, _ = m.Get(ctx, "u")
	if entry.Multiplier != 1 {
		t.Fatalf("expected multiplier reset to 1 on changed content, got %d", entry.Multiplier)
	}
}

func TestSetCapsMultiplierAtMax(t *testing.T) {
	client := newFake()
	m := New(client, time.Hour, 2)
	ctx := context.Background()
	data := json.RawMessage(`{}`)

	for i := 0; i < 5; i++ {
		_ = m.Set(ctx, "u", data, "<html>same</html>", "")
	}
	entry, _ := m.Get(ctx, "u")
	if entry.Multiplier != 2 {
		t.Fatalf("expected multiplier capped at 2, got %d", entry.Multiplier)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	client := newFake()
	m := New(client, time.Hour, 5)
	ctx := context.Background()

	_ = m.Set(ctx, "u", json.RawMessage(`{}`), "<html></html>", "")
	if _, ok := m.Get(ctx, "u"); !ok {
		t.Fatal("expected entry present before invalidate")
	}
	_ = m.Invalidate(ctx, "u")
	if _, ok := m.Get(ctx, "u"); ok {
		t.Fatal("expected entry gone after invalidate")
	}
}
