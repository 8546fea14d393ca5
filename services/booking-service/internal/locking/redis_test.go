package locking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis implements SET NX and the release script over a map.
type fakeRedis struct {
	mu   sync.Mutex
	keys map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{keys: map[string]string{}} }

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, taken := f.keys[key]; taken {
		cmd.SetVal(false)
		return cmd
	}
	f.keys[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeRedis) release(ctx context.Context, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewCmd(ctx)
	if f.keys[keys[0]] == args[0].(string) {
		delete(f.keys, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.release(ctx, keys, args...)
}

func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}

func (f *fakeRedis) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("sha")
	return cmd
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedisLocker(rdb, Options{Prefix: "petbook", Wait: 30 * time.Millisecond, Retry: 5 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "service:a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := l.Lock(context.Background(), "service:a"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	unlock()
	if len(rdb.keys) != 0 {
		t.Fatalf("unlock left keys behind: %v", rdb.keys)
	}
	again, err := l.Lock(context.Background(), "service:a")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestRedisLockerUnlockKeepsForeignToken(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedisLocker(rdb, Options{})

	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// Simulate expiry followed by another holder taking the key.
	rdb.mu.Lock()
	rdb.keys["lock:k"] = "someone-else"
	rdb.mu.Unlock()

	unlock()
	if rdb.keys["lock:k"] != "someone-else" {
		t.Fatal("unlock removed a lock it no longer owned")
	}
}

func TestRedisLockerHonoursContext(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedisLocker(rdb, Options{Wait: time.Minute, Retry: 5 * time.Millisecond})
	if _, err := l.Lock(context.Background(), "k"); err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
