package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisClaimer(t *testing.T) (*RedisClaimer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisClaimer(client), mr
}

func TestRedisClaimFirstWins(t *testing.T) {
	claimer, _ := newTestRedisClaimer(t)
	ctx := context.Background()

	first, err := claimer.Claim(ctx, "accepted:q1:1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := claimer.Claim(ctx, "accepted:q1:1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first || second {
		t.Fatalf("expected first claim to win and second to lose, got %v/%v", first, second)
	}
}

func TestRedisClaimAvailableAfterExpiry(t *testing.T) {
	claimer, mr := newTestRedisClaimer(t)
	ctx := context.Background()

	if ok, _ := claimer.Claim(ctx, "viewed:q1:1", time.Minute); !ok {
		t.Fatal("expected initial claim")
	}
	mr.FastForward(2 * time.Minute)

	ok, err := claimer.Claim(ctx, "viewed:q1:1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected expired key to be claimable again")
	}
}

func TestRedisClaimConcurrentSingleWinner(t *testing.T) {
	claimer, _ := newTestRedisClaimer(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := claimer.Claim(ctx, "revision_sent:q9:2", time.Hour); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestRedisClaimReportsUnreachableStore(t *testing.T) {
	claimer, mr := newTestRedisClaimer(t)
	mr.Close()

	if _, err := claimer.Claim(context.Background(), "accepted:q1:1", time.Hour); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestRedisClaimRejectsNonPositiveTTL(t *testing.T) {
	claimer, _ := newTestRedisClaimer(t)
	if _, err := claimer.Claim(context.Background(), "k", 0); err == nil {
		t.Fatal("expected ttl validation error")
	}
}
