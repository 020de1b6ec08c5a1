// Package reconcile collects objects that could not be deleted during
// compensation and retries their removal in the background.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// Claim is an orphan taken from a Ledger for processing. It stays in the
// ledger's in-flight set until it is acknowledged or requeued.
type Claim struct {
	Orphan simplemedia.Orphan
	raw    []byte
}

// Ledger is a durable queue of orphaned objects
type Ledger interface {
	simplemedia.OrphanRecorder
	// Claim moves the oldest orphan to the in-flight set and returns it, or
	// nil when the queue is empty.
	Claim(ctx context.Context) (*Claim, error)
	// Ack drops a claim whose object is gone or given up on.
	Ack(ctx context.Context, claim *Claim) error
	// Requeue puts claim.Orphan back on the queue and drops the claim.
	Requeue(ctx context.Context, claim *Claim) error
	// Restore returns in-flight entries left by an interrupted sweep to the queue.
	Restore(ctx context.Context) (int64, error)
	// Len counts queued orphans, excluding in-flight ones.
	Len(ctx context.Context) (int64, error)
}

// MemoryLedger keeps orphans in process memory. Orphans are lost on restart.
type MemoryLedger struct {
	mu       sync.Mutex
	orphans  []simplemedia.Orphan
	inflight []*Claim
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

func (l *MemoryLedger) RecordOrphan(ctx context.Context, orphan simplemedia.Orphan) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orphans = append(l.orphans, orphan)
	return nil
}

func (l *MemoryLedger) Claim(ctx context.Context) (*Claim, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.orphans) == 0 {
		return nil, nil
	}
	claim := &Claim{Orphan: l.orphans[0]}
	l.orphans = l.orphans[1:]
	l.inflight = append(l.inflight, claim)
	return claim, nil
}

func (l *MemoryLedger) Ack(ctx context.Context, claim *Claim) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.release(claim)
	return nil
}

func (l *MemoryLedger) Requeue(ctx context.Context, claim *Claim) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.release(claim)
	l.orphans = append(l.orphans, claim.Orphan)
	return nil
}

func (l *MemoryLedger) Restore(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := int64(len(l.inflight))
	for _, claim := range l.inflight {
		l.orphans = append(l.orphans, claim.Orphan)
	}
	l.inflight = nil
	return n, nil
}

func (l *MemoryLedger) Len(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.orphans)), nil
}

func (l *MemoryLedger) release(claim *Claim) {
	l.inflight = slices.DeleteFunc(l.inflight, func(c *Claim) bool { return c == claim })
}

// DefaultLedgerKey is the Redis list used by RedisLedger
const DefaultLedgerKey = "simple-media:orphans"

// RedisLedger keeps orphans as JSON entries in a Redis list so they survive
// restarts and can be drained by any replica. Claimed entries are moved
// atomically to a processing list, so a crash mid-sweep loses nothing.
type RedisLedger struct {
	client     redis.Cmdable
	key        string
	processing string
}

// NewRedisLedger creates a ledger stored under key, with in-flight entries
// under key + ":processing".
func NewRedisLedger(client redis.Cmdable, key string) (*RedisLedger, error) {
	if client == nil {
		return nil, errors.New("redis ledger requires a client")
	}
	if key == "" {
		key = DefaultLedgerKey
	}
	return &RedisLedger{client: client, key: key, processing: key + ":processing"}, nil
}

func (l *RedisLedger) RecordOrphan(ctx context.Context, orphan simplemedia.Orphan) error {
	payload, err := json.Marshal(orphan)
	if err != nil {
		return fmt.Errorf("encode orphan: %w", err)
	}
	if err := l.client.RPush(ctx, l.key, payload).Err(); err != nil {
		return fmt.Errorf("record orphan %s: %w", orphan.Key, err)
	}
	return nil
}

func (l *RedisLedger) Claim(ctx context.Context) (*Claim, error) {
	payload, err := l.client.LMove(ctx, l.key, l.processing, "LEFT", "RIGHT").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim orphan: %w", err)
	}
	claim := &Claim{raw: payload}
	if err := json.Unmarshal(payload, &claim.Orphan); err != nil {
		l.client.LRem(ctx, l.processing, 1, payload)
		return nil, fmt.Errorf("drop undecodable orphan %q: %w", payload, err)
	}
	return claim, nil
}

func (l *RedisLedger) Ack(ctx context.Context, claim *Claim) error {
	if err := l.client.LRem(ctx, l.processing, 1, claim.raw).Err(); err != nil {
		return fmt.Errorf("ack orphan %s: %w", claim.Orphan.Key, err)
	}
	return nil
}

func (l *RedisLedger) Requeue(ctx context.Context, claim *Claim) error {
	payload, err := json.Marshal(claim.Orphan)
	if err != nil {
		return fmt.Errorf("encode orphan: %w", err)
	}
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, l.key, payload)
		pipe.LRem(ctx, l.processing, 1, claim.raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue orphan %s: %w", claim.Orphan.Key, err)
	}
	return nil
}

func (l *RedisLedger) Restore(ctx context.Context) (int64, error) {
	var n int64
	for {
		err := l.client.LMove(ctx, l.processing, l.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("restore orphans: %w", err)
		}
		n++
	}
}

func (l *RedisLedger) Len(ctx context.Context) (int64, error) {
	n, err := l.client.LLen(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count orphans: %w", err)
	}
	return n, nil
}
