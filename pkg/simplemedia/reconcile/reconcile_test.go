package reconcile_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/reconcile"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

// flakyStore fails deletes of the keys in failing
type flakyStore struct {
	*memory.Backend
	failing map[string]bool
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.failing[key] {
		return errors.New("backend unavailable")
	}
	return s.Backend.Delete(ctx, key)
}

func newRedisLedger(t *testing.T) *reconcile.RedisLedger {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	ledger, err := reconcile.NewRedisLedger(client, "")
	require.NoError(t, err)
	return ledger
}

func TestLedgers(t *testing.T) {
	ledgers := map[string]reconcile.Ledger{
		"memory": reconcile.NewMemoryLedger(),
		"redis":  newRedisLedger(t),
	}

	for name, ledger := range ledgers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			claim, err := ledger.Claim(ctx)
			require.NoError(t, err)
			assert.Nil(t, claim)

			first := simplemedia.Orphan{Key: "media/a.mp4", ContentID: uuid.New(), Reason: simplemedia.OrphanCreateRollback}
			second := simplemedia.Orphan{Key: "media/b.mp4", Reason: simplemedia.OrphanReplaced, Attempts: 2}
			require.NoError(t, ledger.RecordOrphan(ctx, first))
			require.NoError(t, ledger.RecordOrphan(ctx, second))

			n, err := ledger.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			got, err := ledger.Claim(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, first.Key, got.Orphan.Key)
			assert.Equal(t, first.ContentID, got.Orphan.ContentID)
			require.NoError(t, ledger.Ack(ctx, got))

			got, err = ledger.Claim(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 2, got.Orphan.Attempts)

			got.Orphan.Attempts = 3
			require.NoError(t, ledger.Requeue(ctx, got))

			got, err = ledger.Claim(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 3, got.Orphan.Attempts)
			require.NoError(t, ledger.Ack(ctx, got))

			restored, err := ledger.Restore(ctx)
			require.NoError(t, err)
			assert.Zero(t, restored, "acknowledged claims must not come back")
		})
	}
}

func TestRedisLedger_RestoresInterruptedClaims(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	ledger, err := reconcile.NewRedisLedger(client, "test:orphans")
	require.NoError(t, err)
	require.NoError(t, ledger.RecordOrphan(ctx, simplemedia.Orphan{Key: "media/a.mp4"}))

	claim, err := ledger.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)

	// the process dies here; a fresh ledger picks up the processing list
	n, err := ledger.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), client.LLen(ctx, "test:orphans:processing").Val())

	restarted, err := reconcile.NewRedisLedger(client, "test:orphans")
	require.NoError(t, err)
	restored, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored)

	again, err := restarted.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "media/a.mp4", again.Orphan.Key)
}

// stuckLedger cannot requeue
type stuckLedger struct {
	*reconcile.MemoryLedger
}

func (l stuckLedger) Requeue(ctx context.Context, claim *reconcile.Claim) error {
	return errors.New("ledger unavailable")
}

func TestSweeper_RequeueFailureKeepsOrphan(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Backend: memory.New(nil), failing: map[string]bool{"media/stuck.mp4": true}}
	gateway := simplemedia.NewGateway("memory", store)

	ledger := stuckLedger{reconcile.NewMemoryLedger()}
	require.NoError(t, ledger.RecordOrphan(ctx, simplemedia.Orphan{Key: "media/stuck.mp4"}))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	sweeper := reconcile.NewSweeper(ledger, gateway, reconcile.WithLogger(logger))

	_, err := sweeper.RunOnce(ctx)
	require.Error(t, err)
	assert.Contains(t, logs.String(), "media/stuck.mp4")

	restored, err := sweeper.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored)

	claim, err := ledger.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, "media/stuck.mp4", claim.Orphan.Key)
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Backend: memory.New(nil), failing: map[string]bool{"media/stuck.mp4": true}}
	gateway := simplemedia.NewGateway("memory", store)

	require.NoError(t, store.Upload(ctx, "media/ok.mp4", bytes.NewReader([]byte("x")), simplemedia.UploadParams{Size: 1}))
	require.NoError(t, store.Upload(ctx, "media/stuck.mp4", bytes.NewReader([]byte("y")), simplemedia.UploadParams{Size: 1}))

	ledger := reconcile.NewMemoryLedger()
	require.NoError(t, ledger.RecordOrphan(ctx, simplemedia.Orphan{Key: "media/ok.mp4", RecordedAt: time.Now()}))
	require.NoError(t, ledger.RecordOrphan(ctx, simplemedia.Orphan{Key: "media/stuck.mp4", RecordedAt: time.Now()}))
	require.NoError(t, ledger.RecordOrphan(ctx, simplemedia.Orphan{Key: "media/gone.mp4", RecordedAt: time.Now()}))

	sweeper := reconcile.NewSweeper(ledger, gateway, reconcile.WithMaxAttempts(2))

	res, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Deleted: 2, Requeued: 1}, res)
	assert.Equal(t, []string{"media/stuck.mp4"}, store.Keys())

	n, err := ledger.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Abandoned: 1}, res)

	n, err = ledger.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ledger := reconcile.NewMemoryLedger()
	gateway := simplemedia.NewGateway("memory", memory.New(nil))
	sweeper := reconcile.NewSweeper(ledger, gateway, reconcile.WithInterval(10*time.Millisecond))

	require.NoError(t, ledger.RecordOrphan(context.Background(), simplemedia.Orphan{Key: "media/x.mp4"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	assert.Eventually(t, func() bool {
		n, _ := ledger.Len(context.Background())
		return n == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
