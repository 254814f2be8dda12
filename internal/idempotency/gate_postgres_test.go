//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/newsletter-backend/pkg/db/dbtest"
)

func TestPostgresConcurrentDuplicatesExecuteOnce(t *testing.T) {
	gate, conn := newGateOn(t, dbtest.OpenPostgres(t), nil)
	assertDuplicatesExecuteOnce(t, gate, conn)
}

func TestPostgresDuplicateWaitsForUncommittedWinner(t *testing.T) {
	ctx := context.Background()
	gate, _ := newGateOn(t, dbtest.OpenPostgres(t), nil)
	actor := uuid.New()
	key := mustKey(t, "abc")

	first, err := gate.TryProcessing(ctx, actor, key)
	require.NoError(t, err)
	winner, ok := first.(StartProcessing)
	require.True(t, ok, "expected StartProcessing, got %T", first)

	type result struct {
		action NextAction
		err    error
	}
	done := make(chan result, 1)
	go func() {
		action, err := gate.TryProcessing(ctx, actor, key)
		done <- result{action: action, err: err}
	}()

	select {
	case res := <-done:
		t.Fatalf("duplicate returned before the winner finished: %T %v", res.action, res.err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, winner.UnitOfWork.Rollback())

	select {
	case res := <-done:
		require.NoError(t, res.err)
		next, ok := res.action.(StartProcessing)
		require.True(t, ok, "expected StartProcessing after rollback, got %T", res.action)
		require.NoError(t, next.UnitOfWork.Rollback())
	case <-time.After(5 * time.Second):
		t.Fatal("duplicate still blocked after the winner rolled back")
	}
}
