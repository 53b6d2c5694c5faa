package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

func TestRecoverStuck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w1 := f.worker(t, "builder-1")
	w2 := f.worker(t, "builder-2")
	started := f.order(t, 1, 1, false)
	sending := f.order(t, 2, 1, false)
	waiting := f.order(t, 3, 1, false)

	_, err := f.lease.Receive(ctx, w1.ID)
	require.NoError(t, err)
	_, err = f.lease.Receive(ctx, w2.ID)
	require.NoError(t, err)
	require.NoError(t, f.lease.Complete(ctx, w2.ID, strings.NewReader("apk")))
	_, err = f.orders.ApplyEvent(ctx, sending.ID, lifecycle.EventSendResult)
	require.NoError(t, err)

	n, err := f.reconcile.RecoverStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := f.reload(t, started.ID)
	assert.Equal(t, model.OrderStatusQueued, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Equal(t, model.OrderStatusBuilt, f.reload(t, sending.ID).Status)
	assert.Equal(t, model.OrderStatusQueued, f.reload(t, waiting.ID).Status)
	assert.Equal(t, 2.0, f.recorder.Count("recovered:stuck"))
}

func TestRecoverOfflineKeepsOnlineWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	f.order(t, 1, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	n, err := f.reconcile.RecoverOffline(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "online worker keeps its order")
}

func TestRecoverOffline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	online := f.worker(t, "online")
	stale := f.worker(t, "stale")
	gone := f.worker(t, "gone")
	kept := f.order(t, 1, 1, false)
	lost := f.order(t, 2, 1, false)
	orphan := f.order(t, 3, 1, false)

	for _, w := range []*model.Worker{online, stale, gone} {
		_, err := f.lease.Receive(ctx, w.ID)
		require.NoError(t, err)
	}
	require.NoError(t, f.store.Workers().Touch(ctx, stale.ID, time.Now().Add(-time.Hour)))
	require.NoError(t, f.store.Workers().Delete(ctx, gone.ID))

	n, err := f.reconcile.RecoverOffline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, model.OrderStatusBuildStarted, f.reload(t, kept.ID).Status)
	for _, id := range []int64{lost.ID, orphan.ID} {
		got := f.reload(t, id)
		assert.Equal(t, model.OrderStatusQueued, got.Status)
		assert.Nil(t, got.WorkerID)
	}

	_, err = f.lease.Current(ctx, stale.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNoLease, "a late report from the stale worker is rejected")
	assert.Equal(t, 2.0, f.recorder.Count("recovered:offline"))
}

func TestPurgeStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.stats.RecordBuild(ctx, 1, true))

	n, err := f.reconcile.PurgeStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.reconcile.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = f.reconcile.PurgeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.stats.ForUser(ctx, 1)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}

func TestPurgeFinished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	done := f.order(t, 1, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)
	require.NoError(t, f.lease.Complete(ctx, w.ID, strings.NewReader("apk")))
	_, err = f.orders.ApplyEvent(ctx, done.ID, lifecycle.EventSendResult)
	require.NoError(t, err)
	_, err = f.orders.ApplyEvent(ctx, done.ID, lifecycle.EventNone)
	require.NoError(t, err)
	pending := f.order(t, 2, 1, false)

	n, err := f.reconcile.PurgeFinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "recent orders are kept")

	f.reconcile.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = f.reconcile.PurgeFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.Orders().GetByID(ctx, done.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
	_, ok := f.artifacts.Content(done.ID, model.ArtifactBuild)
	assert.False(t, ok)
	assert.Equal(t, model.OrderStatusQueued, f.reload(t, pending.ID).Status)
	assert.Equal(t, 1.0, f.recorder.Count("purged:orders"))
}

func TestPassJoinsSteps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stats.now = func() time.Time { return time.Now().Add(-72 * time.Hour) }
	require.NoError(t, f.stats.RecordBuild(ctx, 1, false))

	require.NoError(t, f.reconcile.Pass(ctx))
	_, err := f.stats.ForUser(ctx, 1)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}
