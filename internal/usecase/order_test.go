package usecase

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

func TestCreateReportsQueuePosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, pos, err := f.orders.Create(ctx, NewOrder{UserID: 1, Priority: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	assert.Equal(t, model.OrderStatusQueued, first.Status)

	_, pos, err = f.orders.Create(ctx, NewOrder{UserID: 2, Priority: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "higher priority jumps ahead")

	_, pos, err = f.orders.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	sources, pos, err := f.orders.Create(ctx, NewOrder{UserID: 3, Priority: 1, SourcesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusGetSourcesQueued, sources.Status)
	assert.Zero(t, pos)

	_, _, err = f.orders.Create(ctx, NewOrder{UserID: 4, Priority: -1})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPriority)
}

func TestCreateDerivesPriorityFromHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	order, _, err := f.orders.Create(ctx, NewOrder{UserID: 5})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPriority, order.Priority)

	// Two successes and three failures with one failure allowed.
	for _, ok := range []bool{true, true, false, false, false} {
		require.NoError(t, f.stats.RecordBuild(ctx, 5, ok))
	}
	order, _, err = f.orders.Create(ctx, NewOrder{UserID: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, order.Priority)

	order, _, err = f.orders.Create(ctx, NewOrder{UserID: 5, Priority: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, order.Priority, "explicit priority wins")
}

func TestUpdateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.order(t, 1, 1, false)

	tag := "v2"
	err := f.orders.Update(ctx, &model.Order{ID: order.ID, Priority: 4, UpdateTag: &tag, Config: model.BuildConfig{AppName: "Notes"}})
	require.NoError(t, err)

	got := f.reload(t, order.ID)
	assert.Equal(t, 4, got.Priority)
	assert.Equal(t, "Notes", got.Config.AppName)
	require.NotNil(t, got.UpdateTag)
	assert.Equal(t, "v2", *got.UpdateTag)

	err = f.orders.Update(ctx, &model.Order{ID: order.ID, Priority: 0})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidPriority)
}

func TestApplyEventFollowsLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 1, 1, false)

	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	got, err := f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventNotified)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusBuilding, got.Status)
	assert.NotNil(t, got.WorkerID, "building keeps the lease")

	require.NoError(t, f.lease.Complete(ctx, w.ID, strings.NewReader("apk")))

	got, err = f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventSendResult)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSendingResult, got.Status)

	got, err = f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventNone)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusFinished, got.Status)

	_, err = f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventNone)
	assert.ErrorIs(t, err, domainErrors.ErrWrongState)

	_, err = f.orders.ApplyEvent(ctx, 9999, lifecycle.EventNone)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}

func TestApplyEventReleasesWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 1, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	got, err := f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventRepeat)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusQueued, got.Status)
	assert.Nil(t, got.WorkerID)

	_, err = f.lease.Current(ctx, w.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNoLease)
}

func TestRetryResetsQueueTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 1, 1, false)
	f.order(t, 2, 1, false)

	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)
	require.NoError(t, f.lease.Fail(ctx, w.ID, nil))

	_, err = f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventNone)
	require.NoError(t, err)
	got, err := f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventRetry)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusQueued, got.Status)
	assert.True(t, got.RecordCreated.After(order.RecordCreated))

	_, pos, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, pos, "retried order goes behind orders queued meanwhile")
}

func TestCancelRemovesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 1, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)
	require.NoError(t, f.lease.Fail(ctx, w.ID, nil))
	_, err = f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventNone)
	require.NoError(t, err)

	got, err := f.orders.ApplyEvent(ctx, order.ID, lifecycle.EventCancel)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, _, err = f.orders.Get(ctx, order.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)

	events := f.notifier.Events()
	last := events[len(events)-1]
	assert.True(t, last.Removed)
	assert.Equal(t, model.OrderStatusFailedNotified, last.From)
	assert.Equal(t, 1.0, f.recorder.Count("removal:failed_notified"))
}

func TestDeleteOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	leased := f.order(t, 1, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.orders.Delete(ctx, leased.ID), domainErrors.ErrStateConflict)

	require.NoError(t, f.lease.Complete(ctx, w.ID, strings.NewReader("apk")))
	require.NoError(t, f.orders.Delete(ctx, leased.ID))

	_, ok := f.artifacts.Content(leased.ID, model.ArtifactBuild)
	assert.False(t, ok, "artifacts are removed with the order")
	assert.ErrorIs(t, f.orders.Delete(ctx, leased.ID), domainErrors.ErrNotFound)
}

func TestDeleteIgnoresArtifactFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	order := f.order(t, 1, 1, false)
	f.artifacts.RemoveErr = assert.AnError

	require.NoError(t, f.orders.Delete(ctx, order.ID))
}

func TestOpenArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 1, 1, false)

	_, _, err := f.orders.OpenArtifact(ctx, order.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)

	_, err = f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)
	require.NoError(t, f.lease.Complete(ctx, w.ID, strings.NewReader("apk-bytes")))

	r, kind, err := f.orders.OpenArtifact(ctx, order.ID)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, model.ArtifactBuild, kind)
	assert.Equal(t, "apk-bytes", string(data))
}
