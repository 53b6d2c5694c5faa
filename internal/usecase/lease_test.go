package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
)

// interleavedOrders runs before once, ahead of the first status change it forwards.
type interleavedOrders struct {
	repository.OrderRepository
	before func()
	once   sync.Once
}

func (r *interleavedOrders) ChangeStatus(ctx context.Context, change model.StatusChange) error {
	r.once.Do(r.before)
	return r.OrderRepository.ChangeStatus(ctx, change)
}

// leaseWithEvent returns a lease use case whose first status change is preceded by a front-end event.
func (f *fixture) leaseWithEvent(t *testing.T, orderID int64, event lifecycle.Event) *LeaseUseCase {
	t.Helper()
	orders := &interleavedOrders{
		OrderRepository: f.store.Orders(),
		before: func() {
			_, err := f.orders.ApplyEvent(context.Background(), orderID, event)
			require.NoError(t, err)
		},
	}
	transitions := NewTransitions(orders, f.notifier, f.recorder, slog.New(slog.DiscardHandler))
	return NewLeaseUseCase(orders, f.artifacts, transitions, f.stats, f.recorder)
}

func TestReceiveLeasesHighestPriority(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder-1")

	low := f.order(t, 1, 3, false)
	high := f.order(t, 2, 1, false)
	f.order(t, 3, 1, true)

	got, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, high.ID, got.ID)
	assert.Equal(t, model.OrderStatusBuildStarted, got.Status)
	require.NotNil(t, got.WorkerID)
	assert.Equal(t, w.ID, *got.WorkerID)

	_, err = f.lease.Receive(ctx, w.ID)
	assert.ErrorIs(t, err, domainErrors.ErrLeaseHeld)

	current, err := f.lease.Current(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, high.ID, current.ID)

	other := f.worker(t, "builder-2")
	next, err := f.lease.Receive(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, low.ID, next.ID)

	third := f.worker(t, "builder-3")
	empty, err := f.lease.Receive(ctx, third.ID)
	require.NoError(t, err)
	assert.Nil(t, empty, "sources-only orders are never leased")

	assert.Equal(t, 2.0, f.recorder.Count("lease:granted"))
	assert.Equal(t, 1.0, f.recorder.Count("lease:held"))
	assert.Equal(t, 1.0, f.recorder.Count("lease:empty"))
}

func TestCurrentWithoutLease(t *testing.T) {
	f := newFixture(t)
	w := f.worker(t, "idle")
	_, err := f.lease.Current(context.Background(), w.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNoLease)
}

func TestCompleteStoresArtifactAndReleases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 42, 1, false)

	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	require.NoError(t, f.lease.Complete(ctx, w.ID, strings.NewReader("apk-bytes")))

	got := f.reload(t, order.ID)
	assert.Equal(t, model.OrderStatusBuilt, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Equal(t, 1, got.BuildAttempts)

	data, ok := f.artifacts.Content(order.ID, model.ArtifactBuild)
	require.True(t, ok)
	assert.Equal(t, "apk-bytes", string(data))

	stats, err := f.stats.ForUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SuccessfulBuildCount)
	assert.Equal(t, 0, stats.FailedBuildCount)

	assert.Equal(t, []model.OrderStatus{model.OrderStatusQueued, model.OrderStatusBuildStarted, model.OrderStatusBuilt}, f.notifier.Targets())

	err = f.lease.Complete(ctx, w.ID, strings.NewReader("again"))
	assert.ErrorIs(t, err, domainErrors.ErrNoLease)
}

func TestCompleteFailsWhenArtifactCannotBeSaved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 1, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	f.artifacts.SaveErr = assert.AnError
	err = f.lease.Complete(ctx, w.ID, strings.NewReader("apk"))
	require.ErrorIs(t, err, assert.AnError)

	got := f.reload(t, order.ID)
	assert.Equal(t, model.OrderStatusBuildStarted, got.Status)
	assert.NotNil(t, got.WorkerID)
}

func TestFailRecordsErrorText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 7, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	text := "gradle: compilation failed"
	require.NoError(t, f.lease.Fail(ctx, w.ID, &text))

	got := f.reload(t, order.ID)
	assert.Equal(t, model.OrderStatusFailed, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Equal(t, 1, got.BuildAttempts)

	entry, err := f.stats.PopErrorLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, text, entry.Text)

	stats, err := f.stats.ForUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedBuildCount)

	assert.ErrorIs(t, f.lease.Fail(ctx, w.ID, nil), domainErrors.ErrNoLease)
}

func TestFailWithoutText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	f.order(t, 7, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	require.NoError(t, f.lease.Fail(ctx, w.ID, nil))
	_, err = f.stats.PopErrorLog(ctx)
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}

func TestReportResolvesAgainstConcurrentNotification(t *testing.T) {
	cases := []struct {
		name   string
		report func(*LeaseUseCase, int64) error
		want   model.OrderStatus
	}{
		{
			name:   "complete",
			report: func(l *LeaseUseCase, id int64) error { return l.Complete(context.Background(), id, strings.NewReader("apk")) },
			want:   model.OrderStatusBuilt,
		},
		{
			name:   "fail",
			report: func(l *LeaseUseCase, id int64) error { return l.Fail(context.Background(), id, nil) },
			want:   model.OrderStatusFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.worker(t, "builder")
			order := f.order(t, 42, 1, false)
			_, err := f.lease.Receive(context.Background(), w.ID)
			require.NoError(t, err)

			lease := f.leaseWithEvent(t, order.ID, lifecycle.EventNotified)
			require.NoError(t, tc.report(lease, w.ID))

			got := f.reload(t, order.ID)
			assert.Equal(t, tc.want, got.Status)
			assert.Nil(t, got.WorkerID)
			assert.Equal(t, 1, got.BuildAttempts)

			_, err = f.lease.Current(context.Background(), w.ID)
			assert.ErrorIs(t, err, domainErrors.ErrNoLease)
		})
	}
}

func TestReportAfterLeaseWasTakenAway(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	w := f.worker(t, "builder")
	order := f.order(t, 42, 1, false)
	_, err := f.lease.Receive(ctx, w.ID)
	require.NoError(t, err)

	lease := f.leaseWithEvent(t, order.ID, lifecycle.EventRepeat)
	err = lease.Complete(ctx, w.ID, strings.NewReader("apk"))
	require.ErrorIs(t, err, domainErrors.ErrNoLease)

	got := f.reload(t, order.ID)
	assert.Equal(t, model.OrderStatusQueued, got.Status)
	assert.Nil(t, got.WorkerID)
	assert.Zero(t, got.BuildAttempts)
}
