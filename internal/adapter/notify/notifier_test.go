package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	testhelpers "github.com/wrwrabbit/apk-customizer-bot/internal/test"
)

func startNATS(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestPublishRoutesByTargetStatus(t *testing.T) {
	ns := startNATS(t)
	logger := slog.New(slog.DiscardHandler)

	n, err := Connect(ns.ClientURL(), "orders.status", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	sub, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	msgs := make(chan *nats.Msg, 4)
	_, err = sub.ChanSubscribe("orders.status.>", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, n.Publish(context.Background(), model.StatusEvent{
		OrderID: 7, UserID: 9, From: model.OrderStatusQueued, To: model.OrderStatusBuildStarted, At: at,
	}))
	require.NoError(t, n.Publish(context.Background(), model.StatusEvent{
		OrderID: 7, UserID: 9, From: model.OrderStatusFailedNotified, Removed: true, At: at,
	}))

	got := receive(t, msgs)
	assert.Equal(t, "orders.status.build_started", got.Subject)
	var event model.StatusEvent
	require.NoError(t, json.Unmarshal(got.Data, &event))
	assert.Equal(t, int64(7), event.OrderID)
	assert.Equal(t, model.OrderStatusQueued, event.From)
	assert.True(t, event.At.Equal(at))

	got = receive(t, msgs)
	assert.Equal(t, "orders.status.removed", got.Subject)
}

func receive(t *testing.T, msgs <-chan *nats.Msg) *nats.Msg {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("expected status event")
		return nil
	}
}

func TestSubjectWithoutPrefix(t *testing.T) {
	n := NewNATSNotifier(nil, "", slog.New(slog.DiscardHandler))
	assert.Equal(t, "queued", n.Subject(model.StatusEvent{To: model.OrderStatusQueued}))
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	n := NewNATSNotifier(nil, "x", slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Publish(ctx, model.StatusEvent{}), context.Canceled)
}

func TestNewNotifierWithoutURL(t *testing.T) {
	n, err := newNotifier(notifierParams{
		Lifecycle: &testhelpers.LifecycleRecorder{},
		Config:    &config.Config{},
		Logger:    slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, n)
	assert.NoError(t, n.Publish(context.Background(), model.StatusEvent{}))
}

func TestNewNotifierRegistersClose(t *testing.T) {
	ns := startNATS(t)
	recorder := &testhelpers.LifecycleRecorder{}
	n, err := newNotifier(notifierParams{
		Lifecycle: recorder,
		Config:    &config.Config{NATSURL: ns.ClientURL(), NATSSubjectPrefix: "orders"},
		Logger:    slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	assert.IsType(t, &NATSNotifier{}, n)
	require.Len(t, recorder.Hooks, 1)
	assert.NoError(t, recorder.Hooks[0].OnStop(context.Background()))
}
