package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/batchwatch/internal/subscriber"
)

func TestSourcePublishReceive(t *testing.T) {
	t.Parallel()

	src := NewSource(4)
	sub, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayLatest)
	require.NoError(t, err)

	id, err := src.Publish(context.Background(), "chan", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "1", id)

	got := make(chan subscriber.Message, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = sub.Receive(ctx, func(_ context.Context, msg subscriber.Message) error {
			got <- msg
			return nil
		})
	}()

	select {
	case msg := <-got:
		require.Equal(t, "hello", string(msg.Data))
		require.False(t, msg.PublishTime.IsZero())
	case <-time.After(time.Second):
		t.Fatal("message not received")
	}
}

func TestSourceReplayLatestSkipsHistory(t *testing.T) {
	t.Parallel()

	src := NewSource(4)
	_, err := src.Publish(context.Background(), "chan", []byte("old"))
	require.NoError(t, err)

	latest, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayLatest)
	require.NoError(t, err)
	all, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayAll)
	require.NoError(t, err)
	src.Close()

	require.Equal(t, []string(nil), drain(t, latest))
	require.Equal(t, []string{"old"}, drain(t, all))
}

func TestSourceHistoryIsBoundedByCapacity(t *testing.T) {
	t.Parallel()

	src := NewSource(3)
	for _, body := range []string{"a", "b", "c", "d", "e"} {
		_, err := src.Publish(context.Background(), "chan", []byte(body))
		require.NoError(t, err)
	}
	require.Len(t, src.history["chan"], 3)

	all, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayAll)
	require.NoError(t, err)
	src.Close()
	require.Equal(t, []string{"c", "d", "e"}, drain(t, all))
}

func TestSourceChannelsAreIsolated(t *testing.T) {
	t.Parallel()

	src := NewSource(4)
	a, err := src.Subscribe(context.Background(), "a", subscriber.ReplayLatest)
	require.NoError(t, err)
	_, err = src.Publish(context.Background(), "b", []byte("for b"))
	require.NoError(t, err)
	_, err = src.Publish(context.Background(), "a", []byte("for a"))
	require.NoError(t, err)
	src.Close()

	require.Equal(t, []string{"for a"}, drain(t, a))
}

func TestSourceSubscribeFailure(t *testing.T) {
	t.Parallel()

	src := NewSource(1)
	boom := errors.New("handshake denied")
	src.FailSubscribe(boom)
	_, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayLatest)
	require.ErrorIs(t, err, boom)

	src.FailSubscribe(nil)
	src.Close()
	_, err = src.Subscribe(context.Background(), "chan", subscriber.ReplayLatest)
	require.ErrorIs(t, err, subscriber.ErrClosed)
	_, err = src.Publish(context.Background(), "chan", nil)
	require.ErrorIs(t, err, subscriber.ErrClosed)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	t.Parallel()

	src := NewSource(1)
	sub, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayLatest)
	require.NoError(t, err)
	require.NoError(t, sub.Close(context.Background()))

	_, err = src.Publish(context.Background(), "chan", []byte("dropped"))
	require.NoError(t, err)
	require.Equal(t, []string(nil), drain(t, sub))
}

func TestReceiveHonorsContext(t *testing.T) {
	t.Parallel()

	src := NewSource(1)
	sub, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayLatest)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sub.Receive(ctx, func(context.Context, subscriber.Message) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestPublishBlocksUntilContextDone(t *testing.T) {
	t.Parallel()

	src := NewSource(1)
	_, err := src.Subscribe(context.Background(), "chan", subscriber.ReplayLatest)
	require.NoError(t, err)
	_, err = src.Publish(context.Background(), "chan", []byte("fills buffer"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = src.Publish(ctx, "chan", []byte("blocked"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func drain(t *testing.T, sub subscriber.Subscription) []string {
	t.Helper()
	var out []string
	err := sub.Receive(context.Background(), func(_ context.Context, msg subscriber.Message) error {
		out = append(out, string(msg.Data))
		return nil
	})
	require.ErrorIs(t, err, subscriber.ErrClosed)
	return out
}
