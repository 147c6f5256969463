package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/batchwatch/internal/dashboard"
	"github.com/JakeFAU/batchwatch/internal/progress"
)

func TestBrokerBroadcast(t *testing.T) {
	t.Parallel()

	b := NewBroker(4)
	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()
	require.Equal(t, 2, b.Clients())

	b.Broadcast(dashboard.View{ProcessID: "p1"})
	assert.Equal(t, "p1", (<-ch1).ProcessID)
	assert.Equal(t, "p1", (<-ch2).ProcessID)

	cancel1()
	cancel1()
	require.Equal(t, 1, b.Clients())
	_, ok := <-ch1
	require.False(t, ok)
}

func TestBrokerSlowClientKeepsLatest(t *testing.T) {
	t.Parallel()

	b := NewBroker(1)
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Broadcast(dashboard.View{LogMessage: "a"})
	b.Broadcast(dashboard.View{LogMessage: "b"})
	b.Broadcast(dashboard.View{LogMessage: "c"})

	select {
	case v := <-ch:
		require.Equal(t, "c", v.LogMessage)
	case <-time.After(time.Second):
		t.Fatal("no view delivered")
	}
}

func TestBrokerConsumeSkipsUnchanged(t *testing.T) {
	t.Parallel()

	b := NewBroker(4)
	ch, cancel := b.Subscribe()
	defer cancel()

	err := b.Consume(context.Background(), []progress.Update{
		{TS: time.Now(), Outcome: dashboard.OutcomeApplied, View: dashboard.View{LogMessage: "first"}},
		{TS: time.Now(), Outcome: dashboard.OutcomeApplied, View: dashboard.View{LogMessage: "second"}},
		{TS: time.Now(), Outcome: dashboard.OutcomeDiscarded, View: dashboard.View{LogMessage: "ignored"}},
	})
	require.NoError(t, err)
	require.Equal(t, "second", (<-ch).LogMessage)
	require.Empty(t, ch)

	require.NoError(t, b.Consume(context.Background(), []progress.Update{
		{TS: time.Now(), Outcome: dashboard.OutcomeRejected},
	}))
	require.Empty(t, ch)
}

func TestBrokerClose(t *testing.T) {
	t.Parallel()

	b := NewBroker(0)
	ch, cancel := b.Subscribe()
	require.NoError(t, b.Close(context.Background()))
	_, ok := <-ch
	require.False(t, ok)
	cancel()

	late, lateCancel := b.Subscribe()
	defer lateCancel()
	_, ok = <-late
	require.False(t, ok)
	require.Zero(t, b.Clients())
}
