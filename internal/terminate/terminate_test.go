package terminate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubTerminator struct {
	err    error
	called chan context.Context
}

func (s *stubTerminator) Terminate(ctx context.Context) error {
	s.called <- ctx
	return s.err
}

func TestFireSurvivesCallerCancel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	stub := &stubTerminator{called: make(chan context.Context, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	Fire(ctx, stub, time.Second, zap.New(core))

	select {
	case callCtx := <-stub.called:
		require.NoError(t, callCtx.Err())
		_, hasDeadline := callCtx.Deadline()
		require.True(t, hasDeadline)
	case <-time.After(time.Second):
		t.Fatal("terminator not called")
	}
	require.Eventually(t, func() bool {
		return logs.FilterMessage("terminate request sent").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFireLogsFailure(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	stub := &stubTerminator{err: errors.New("boom"), called: make(chan context.Context, 1)}

	Fire(context.Background(), stub, 0, zap.New(core))
	<-stub.called
	require.Eventually(t, func() bool {
		return logs.FilterMessage("terminate request failed").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDisabled(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Disabled{}.Terminate(context.Background()), ErrNotConfigured)
}
