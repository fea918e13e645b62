package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psantana5/brevets/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsHooksInReverseOrder(t *testing.T) {
	m := New(time.Second, logging.Discard())

	var order []string
	for _, name := range []string{"tracer", "metrics server", "api server"} {
		name := name
		m.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, m.Shutdown())
	assert.Equal(t, []string{"api server", "metrics server", "tracer"}, order)
}

func TestShutdownJoinsErrorsAndRunsOnce(t *testing.T) {
	m := New(time.Second, logging.Discard())
	errClose := errors.New("close failed")

	calls := 0
	m.Register("first", func(ctx context.Context) error {
		calls++
		return nil
	})
	m.Register("broken", CloseResource(closerFunc(func() error { return errClose })))

	err := m.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errClose)
	assert.Contains(t, err.Error(), "broken")

	assert.Equal(t, err, m.Shutdown())
	assert.Equal(t, 1, calls)
}

func TestWaitReturnsWhenContextDone(t *testing.T) {
	m := New(time.Second, logging.Discard())
	stopped := false
	m.Register("server", StopHTTPServer(shutdownFunc(func(ctx context.Context) error {
		stopped = true
		return nil
	})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Wait(ctx))
	assert.True(t, stopped)
}

func TestHooksSeeDeadline(t *testing.T) {
	m := New(50*time.Millisecond, logging.Discard())
	m.Register("slow", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, m.Shutdown(), context.DeadlineExceeded)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type shutdownFunc func(context.Context) error

func (f shutdownFunc) Shutdown(ctx context.Context) error { return f(ctx) }
