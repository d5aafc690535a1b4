package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestManager_ShutdownLIFO(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)

	var order []string
	m.RegisterNoErr("pool", func() { order = append(order, "pool") })
	m.Register("metrics", func(ctx context.Context) error {
		order = append(order, "metrics")
		return errors.New("boom")
	})
	m.RegisterNoErr("worker", func() { order = append(order, "worker") })

	errs := m.Shutdown()

	assert.Equal(t, []string{"worker", "metrics", "pool"}, order)
	assert.Len(t, errs, 1)
	assert.EqualError(t, errs["metrics"], "boom")
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestManager_RegisterCloser(t *testing.T) {
	m := NewManager(zap.NewNop(), time.Second)
	c := &closer{}
	m.RegisterCloser("redis", c)

	assert.Empty(t, m.Shutdown())
	assert.True(t, c.closed)
}

func TestManager_TimeoutSkipsRemaining(t *testing.T) {
	m := NewManager(zap.NewNop(), 50*time.Millisecond)

	ran := false
	m.RegisterNoErr("first-registered", func() { ran = true })
	m.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	errs := m.Shutdown()
	assert.ErrorIs(t, errs["slow"], context.DeadlineExceeded)
	assert.False(t, ran)
}
