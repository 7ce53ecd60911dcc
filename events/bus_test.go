package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncBusDispatchesInline(t *testing.T) {
	bus := NewBus(nil, 0, 0)
	var got []Event
	bus.Subscribe(OrderCompleted, func(_ context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})

	ev := New(OrderCompleted, 1, 2)
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.Len(t, got, 1)
	assert.Equal(t, ev.ID, got[0].ID)
	assert.Equal(t, uint(2), got[0].CounterpartyID)
}

func TestBusOnlyDeliversMatchingKind(t *testing.T) {
	bus := NewBus(nil, 0, 0)
	var calls int
	bus.Subscribe(UserLogin, func(context.Context, Event) error { calls++; return nil })
	require.NoError(t, bus.Publish(context.Background(), New(MessageSent, 1, 2)))
	assert.Zero(t, calls)
}

func TestHandlerErrorsDoNotStopOtherHandlers(t *testing.T) {
	bus := NewBus(nil, 0, 0)
	var second bool
	bus.Subscribe(ReviewPosted, func(context.Context, Event) error { return errors.New("boom") })
	bus.Subscribe(ReviewPosted, func(context.Context, Event) error { second = true; return nil })

	assert.NoError(t, bus.Publish(context.Background(), New(ReviewPosted, 1, 2)))
	assert.True(t, second)
}

func TestAsyncBusDrainsOnClose(t *testing.T) {
	bus := NewBus(nil, 3, 8)
	var handled atomic.Int32
	bus.Subscribe(WalletDeposit, func(context.Context, Event) error {
		time.Sleep(time.Millisecond)
		handled.Add(1)
		return nil
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(context.Background(), New(WalletDeposit, uint(i+1), 0)))
	}
	bus.Close()
	assert.Equal(t, int32(20), handled.Load())

	assert.ErrorIs(t, bus.Publish(context.Background(), New(WalletDeposit, 1, 0)), ErrBusClosed)
	bus.Close()
}

func TestAsyncPublishHonoursContext(t *testing.T) {
	bus := NewBus(nil, 1, 1)
	release := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	bus.Subscribe(UserLogin, func(context.Context, Event) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), New(UserLogin, 1, 0)))
	<-started
	require.NoError(t, bus.Publish(context.Background(), New(UserLogin, 1, 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, New(UserLogin, 1, 0)), context.DeadlineExceeded)

	close(release)
	bus.Close()
}

func TestKnownKinds(t *testing.T) {
	assert.True(t, OrderCompleted.Known())
	assert.True(t, UserRescan.Known())
	assert.False(t, AchievementUnlocked.Known())
	assert.False(t, Kind("order.refunded").Known())
}
