package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageBus(t *testing.T) {
	bus := NewMessageBus()
	assert.NotNil(t, bus)
	assert.Equal(t, 0, bus.InboundSize())
	assert.Equal(t, 0, bus.OutboundSize())
}

func TestMessageBus_PublishConsumeInbound(t *testing.T) {
	bus := NewMessageBus()
	msg := InboundMessage{Channel: "whatsapp", ID: "1", Content: "*غوكو*"}

	require.NoError(t, bus.PublishInbound(context.Background(), msg))
	assert.Equal(t, 1, bus.InboundSize())

	received := <-bus.Inbound
	assert.Equal(t, "*غوكو*", received.Content)
	assert.Equal(t, "whatsapp", received.Channel)
}

func TestMessageBus_PublishInboundFullHonoursContext(t *testing.T) {
	bus := NewMessageBus()
	for i := 0; i < defaultBuffer; i++ {
		require.NoError(t, bus.PublishInbound(context.Background(), InboundMessage{}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.PublishInbound(ctx, InboundMessage{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMessageBus_SubscribeAndDispatch(t *testing.T) {
	bus := NewMessageBus()

	var received []OutboundMessage
	var mu sync.Mutex

	bus.Subscribe("whatsapp", func(msg OutboundMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bus.DispatchOutbound(ctx)

	require.NoError(t, bus.PublishOutbound(ctx, OutboundMessage{Channel: "whatsapp", Content: "reply"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "reply", received[0].Content)
}

func TestMessageBus_SubscribeDoesNotReceiveOtherChannels(t *testing.T) {
	bus := NewMessageBus()

	var received []OutboundMessage
	var mu sync.Mutex

	bus.Subscribe("whatsapp", func(msg OutboundMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bus.DispatchOutbound(ctx)

	require.NoError(t, bus.PublishOutbound(ctx, OutboundMessage{Channel: "other", Content: "wrong"}))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 0)
}

func TestMessageBus_ConcurrentPublish(t *testing.T) {
	bus := NewMessageBus()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.PublishInbound(context.Background(), InboundMessage{Channel: "test", Content: "msg"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, bus.InboundSize())
}
