// Package channels connects chat transports to the message bus.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/session"
)

// Channel is the interface that all chat transports implement.
type Channel interface {
	// Name returns the channel identifier (e.g., "whatsapp").
	Name() string

	// Start connects to the platform and begins listening. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// Send delivers an outbound message through this channel.
	Send(msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is active.
	IsRunning() bool
}

// GroupLister is implemented by channels that can enumerate the group
// conversations the account belongs to.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]bus.Group, error)
}

// BaseChannel provides shared logic for all channel implementations.
type BaseChannel struct {
	ChannelName string
	Bus         *bus.MessageBus
	AllowFrom   []string
	Logger      *zap.Logger

	running atomic.Bool
}

// IsRunning returns whether the channel is active.
func (b *BaseChannel) IsRunning() bool { return b.running.Load() }

func (b *BaseChannel) setRunning(v bool) { b.running.Store(v) }

func (b *BaseChannel) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// IsAllowed checks if a sender may reach the agent. An empty allow list
// admits everyone; identities are compared without transport suffixes.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	candidates := []string{senderID}
	// Support pipe-separated sender IDs
	if strings.Contains(senderID, "|") {
		candidates = strings.Split(senderID, "|")
	}
	for _, c := range candidates {
		c = session.StripIdentity(c)
		if c == "" {
			continue
		}
		for _, allowed := range b.AllowFrom {
			if session.StripIdentity(allowed) == c {
				return true
			}
		}
	}
	return false
}

// HandleMessage checks permissions and publishes to the bus. Self-authored
// messages bypass the allow list.
func (b *BaseChannel) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	if !msg.FromSelf && !b.IsAllowed(msg.SenderID) {
		b.log().Debug("sender not allowed", zap.String("sender", msg.SenderID))
		return
	}
	msg.Channel = b.ChannelName
	if err := b.Bus.PublishInbound(ctx, msg); err != nil {
		b.log().Warn("inbound dropped", zap.String("id", msg.ID), zap.Error(err))
	}
}
