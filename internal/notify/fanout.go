// ABOUTME: Fire-and-forget fan-out of events across all configured transports
// ABOUTME: Owns the agent-broadcast rate limit; delivery failures are logged, never returned

package notify

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// Transport pushes one event to one target audience. Implementations must
// not block indefinitely; the fanout treats any returned error as a soft
// failure.
type Transport interface {
	Deliver(ctx context.Context, target Target, event Event) error
	Close() error
}

// Fanout delivers events to every configured transport. Delivery is
// fire-and-forget: a failed or dropped notification never affects the
// routing state that triggered it.
type Fanout struct {
	transports []Transport
	limiter    *rate.Limiter // paces broadcast-target events
	logger     *slog.Logger
}

// DefaultBroadcastRate allows sustained queue churn without flooding every
// connected agent; bursts beyond this are dropped.
const (
	DefaultBroadcastRate  = 20 // events per second
	DefaultBroadcastBurst = 40
)

// NewFanout creates a fanout over the given transports. Pass nil logger for
// default. broadcastRate <= 0 selects the default rate.
func NewFanout(logger *slog.Logger, broadcastRate float64, broadcastBurst int, transports ...Transport) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	if broadcastRate <= 0 {
		broadcastRate = DefaultBroadcastRate
	}
	if broadcastBurst <= 0 {
		broadcastBurst = DefaultBroadcastBurst
	}
	return &Fanout{
		transports: transports,
		limiter:    rate.NewLimiter(rate.Limit(broadcastRate), broadcastBurst),
		logger:     logger.With("component", "fanout"),
	}
}

// Notify delivers an event to one target on every transport. Errors are
// logged and swallowed. Broadcast targets are rate-limited; events over the
// limit are dropped with a log line.
func (f *Fanout) Notify(ctx context.Context, target Target, event Event) {
	if target.Kind == TargetBroadcast && !f.limiter.Allow() {
		f.logger.Warn("broadcast rate limit exceeded, dropping event",
			"event_type", event.Meta.Type,
			"event_id", event.Meta.ID)
		return
	}

	for _, t := range f.transports {
		if err := t.Deliver(ctx, target, event); err != nil {
			f.logger.Error("notification delivery failed",
				"target", target.Key(),
				"event_type", event.Meta.Type,
				"event_id", event.Meta.ID,
				"error", err)
		}
	}
}

// Conversation emits an event scoped to one conversation's participants.
func (f *Fanout) Conversation(ctx context.Context, conversationID string, event Event) {
	f.Notify(ctx, ConversationTarget(conversationID), event)
}

// Agent emits an event to a single agent's stream.
func (f *Fanout) Agent(ctx context.Context, agentID string, event Event) {
	f.Notify(ctx, AgentTarget(agentID), event)
}

// Broadcast emits an event to every connected agent.
func (f *Fanout) Broadcast(ctx context.Context, event Event) {
	f.Notify(ctx, BroadcastTarget(), event)
}

// Close closes every transport, logging individual failures.
func (f *Fanout) Close() {
	for _, t := range f.transports {
		if err := t.Close(); err != nil {
			f.logger.Warn("transport close failed", "error", err)
		}
	}
}
