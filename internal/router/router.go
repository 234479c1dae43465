// ABOUTME: Assignment engine: matches waiting conversations to available agents
// ABOUTME: Synchronous TryAssign on arrival plus a periodic sweep over the whole queue

package router

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/orbiterp/livedesk/internal/agent"
	"github.com/orbiterp/livedesk/internal/notify"
	"github.com/orbiterp/livedesk/internal/queue"
	"github.com/orbiterp/livedesk/internal/registry"
	"github.com/orbiterp/livedesk/internal/store"
)

// persistTimeout bounds best-effort writes triggered by routing decisions.
// The write context is detached from the caller so an assignment that
// already happened in memory still gets its chance to reach the store.
const persistTimeout = 5 * time.Second

// Settings are the routing tunables that can be swapped at runtime by the
// config watcher. Read via an atomic pointer; a sweep in flight keeps the
// values it started with.
type Settings struct {
	// AverageHandleTime feeds the wait estimate.
	AverageHandleTime time.Duration
	// InactivityThreshold is how long a conversation may sit without
	// activity before the cleanup pass closes it.
	InactivityThreshold time.Duration
	// ClosedRetention is how long a closed conversation stays in the
	// registry before being purged.
	ClosedRetention time.Duration
}

// DefaultSettings returns the stock tunables.
func DefaultSettings() Settings {
	return Settings{
		AverageHandleTime:   5 * time.Minute,
		InactivityThreshold: 24 * time.Hour,
		ClosedRetention:     time.Hour,
	}
}

// normalize fills zero or negative fields from defaults so a partial config
// can never disable the cleanup pass or zero out estimates.
func (s Settings) normalize() Settings {
	def := DefaultSettings()
	if s.AverageHandleTime <= 0 {
		s.AverageHandleTime = def.AverageHandleTime
	}
	if s.InactivityThreshold <= 0 {
		s.InactivityThreshold = def.InactivityThreshold
	}
	if s.ClosedRetention <= 0 {
		s.ClosedRetention = def.ClosedRetention
	}
	return s
}

// Router owns the matching of waiting conversations to agents. All state it
// routes over lives in the pool, queue, and registry; the store only trails
// decisions best-effort.
type Router struct {
	pool     *agent.Pool
	queue    *queue.Queue
	registry *registry.Registry
	store    store.Store
	fanout   *notify.Fanout
	settings atomic.Pointer[Settings]
	logger   *slog.Logger
}

// New wires a router. Pass nil logger for default.
func New(pool *agent.Pool, q *queue.Queue, reg *registry.Registry, st store.Store, fanout *notify.Fanout, settings Settings, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		pool:     pool,
		queue:    q,
		registry: reg,
		store:    st,
		fanout:   fanout,
		logger:   logger.With("component", "router"),
	}
	s := settings.normalize()
	r.settings.Store(&s)
	return r
}

// Settings returns the current tunables.
func (r *Router) Settings() Settings {
	return *r.settings.Load()
}

// UpdateSettings swaps the tunables. Zero fields fall back to defaults.
func (r *Router) UpdateSettings(s Settings) {
	n := s.normalize()
	r.settings.Store(&n)
	r.logger.Info("routing settings updated",
		"average_handle_time", n.AverageHandleTime,
		"inactivity_threshold", n.InactivityThreshold,
		"closed_retention", n.ClosedRetention)
}

// TryAssign attempts to hand the waiting conversation to an agent right
// now. Returns false when no agent has spare capacity; that is the normal
// queue-and-wait outcome, not an error. Capacity is reserved before the
// registry commit and released again if the commit loses a race.
func (r *Router) TryAssign(ctx context.Context, conversationID string) bool {
	conv, err := r.registry.Get(conversationID)
	if err != nil {
		// Stale queue entry for a conversation the registry no longer
		// tracks; drop it so the sweep stops revisiting it.
		if r.queue.Remove(conversationID) {
			r.logger.Warn("dropped queue entry for unknown conversation",
				"conversation_id", conversationID)
		}
		return false
	}
	if conv.Status != store.StatusWaiting {
		r.queue.Remove(conversationID)
		return false
	}

	candidate := r.pool.FindCandidate(conv.Department)
	if candidate == nil {
		return false
	}

	if err := r.pool.Reserve(candidate.ID); err != nil {
		// Lost a race for the last slot; the sweep will try again.
		r.logger.Debug("candidate reservation failed",
			"agent_id", candidate.ID,
			"conversation_id", conversationID,
			"error", err)
		return false
	}

	if err := r.registry.Assign(conversationID, candidate.ID); err != nil {
		if relErr := r.pool.Release(candidate.ID); relErr != nil {
			r.logger.Error("failed to unwind reservation",
				"agent_id", candidate.ID, "error", relErr)
		}
		// The conversation moved out of waiting between Get and Assign
		// (closed, or another router instance won); its entry is stale.
		r.queue.Remove(conversationID)
		r.logger.Debug("assignment lost commit race",
			"conversation_id", conversationID,
			"agent_id", candidate.ID,
			"error", err)
		return false
	}

	r.queue.Remove(conversationID)

	assigned, err := r.registry.Get(conversationID)
	if err == nil {
		r.persist(assigned)
	}

	event := notify.NewEvent(notify.EventConversationAssigned, conversationID, notify.ConversationPayload{
		ConversationID: conversationID,
		Department:     conv.Department,
		Priority:       string(conv.Priority),
		Status:         string(store.StatusActive),
		AgentID:        candidate.ID,
	})
	r.fanout.Conversation(ctx, conversationID, event)
	r.fanout.Agent(ctx, candidate.ID, event)
	r.fanout.Conversation(ctx, conversationID, notify.NewEvent(
		notify.EventAgentJoined, conversationID, notify.ConversationPayload{
			ConversationID: conversationID,
			AgentID:        candidate.ID,
			Status:         string(store.StatusActive),
		}))

	return true
}

// Sweep walks the queue in priority order and assigns every conversation it
// can. Entries it cannot place stay exactly where they were. Per-entry
// failures never abort the pass; only context cancellation does.
func (r *Router) Sweep(ctx context.Context) int {
	if r.queue.Len() == 0 {
		return 0
	}
	if r.pool.OnlineCount() == 0 {
		r.logger.Debug("sweep skipped, no agents online", "queued", r.queue.Len())
		return 0
	}

	assigned := 0
	for _, entry := range r.queue.Ordered() {
		if ctx.Err() != nil {
			r.logger.Warn("sweep cancelled", "assigned", assigned)
			return assigned
		}
		if r.TryAssign(ctx, entry.ConversationID) {
			assigned++
		}
	}

	if assigned > 0 {
		r.logger.Info("sweep assigned conversations",
			"assigned", assigned,
			"remaining", r.queue.Len())
	}
	return assigned
}

// EstimateWait predicts how long a new arrival in the department will wait:
// queue depth divided by available agents (never below one, so an empty
// pool still yields a finite answer), rounded up, times the average handle
// time. An empty queue estimates zero.
func (r *Router) EstimateWait(department string) time.Duration {
	depth := r.queue.DepartmentLen(department)
	if depth == 0 {
		return 0
	}

	available := r.pool.AvailableInDepartment(department)
	if available < 1 {
		available = 1
	}

	rounds := (depth + available - 1) / available
	return time.Duration(rounds) * r.Settings().AverageHandleTime
}

// persist writes the conversation to the store on a detached bounded
// context. Failures are logged; in-memory state stays authoritative.
func (r *Router) persist(conv store.Conversation) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := r.store.UpsertConversation(ctx, &conv); err != nil {
		r.logger.Error("failed to persist conversation",
			"conversation_id", conv.ID,
			"error", err)
	}
}
