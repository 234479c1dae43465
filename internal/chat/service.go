// ABOUTME: Service is the operation facade over routing state; every client call lands here
// ABOUTME: Validates fully before mutating and maps internal errors onto the public taxonomy

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbiterp/livedesk/internal/agent"
	"github.com/orbiterp/livedesk/internal/notify"
	"github.com/orbiterp/livedesk/internal/queue"
	"github.com/orbiterp/livedesk/internal/registry"
	"github.com/orbiterp/livedesk/internal/router"
	"github.com/orbiterp/livedesk/internal/store"
	"github.com/orbiterp/livedesk/internal/typing"
)

// Public error taxonomy. Callers branch on these three; everything richer
// is wrapped detail. Transport and persistence failures never surface here,
// they are logged soft failures.
var (
	// ErrNotFound means the conversation or agent is unknown.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the requested transition is not legal from the
	// conversation's current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict means a capacity or assignment constraint was violated.
	ErrConflict = errors.New("conflict")
)

const (
	// persistTimeout bounds detached best-effort store writes.
	persistTimeout = 5 * time.Second
	// recentMessageWindow is how much backlog JoinConversation hands the
	// joining agent.
	recentMessageWindow = 50
	// DefaultDepartment receives conversations that name no department.
	DefaultDepartment = "general"
)

// Deps collects the collaborators the service routes between.
type Deps struct {
	Registry *registry.Registry
	Pool     *agent.Pool
	Queue    *queue.Queue
	Router   *router.Router
	Typing   *typing.Tracker
	Fanout   *notify.Fanout
	Store    store.Store
	Logger   *slog.Logger
}

// Service exposes the chat operations. All live state lives in the
// registry, pool, and queue; the store trails them and serves reads.
type Service struct {
	registry *registry.Registry
	pool     *agent.Pool
	queue    *queue.Queue
	router   *router.Router
	typing   *typing.Tracker
	fanout   *notify.Fanout
	store    store.Store
	logger   *slog.Logger
}

// New wires the service. Logger may be nil.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: d.Registry,
		pool:     d.Pool,
		queue:    d.Queue,
		router:   d.Router,
		typing:   d.Typing,
		fanout:   d.Fanout,
		store:    d.Store,
		logger:   logger.With("component", "chat"),
	}
}

// mapErr folds internal sentinels into the public taxonomy, keeping the
// original error in the chain for logs.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, agent.ErrAgentNotFound),
		errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, registry.ErrInvalidState):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	case errors.Is(err, registry.ErrNotOwner),
		errors.Is(err, registry.ErrAlreadyExists),
		errors.Is(err, agent.ErrAtCapacity),
		errors.Is(err, agent.ErrAgentOffline):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// persistConversation writes the conversation on a detached bounded
// context. In-memory state stays authoritative; a failed write is a logged
// soft failure.
func (s *Service) persistConversation(conv store.Conversation) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.UpsertConversation(ctx, &conv); err != nil {
		s.logger.Error("failed to persist conversation",
			"conversation_id", conv.ID,
			"error", err)
	}
}

// persistCurrent persists the registry's current view of the conversation.
func (s *Service) persistCurrent(convID string) {
	if conv, err := s.registry.Get(convID); err == nil {
		s.persistConversation(conv)
	}
}

// saveMessage writes a message on a detached bounded context, best-effort.
func (s *Service) saveMessage(msg *store.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.logger.Error("failed to save message",
			"conversation_id", msg.ConversationID,
			"message_id", msg.ID,
			"error", err)
	}
}

// recordMessage runs the shared message path: validate against the
// registry, persist best-effort, announce. The registry check doubles as
// the counter update (message count, unread, activity clock).
func (s *Service) recordMessage(ctx context.Context, msg *store.Message) error {
	if err := s.registry.ApplyMessage(msg.ConversationID, msg.Sender); err != nil {
		return mapErr(err)
	}

	s.saveMessage(msg)
	s.persistCurrent(msg.ConversationID)

	s.fanout.Conversation(ctx, msg.ConversationID, notify.NewEvent(
		notify.EventMessageCreated, msg.ConversationID, notify.MessagePayload{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Sender:         string(msg.Sender),
			SenderID:       msg.SenderID,
			Type:           string(msg.Type),
			Body:           msg.Body,
		}))
	return nil
}

// agentName resolves a display name for system messages, falling back to
// the raw ID when the agent is not in the pool.
func (s *Service) agentName(agentID string) string {
	if snap, ok := s.pool.Get(agentID); ok && snap.Name != "" {
		return snap.Name
	}
	return agentID
}

func newMessageID() string {
	return uuid.New().String()
}
