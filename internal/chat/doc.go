// Package chat exposes the live-support operations as one service facade.
//
// # Overview
//
// The chat package sits between transports (HTTP, message broker, future
// surfaces) and the routing internals, pairing each client operation with
// the right sequence of registry, pool, queue, and store calls.
//
// # Service
//
// The Service coordinates all operations:
//
//	svc := chat.New(chat.Deps{
//		Registry: reg, Pool: pool, Queue: q,
//		Router: rt, Typing: tracker, Fanout: fan, Store: st,
//	})
//
// Customer-side operations:
//
//   - InitiateChat(ctx, req): Open a conversation; queue or assign immediately
//   - SendMessage(ctx, req): Record a message, or arm the typing tracker
//   - CloseConversation(ctx, id, "", ""): Customer hangs up
//
// Agent-side operations:
//
//   - JoinConversation(ctx, id, agentID): Manually claim a waiting conversation
//   - LeaveConversation / TransferConversation / CloseConversation
//   - SetAgentStatus(ctx, agentID, status): Presence; offline releases all work
//   - AgentDashboard(ctx, agentID): Open conversations plus queue overview
//
// Read operations (ConversationHistory, MessageHistory, SearchConversations)
// are served from the persisted store so they never contend with routing.
//
// # Error taxonomy
//
// Operations fail with exactly one of three sentinels, checked via
// errors.Is:
//
//   - ErrNotFound: unknown conversation or agent
//   - ErrInvalidState: transition not legal from the current status
//   - ErrConflict: capacity exhausted or assignment ownership violated
//
// Store writes and notification pushes are deliberately excluded from the
// taxonomy: they are best-effort, logged on failure, and never roll back an
// in-memory transition.
//
// # Ordering guarantees
//
// Every mutating operation validates all preconditions before touching any
// state, and cross-component sequences reserve capacity first so that
// failures unwind to exactly the prior state. A rejected transfer leaves
// the conversation with its original agent; a rejected join leaves the
// queue untouched.
package chat
