// ABOUTME: Package doc for notify: event envelope, in-process hub, AMQP transport, fanout
// ABOUTME: Documents targets, routing keys, and the fire-and-forget delivery contract

// Package notify fans conversation events out to their audiences.
//
// # Events and targets
//
// Every state change in the chat service produces an [Event]: a small
// envelope with identifying metadata and a typed payload. Events are
// addressed to a [Target], which names an audience rather than a socket:
//
//   - a conversation (customer plus any agents in that conversation)
//   - a single agent's personal stream
//   - all agents (queue churn, dashboards)
//   - a named topic for ad hoc streams
//
// Targets map one-to-one onto routing keys ("chat.conversation.<id>",
// "chat.agent.<id>", "chat.agents", "chat.topic.<name>"), so in-process
// subscribers and AMQP consumers address the same audiences the same way.
//
// # Delivery contract
//
// Delivery is fire-and-forget. [Fanout.Notify] never returns an error:
// transport failures are logged and swallowed, and a subscriber that cannot
// keep up has events dropped rather than blocking the publisher. Routing
// state is authoritative in memory; notifications describe it but never
// gate it.
//
// Broadcast-target events pass through a rate limiter so that queue churn
// cannot flood every connected agent. Conversation- and agent-scoped events
// are not limited.
package notify
