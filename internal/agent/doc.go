// Package agent manages support agent presence and capacity.
//
// # Overview
//
// The agent package is the authority on who can take a conversation right
// now. It tracks presence (online, away, busy, offline), concurrent load
// against each agent's capacity, and heartbeat freshness. Durable identity
// (name, department, capacity) comes from a Directory; everything else here
// is runtime state that resets on restart.
//
// # Pool
//
// The Pool holds one record per known agent:
//
//	pool := agent.NewPool(directory, logger)
//
// Key operations:
//
//   - SetStatus(ctx, id, status): Presence changes, idempotent
//   - FindCandidate(department): Best assignment target or nil
//   - Reserve(id) / Release(id): Capacity accounting around assignments
//   - MarkStale(age): Heartbeat sweep, flips silent agents offline
//
// Candidate selection prefers agents in the conversation's department, then
// most spare capacity, then least recent activity. Only online agents are
// eligible for automatic assignment; away and busy agents can still be
// targeted by manual joins and transfers, which is why Reserve only refuses
// offline agents.
//
// # Invariants
//
// Load never exceeds capacity and never drops below zero: Reserve and
// Release validate before applying and reject violations with an error
// instead of clamping. The pool never mutates conversations; cascades such
// as "agent went offline, re-queue their conversations" are coordinated by
// the chat service, which owns the wiring between pool, registry, and queue.
package agent
