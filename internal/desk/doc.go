// Package desk wires the livedesk components into one running service.
//
// # Overview
//
// Desk constructs the store, agent pool, queue, registry, typing tracker,
// notification fanout, router, and chat facade from a single config, then
// owns their lifecycle: startup recovery, the periodic cron jobs, the health
// HTTP endpoints, optional config hot-reload, and graceful shutdown.
//
// Nothing in this package is a global. Every collaborator is constructed in
// New and torn down in Shutdown, so tests can run multiple desks side by
// side and the process exits cleanly.
//
// # Startup recovery
//
// The in-memory queue and registry do not survive a restart, so Run rebuilds
// them from the store before any traffic is served: every open conversation
// is re-registered, previously assigned ones are returned to waiting with
// their assignment cleared, and the queue is repopulated using the original
// arrival times so a restart does not shuffle anyone's place in line. Typing
// state is intentionally not recovered.
//
// # Periodic jobs
//
// Three cron entries drive the service: the router assignment sweep, the
// cleanup pass (close idle conversations, purge old closed ones), and the
// agent presence sweep (stale heartbeats go offline, which releases their
// conversations back to the queue). Each job runs under a recover +
// skip-if-still-running chain, so a slow or panicking pass can never stack
// up or take the scheduler down.
package desk
