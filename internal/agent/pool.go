// ABOUTME: Manages support agent presence, capacity, and candidate selection.
// ABOUTME: Central authority for who is online and how much load each agent holds.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orbiterp/livedesk/internal/store"
)

// ErrAgentNotFound indicates the specified agent is not known to the directory.
var ErrAgentNotFound = errors.New("agent not found")

// ErrAgentOffline indicates an operation that needs a live agent hit an offline one.
var ErrAgentOffline = errors.New("agent offline")

// ErrAtCapacity indicates the agent already holds its maximum concurrent conversations.
var ErrAtCapacity = errors.New("agent at capacity")

// ErrNoLoadHeld indicates a release was attempted on an agent with zero load.
var ErrNoLoadHeld = errors.New("agent holds no load")

// Status is an agent's presence state. Only online agents receive automatic
// assignments; away and busy agents may still join or accept transfers.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known presence states.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// DefaultMaxCapacity applies when a directory profile does not set one.
const DefaultMaxCapacity = 3

// Snapshot is a copy of an agent's pool state, safe to hold after the call.
type Snapshot struct {
	ID           string
	Name         string
	Department   string
	Status       Status
	Load         int
	MaxCapacity  int
	LastActivity time.Time
	LastSeen     time.Time
}

// Spare returns how many more conversations the agent can hold.
func (s *Snapshot) Spare() int {
	return s.MaxCapacity - s.Load
}

// state is the pool's mutable record for one agent.
type state struct {
	profile      store.AgentProfile
	status       Status
	load         int
	lastActivity time.Time
	lastSeen     time.Time
}

// Pool coordinates agent presence and load. All mutations validate first and
// apply under one write lock, so load can never exceed capacity or drop
// below zero.
type Pool struct {
	mu     sync.RWMutex
	agents map[string]*state
	dir    Directory
	logger *slog.Logger
}

// NewPool creates a pool backed by the given directory.
func NewPool(dir Directory, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		agents: make(map[string]*state),
		dir:    dir,
		logger: logger.With("component", "agentpool"),
	}
}

// Register ensures an agent is present in the pool, resolving its profile
// through the directory. New agents start offline. Returns the current
// snapshot.
func (p *Pool) Register(ctx context.Context, agentID string) (*Snapshot, error) {
	p.mu.RLock()
	if st, ok := p.agents[agentID]; ok {
		snap := st.snapshot()
		p.mu.RUnlock()
		return snap, nil
	}
	p.mu.RUnlock()

	profile, err := p.dir.Resolve(ctx, agentID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have registered while we resolved
	if st, ok := p.agents[agentID]; ok {
		return st.snapshot(), nil
	}

	st := newState(profile)
	p.agents[agentID] = st
	p.logger.Info("agent registered",
		"agent_id", agentID,
		"department", profile.Department,
		"max_capacity", st.profile.MaxCapacity,
		"total_agents", len(p.agents),
	)
	return st.snapshot(), nil
}

func newState(profile *store.AgentProfile) *state {
	st := &state{
		profile: *profile,
		status:  StatusOffline,
	}
	if st.profile.MaxCapacity <= 0 {
		st.profile.MaxCapacity = DefaultMaxCapacity
	}
	return st
}

// SetStatus updates an agent's presence. Setting the current status again is
// a no-op and reports changed=false. Unknown agents are resolved through the
// directory first.
func (p *Pool) SetStatus(ctx context.Context, agentID string, status Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("invalid status %q", status)
	}
	if _, err := p.Register(ctx, agentID); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.agents[agentID]
	if st.status == status {
		return false, nil
	}

	old := st.status
	st.status = status
	now := time.Now()
	st.lastSeen = now
	if status != StatusOffline {
		st.lastActivity = now
	}

	p.logger.Info("agent status changed",
		"agent_id", agentID,
		"from", old,
		"to", status,
		"load", st.load,
	)
	return true, nil
}

// Get returns a snapshot of an agent, if the pool knows it.
func (p *Pool) Get(agentID string) (*Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.agents[agentID]
	if !ok {
		return nil, false
	}
	return st.snapshot(), true
}

// Agents returns snapshots of every agent in the pool.
func (p *Pool) Agents() []*Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	agents := make([]*Snapshot, 0, len(p.agents))
	for _, st := range p.agents {
		agents = append(agents, st.snapshot())
	}
	return agents
}

// IsOnline checks whether an agent is currently online.
func (p *Pool) IsOnline(agentID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st, ok := p.agents[agentID]
	return ok && st.status == StatusOnline
}

// FindCandidate picks the best online agent with spare capacity for a
// department: most spare capacity first, ties broken by least recent
// activity, then by ID for determinism. Agents in the requested department
// are preferred; any online agent is the fallback. Returns nil when no one
// can take the conversation.
func (p *Pool) FindCandidate(department string) *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var bestDept, bestAny *state
	for _, st := range p.agents {
		if st.status != StatusOnline || st.load >= st.profile.MaxCapacity {
			continue
		}
		if st.profile.Department == department && preferable(st, bestDept) {
			bestDept = st
		}
		if preferable(st, bestAny) {
			bestAny = st
		}
	}

	if bestDept != nil {
		return bestDept.snapshot()
	}
	if bestAny != nil {
		return bestAny.snapshot()
	}
	return nil
}

// preferable reports whether candidate should replace current as the best
// assignment target. Must be called with the pool lock held.
func preferable(candidate, current *state) bool {
	if current == nil {
		return true
	}
	cSpare := candidate.profile.MaxCapacity - candidate.load
	bSpare := current.profile.MaxCapacity - current.load
	if cSpare != bSpare {
		return cSpare > bSpare
	}
	if !candidate.lastActivity.Equal(current.lastActivity) {
		return candidate.lastActivity.Before(current.lastActivity)
	}
	return candidate.profile.ID < current.profile.ID
}

// Reserve increments an agent's load ahead of an assignment. It refuses
// offline agents and agents already at capacity; the caller undoes the
// reservation with Release if the assignment fails downstream.
func (p *Pool) Reserve(agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if st.status == StatusOffline {
		return ErrAgentOffline
	}
	if st.load >= st.profile.MaxCapacity {
		return ErrAtCapacity
	}

	st.load++
	st.lastActivity = time.Now()
	p.logger.Debug("reserved capacity", "agent_id", agentID, "load", st.load, "max", st.profile.MaxCapacity)
	return nil
}

// Release decrements an agent's load. Releasing at zero load is a
// bookkeeping violation: it is logged and rejected, never applied.
func (p *Pool) Release(agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if st.load <= 0 {
		p.logger.Warn("release with no load held", "agent_id", agentID)
		return ErrNoLoadHeld
	}

	st.load--
	p.logger.Debug("released capacity", "agent_id", agentID, "load", st.load)
	return nil
}

// Heartbeat records that an agent's connection is alive.
func (p *Pool) Heartbeat(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.agents[agentID]; ok {
		st.lastSeen = time.Now()
	}
}

// Touch bumps an agent's activity time. Called on routing actions so the
// least-recently-active tie-break rotates assignments.
func (p *Pool) Touch(agentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.agents[agentID]; ok {
		st.lastActivity = time.Now()
		st.lastSeen = time.Now()
	}
}

// MarkStale flips agents whose last heartbeat is older than the cutoff to
// offline and returns their IDs. The caller is responsible for releasing
// the conversations those agents held.
func (p *Pool) MarkStale(olderThan time.Duration) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var stale []string
	for id, st := range p.agents {
		if st.status == StatusOffline {
			continue
		}
		if st.lastSeen.Before(cutoff) {
			st.status = StatusOffline
			stale = append(stale, id)
			p.logger.Warn("agent heartbeat stale, marking offline", "agent_id", id, "last_seen", st.lastSeen)
		}
	}
	return stale
}

// OnlineCount returns how many agents are currently online.
func (p *Pool) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, st := range p.agents {
		if st.status == StatusOnline {
			n++
		}
	}
	return n
}

// AvailableInDepartment counts online agents with spare capacity, preferring
// the department but falling back to the whole pool when the department has
// none. Feeds the wait estimate.
func (p *Pool) AvailableInDepartment(department string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	inDept, anywhere := 0, 0
	for _, st := range p.agents {
		if st.status != StatusOnline || st.load >= st.profile.MaxCapacity {
			continue
		}
		anywhere++
		if st.profile.Department == department {
			inDept++
		}
	}
	if inDept > 0 {
		return inDept
	}
	return anywhere
}

func (st *state) snapshot() *Snapshot {
	return &Snapshot{
		ID:           st.profile.ID,
		Name:         st.profile.Name,
		Department:   st.profile.Department,
		Status:       st.status,
		Load:         st.load,
		MaxCapacity:  st.profile.MaxCapacity,
		LastActivity: st.lastActivity,
		LastSeen:     st.lastSeen,
	}
}
