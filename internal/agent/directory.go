// ABOUTME: Agent directory implementations resolving agent identity and capacity.
// ABOUTME: Static config-seeded directory plus a store-backed one.

package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/orbiterp/livedesk/internal/store"
)

// Directory yields agent identity, department, and capacity metadata. The
// pool consults it when an agent first appears.
type Directory interface {
	Resolve(ctx context.Context, agentID string) (*store.AgentProfile, error)
	List(ctx context.Context) ([]*store.AgentProfile, error)
}

// StaticDirectory serves profiles from a fixed in-memory set, typically
// seeded from the config file.
type StaticDirectory struct {
	profiles map[string]store.AgentProfile
}

// NewStaticDirectory builds a directory from the given profiles.
func NewStaticDirectory(profiles []store.AgentProfile) *StaticDirectory {
	d := &StaticDirectory{profiles: make(map[string]store.AgentProfile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

// Resolve returns the profile for an agent ID.
func (d *StaticDirectory) Resolve(ctx context.Context, agentID string) (*store.AgentProfile, error) {
	p, ok := d.profiles[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := p
	return &cp, nil
}

// List returns all profiles sorted by ID.
func (d *StaticDirectory) List(ctx context.Context) ([]*store.AgentProfile, error) {
	profiles := make([]*store.AgentProfile, 0, len(d.profiles))
	for _, p := range d.profiles {
		cp := p
		profiles = append(profiles, &cp)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}

// StoreDirectory resolves agents from the persistent agents table.
type StoreDirectory struct {
	store store.Store
}

// NewStoreDirectory creates a directory backed by the store.
func NewStoreDirectory(s store.Store) *StoreDirectory {
	return &StoreDirectory{store: s}
}

// Resolve looks up an agent profile, mapping a missing row to ErrAgentNotFound.
func (d *StoreDirectory) Resolve(ctx context.Context, agentID string) (*store.AgentProfile, error) {
	p, err := d.store.GetAgent(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving agent %s: %w", agentID, err)
	}
	return p, nil
}

// List returns every agent profile in the store.
func (d *StoreDirectory) List(ctx context.Context) ([]*store.AgentProfile, error) {
	return d.store.ListAgents(ctx)
}

var _ Directory = (*StaticDirectory)(nil)
var _ Directory = (*StoreDirectory)(nil)
