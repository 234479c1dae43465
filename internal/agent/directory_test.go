// ABOUTME: Tests for the static and store-backed agent directories
// ABOUTME: Verifies resolution, listing order, and not-found mapping

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbiterp/livedesk/internal/store"
)

func TestStaticDirectory_Resolve(t *testing.T) {
	d := testDirectory()

	p, err := d.Resolve(t.Context(), "agent-2")
	require.NoError(t, err)
	assert.Equal(t, "Alex", p.Name)
	assert.Equal(t, 3, p.MaxCapacity)

	_, err = d.Resolve(t.Context(), "nobody")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestStaticDirectory_ListSorted(t *testing.T) {
	d := testDirectory()

	profiles, err := d.List(t.Context())
	require.NoError(t, err)
	require.Len(t, profiles, 4)
	for i, want := range []string{"agent-1", "agent-2", "agent-3", "agent-4"} {
		assert.Equal(t, want, profiles[i].ID)
	}
}

func TestStoreDirectory_Resolve(t *testing.T) {
	ms := store.NewMockStore()
	require.NoError(t, ms.UpsertAgent(t.Context(), &store.AgentProfile{
		ID: "agent-9", Name: "Robin", Department: "sales", MaxCapacity: 5,
	}))

	d := NewStoreDirectory(ms)

	p, err := d.Resolve(t.Context(), "agent-9")
	require.NoError(t, err)
	assert.Equal(t, "Robin", p.Name)

	_, err = d.Resolve(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
