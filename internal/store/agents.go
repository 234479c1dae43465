// ABOUTME: Agent profile persistence for the support agent directory
// ABOUTME: Upsert, get and list operations on the agents table

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertAgent inserts or updates an agent profile.
// created_at is kept from the first write.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *AgentProfile) error {
	query := `
		INSERT INTO agents (id, name, department, max_capacity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name         = excluded.name,
			department   = excluded.department,
			max_capacity = excluded.max_capacity,
			updated_at   = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	created := agent.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.Name,
		agent.Department,
		agent.MaxCapacity,
		created.UTC().Format(time.RFC3339),
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting agent: %w", err)
	}

	s.logger.Debug("upserted agent", "id", agent.ID, "department", agent.Department)
	return nil
}

// GetAgent retrieves an agent profile by ID.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*AgentProfile, error) {
	query := `
		SELECT id, name, department, max_capacity, created_at, updated_at
		FROM agents
		WHERE id = ?
	`

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns all agent profiles ordered by department then name.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*AgentProfile, error) {
	query := `
		SELECT id, name, department, max_capacity, created_at, updated_at
		FROM agents
		ORDER BY department, name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentProfile
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

func scanAgent(row rowScanner) (*AgentProfile, error) {
	var agent AgentProfile
	var createdAt, updatedAt string

	if err := row.Scan(&agent.ID, &agent.Name, &agent.Department, &agent.MaxCapacity, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	agent.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	agent.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &agent, nil
}
