package authz

import (
	"context"
	"sync"
)

type roleKey struct {
	orgID  string
	userID string
	role   string
}

type relationKey struct {
	teamID   string
	userID   string
	relation string
}

// MemoryClient is an in-process authorization client. It is idempotent and
// safe for concurrent use; transport-backed clients replace it in deployment.
type MemoryClient struct {
	mu        sync.Mutex
	roles     map[roleKey]struct{}
	relations map[relationKey]struct{}
}

// NewMemoryClient builds an empty in-process client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		roles:     make(map[roleKey]struct{}),
		relations: make(map[relationKey]struct{}),
	}
}

// AssignRole grants an organization-scoped role.
func (c *MemoryClient) AssignRole(ctx context.Context, orgID, userID, role string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roles[roleKey{orgID: orgID, userID: userID, role: role}] = struct{}{}
	return nil
}

// RevokeRole removes an organization-scoped role grant.
func (c *MemoryClient) RevokeRole(ctx context.Context, orgID, userID, role string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roles, roleKey{orgID: orgID, userID: userID, role: role})
	return nil
}

// AddRelation records a team-scoped relationship.
func (c *MemoryClient) AddRelation(ctx context.Context, teamID, userID, relation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relations[relationKey{teamID: teamID, userID: userID, relation: relation}] = struct{}{}
	return nil
}

// RemoveRelation removes a team-scoped relationship.
func (c *MemoryClient) RemoveRelation(ctx context.Context, teamID, userID, relation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.relations, relationKey{teamID: teamID, userID: userID, relation: relation})
	return nil
}

// Check reports whether the user holds the role in the organization.
func (c *MemoryClient) Check(ctx context.Context, orgID, userID, role string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.roles[roleKey{orgID: orgID, userID: userID, role: role}]
	return ok, nil
}

// HasRelation reports whether the team relation exists. It backs tests and
// relation-level lookups.
func (c *MemoryClient) HasRelation(ctx context.Context, teamID, userID, relation string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.relations[relationKey{teamID: teamID, userID: userID, relation: relation}]
	return ok, nil
}

var _ Client = (*MemoryClient)(nil)
