package shared

import (
	"context"
	"strings"
)

// Role is the coarse permission level granted by the upstream identity provider.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole normalises a role header value. Unknown values fall back to RoleUser.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// Actor identifies who performs a mutation and from where.
type Actor struct {
	ID        int64
	Role      Role
	IPAddress string
}

// IsPrivileged reports whether the actor may perform admin-only operations.
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleAdmin
}

// IP returns the origin address or nil when unknown.
func (a Actor) IP() *string {
	if a.IPAddress == "" {
		return nil
	}
	ip := a.IPAddress
	return &ip
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
