// Package actor identifies who is performing a request. Authentication is
// done upstream; the gateway forwards the verified user id and role.
package actor

import "context"

const (
	RoleAdmin  = "Admin"
	RoleBuyer  = "Buyer"
	RoleFarmer = "Farmer"
)

type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) Anonymous() bool { return a.ID == "" }

type ctxKey struct{}

func With(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func From(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok && !a.Anonymous()
}
