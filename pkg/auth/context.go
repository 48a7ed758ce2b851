package auth

import (
	"context"
)

type contextKey string

// ContextKeyTeamID is the context key for the authenticated team
const ContextKeyTeamID contextKey = "team_id"

// WithTeamID adds the team ID to the context
func WithTeamID(ctx context.Context, teamID int64) context.Context {
	return context.WithValue(ctx, ContextKeyTeamID, teamID)
}

// TeamIDFromContext retrieves the team ID from the context
func TeamIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ContextKeyTeamID).(int64)
	return id, ok
}
