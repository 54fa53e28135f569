package testutil

import (
	"net/http"

	id "mobirides/pkg/domain"
	"mobirides/pkg/requestcontext"
)

// WithUser adds the authenticated user ID and role to the request context,
// simulating what the auth middleware does.
func WithUser(req *http.Request, userID id.UserID, role id.Role) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}
