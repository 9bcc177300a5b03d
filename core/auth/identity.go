package auth

import "context"

// Identity is the caller of an operation: either an authenticated user or
// anonymous. The zero value is anonymous.
type Identity struct {
	userID string
}

// Anonymous is the identity of a caller without a valid token.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated is the identity of a caller whose token carried userID.
// An empty userID yields Anonymous.
func Authenticated(userID string) Identity {
	return Identity{userID: userID}
}

// UserID returns the caller's user id and whether the caller is authenticated.
func (i Identity) UserID() (string, bool) {
	return i.userID, i.userID != ""
}

// IsAnonymous reports whether no user is attached.
func (i Identity) IsAnonymous() bool {
	return i.userID == ""
}

func (i Identity) String() string {
	if i.IsAnonymous() {
		return "anonymous"
	}
	return "user:" + i.userID
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored in ctx, or Anonymous.
func IdentityFrom(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey{}).(Identity); ok {
		return id
	}
	return Anonymous()
}
