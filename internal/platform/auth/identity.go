package auth

import (
	"context"

	"github.com/google/uuid"
)

// SubjectUUID maps the authenticated subject to a stable UUID. OIDC subjects
// that are already UUIDs are used as-is; anything else (opaque provider ids,
// the dev user) is hashed into the OID namespace so the mapping is
// deterministic across requests.
func SubjectUUID(ctx context.Context) uuid.UUID {
	sub := UserIDFromContext(ctx)
	if sub == "" {
		return uuid.Nil
	}
	if id, err := uuid.Parse(sub); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sub))
}

// HasRole reports whether the authenticated user carries the given role.
// Admin implicitly satisfies every role check.
func HasRole(ctx context.Context, role string) bool {
	for _, r := range RolesFromContext(ctx) {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}
