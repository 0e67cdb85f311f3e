package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Organizations(ctx context.Context) OrganizationStore
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
	RefreshTokens(ctx context.Context) RefreshTokenStore

	// WithinTx runs fn inside one transaction whose repositories are exposed
	// through tx. The transaction commits when fn returns nil and rolls back
	// otherwise; the connection is released on every path. Errors from the
	// taxonomy are returned unchanged, anything else is reported as
	// ErrTransaction. Calling WithinTx on tx joins the running transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// OrganizationStore manages organizations.
type OrganizationStore interface {
	// Create inserts org, filling ID and timestamps. Duplicate subdomain: ErrConflict.
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
}

// UserStore manages users.
type UserStore interface {
	// Create inserts u, filling ID and timestamps. Duplicate email: ErrConflict;
	// unknown organization: ErrNotFound.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetActive(ctx context.Context, userID string, active bool) error
}

// RoleStore manages roles, their grants and user assignments.
type RoleStore interface {
	// Create inserts role. Duplicate (name, organization): ErrConflict.
	Create(ctx context.Context, role *Role) error
	FindByName(ctx context.Context, organizationID, name string) (*Role, error)
	// Grant links the catalog permission named permission to the role.
	// Unknown permission: ErrNotFound.
	Grant(ctx context.Context, roleID, permission string) error
	Assign(ctx context.Context, assignment UserRole) error
	// NamesForUser returns the distinct names of roles assigned to the user.
	NamesForUser(ctx context.Context, userID string) ([]string, error)
}

// PermissionStore reads the permission catalog and resolves grants.
type PermissionStore interface {
	List(ctx context.Context) ([]Permission, error)
	// ForUser returns the distinct permission names reachable through the
	// user's role assignments, restricted to roles of the user's own
	// organization or system-wide roles.
	ForUser(ctx context.Context, userID string) ([]string, error)
}

// RefreshTokenStore manages the refresh token log.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, token string) (*RefreshToken, error)
	// MarkRevoked revokes the matching row; no match is not an error.
	MarkRevoked(ctx context.Context, token string) error
	// MarkRevokedByUser revokes every non-revoked row of the user.
	MarkRevokedByUser(ctx context.Context, userID string) (int64, error)
	// DeleteInert removes rows that are revoked or expired at now.
	DeleteInert(ctx context.Context, now time.Time) (int64, error)
}
