package auth

import (
	"context"
	"sort"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"surveyhub.org/internal/obs"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID         string
	Email          string
	OrganizationID string
	User           *User
}

// RequireSameOrganization rejects principals addressing another tenant.
func RequireSameOrganization(p Principal, organizationID string) error {
	if organizationID == "" || p.OrganizationID != organizationID {
		return oops.Code("AUTH_CROSS_TENANT").
			With("user_id", p.UserID).
			With("organization_id", organizationID).
			Wrap(ErrCrossTenant)
	}
	return nil
}

// PermissionSet is a user's effective permission names.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from names, dropping empty entries.
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Has reports whether name is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Any reports whether the set intersects required. An empty requirement is
// never satisfied.
func (s PermissionSet) Any(required ...string) bool {
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Names returns the sorted permission names.
func (s PermissionSet) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PermissionResolver computes effective permissions on demand. Nothing is
// cached between calls.
type PermissionResolver struct {
	store  Store
	logger *zap.Logger
}

// ResolverOption configures a PermissionResolver.
type ResolverOption func(*PermissionResolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(r *PermissionResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewPermissionResolver returns a resolver reading from store.
func NewPermissionResolver(store Store, opts ...ResolverOption) *PermissionResolver {
	r := &PermissionResolver{store: store, logger: obs.Logger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the distinct permissions reachable through the user's roles.
// A user without roles has an empty set.
func (r *PermissionResolver) Resolve(ctx context.Context, userID string) (PermissionSet, error) {
	names, err := r.store.Permissions(ctx).ForUser(ctx, userID)
	if err != nil {
		return nil, oops.Code("PERMISSIONS_RESOLVE_FAILED").With("user_id", userID).Wrap(err)
	}
	return NewPermissionSet(names...), nil
}

// Authorize grants when the user holds any one of required.
func (r *PermissionResolver) Authorize(ctx context.Context, userID string, required ...string) (bool, error) {
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Any(required...), nil
}

// Require is Authorize returning ErrForbidden on denial.
func (r *PermissionResolver) Require(ctx context.Context, userID string, required ...string) error {
	ok, err := r.Authorize(ctx, userID, required...)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Debug("permission denied", zap.String("user_id", userID), zap.Strings("required", required))
		return oops.Code("AUTH_FORBIDDEN").
			With("user_id", userID).
			With("required", required).
			Wrap(ErrForbidden)
	}
	return nil
}

