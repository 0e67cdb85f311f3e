package auth

import (
	"context"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"surveyhub.org/internal/audit"
	"surveyhub.org/internal/obs"
)

// BootstrapInput describes a new tenant and its first administrator.
type BootstrapInput struct {
	OrganizationName string
	Subdomain        string
	AdminName        string
	AdminEmail       string
	AdminPassword    string
}

// BootstrapResult summarizes a provisioned tenant. It never carries the
// administrator's password.
type BootstrapResult struct {
	Organization *Organization
	Admin        *User
	Roles        []Role
}

// Bootstrapper provisions tenants.
type Bootstrapper struct {
	store  Store
	hasher PasswordHasher
	now    func() time.Time
	logger *zap.Logger
}

// BootstrapOption configures a Bootstrapper.
type BootstrapOption func(*Bootstrapper)

// WithBootstrapHasher overrides the default bcrypt hasher.
func WithBootstrapHasher(h PasswordHasher) BootstrapOption {
	return func(b *Bootstrapper) {
		if h != nil {
			b.hasher = h
		}
	}
}

// WithBootstrapClock overrides the time source.
func WithBootstrapClock(fn func() time.Time) BootstrapOption {
	return func(b *Bootstrapper) {
		if fn != nil {
			b.now = fn
		}
	}
}

// WithBootstrapLogger sets the logger.
func WithBootstrapLogger(l *zap.Logger) BootstrapOption {
	return func(b *Bootstrapper) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBootstrapper returns a Bootstrapper writing to store.
func NewBootstrapper(store Store, opts ...BootstrapOption) *Bootstrapper {
	b := &Bootstrapper{
		store:  store,
		hasher: NewBcryptHasher(0),
		now:    time.Now,
		logger: obs.Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bootstrap creates the organization, its three system roles with their
// fixed grants, the admin user and the admin's role assignment in a single
// transaction. Any failure leaves nothing behind.
func (b *Bootstrapper) Bootstrap(ctx context.Context, in BootstrapInput) (res *BootstrapResult, err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Bootstrapper.Bootstrap")
	defer func() {
		obs.EndSpan(span, err)
		obs.RecordBootstrap(err)
	}()

	in.OrganizationName = strings.TrimSpace(in.OrganizationName)
	in.Subdomain = strings.ToLower(strings.TrimSpace(in.Subdomain))
	in.AdminName = strings.TrimSpace(in.AdminName)
	in.AdminEmail = normalizeEmail(in.AdminEmail)
	if in.OrganizationName == "" || in.Subdomain == "" || in.AdminName == "" || in.AdminEmail == "" || in.AdminPassword == "" {
		return nil, validationf("all fields are required")
	}
	if err := validatePassword("admin password", in.AdminPassword); err != nil {
		return nil, err
	}
	hash, err := b.hasher.Hash(in.AdminPassword)
	if err != nil {
		return nil, err
	}

	err = b.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		org := &Organization{Name: in.OrganizationName, Subdomain: in.Subdomain}
		if err := tx.Organizations(ctx).Create(ctx, org); err != nil {
			return oops.Code("BOOTSTRAP_ORGANIZATION").With("subdomain", in.Subdomain).Wrap(err)
		}

		roles := tx.Roles(ctx)
		created := make([]Role, 0, len(BaselinePolicy))
		var adminRoleID string
		for _, sr := range BaselinePolicy {
			role := &Role{
				Name:           sr.Name,
				Description:    sr.Description,
				OrganizationID: org.ID,
				IsSystemRole:   true,
			}
			if err := roles.Create(ctx, role); err != nil {
				return oops.Code("BOOTSTRAP_ROLE").With("role", sr.Name).Wrap(err)
			}
			for _, perm := range sr.Permissions {
				if err := roles.Grant(ctx, role.ID, perm); err != nil {
					return oops.Code("BOOTSTRAP_GRANT").With("role", sr.Name).With("permission", perm).Wrap(err)
				}
			}
			if sr.Name == RoleAdmin {
				adminRoleID = role.ID
			}
			created = append(created, *role)
		}

		admin := &User{
			Email:          in.AdminEmail,
			PasswordHash:   hash,
			FullName:       in.AdminName,
			OrganizationID: org.ID,
			Active:         true,
		}
		if err := tx.Users(ctx).Create(ctx, admin); err != nil {
			return oops.Code("BOOTSTRAP_ADMIN").With("email", in.AdminEmail).Wrap(err)
		}
		if err := roles.Assign(ctx, UserRole{UserID: admin.ID, RoleID: adminRoleID, AssignedAt: b.now().UTC()}); err != nil {
			return oops.Code("BOOTSTRAP_ASSIGN").Wrap(err)
		}
		res = &BootstrapResult{Organization: org, Admin: admin, Roles: created}
		return nil
	})
	if err != nil {
		b.logger.Warn("organization bootstrap rolled back", zap.String("subdomain", in.Subdomain), zap.Error(err))
		return nil, err
	}

	b.logger.Info("organization bootstrapped",
		zap.String("organization_id", res.Organization.ID),
		zap.String("subdomain", res.Organization.Subdomain),
		zap.String("admin_id", res.Admin.ID))
	_ = audit.LogEvent(ctx, "tenant.bootstrap",
		zap.String("organization_id", res.Organization.ID),
		zap.String("admin_id", res.Admin.ID))
	return res, nil
}
