// Package authtest provides an in-memory auth.Store for service tests.
package authtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/ids"
)

// Operation names accepted by FailOn.
const (
	OpCreateOrganization = "organizations.create"
	OpCreateUser         = "users.create"
	OpUpdatePassword     = "users.update_password"
	OpCreateRole         = "roles.create"
	OpGrant              = "roles.grant"
	OpAssign             = "roles.assign"
	OpResolve            = "permissions.for_user"
	OpCreateToken        = "refresh_tokens.create"
	OpFindToken          = "refresh_tokens.find"
)

// MemStore is a transactional in-memory auth.Store. Transactions work on a
// copy of the committed state that replaces it on commit; while one is open,
// calls outside it block.
type MemStore struct {
	mu   sync.Mutex
	data *memData

	faultMu sync.Mutex
	faults  map[string]error
}

var _ auth.Store = (*MemStore)(nil)

// NewMemStore returns an empty store seeded with the permission catalog.
func NewMemStore() *MemStore {
	d := newMemData()
	for _, p := range auth.Catalog {
		p.ID = ids.New()
		d.perms[p.Name] = p
	}
	return &MemStore{data: d, faults: make(map[string]error)}
}

// FailOn makes every later call of op fail with err. A nil err clears it.
func (s *MemStore) FailOn(op string, err error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *MemStore) fault(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	return s.faults[op]
}

// Counts reports committed row counts per table.
type Counts struct {
	Organizations   int
	Users           int
	Roles           int
	RolePermissions int
	UserRoles       int
	RefreshTokens   int
}

// Counts returns the committed row counts.
func (s *MemStore) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Counts{
		Organizations: len(s.data.orgs),
		Users:         len(s.data.users),
		Roles:         len(s.data.roles),
		RefreshTokens: len(s.data.tokens),
	}
	for _, g := range s.data.grants {
		c.RolePermissions += len(g)
	}
	for _, a := range s.data.assignments {
		c.UserRoles += len(a)
	}
	return c
}

func (s *MemStore) root() *view { return &view{store: s} }

func (s *MemStore) Organizations(context.Context) auth.OrganizationStore { return s.root() }
func (s *MemStore) Users(context.Context) auth.UserStore                 { return userRepo{s.root()} }
func (s *MemStore) Roles(context.Context) auth.RoleStore                 { return roleRepo{s.root()} }
func (s *MemStore) Permissions(context.Context) auth.PermissionStore     { return permRepo{s.root()} }
func (s *MemStore) RefreshTokens(context.Context) auth.RefreshTokenStore { return tokenRepo{s.root()} }

// WithinTx runs fn against a private copy of the state and commits it when fn
// succeeds.
func (s *MemStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &view{store: s, tx: s.data.clone()}
	if err := fn(ctx, tx); err != nil {
		return auth.TransactionError(err)
	}
	s.data = tx.tx
	return nil
}

// view routes repository calls either to the committed state or to an open
// transaction's copy.
type view struct {
	store *MemStore
	tx    *memData
}

func (v *view) do(op string, fn func(d *memData) error) error {
	if op != "" {
		if err := v.store.fault(op); err != nil {
			return err
		}
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data)
}

func (v *view) Organizations(context.Context) auth.OrganizationStore { return v }
func (v *view) Users(context.Context) auth.UserStore                 { return userRepo{v} }
func (v *view) Roles(context.Context) auth.RoleStore                 { return roleRepo{v} }
func (v *view) Permissions(context.Context) auth.PermissionStore     { return permRepo{v} }
func (v *view) RefreshTokens(context.Context) auth.RefreshTokenStore { return tokenRepo{v} }

func (v *view) WithinTx(ctx context.Context, fn func(ctx context.Context, tx auth.Store) error) error {
	if v.tx != nil {
		return fn(ctx, v)
	}
	return v.store.WithinTx(ctx, fn)
}

// Organizations.

func (v *view) Create(_ context.Context, org *auth.Organization) error {
	return v.do(OpCreateOrganization, func(d *memData) error {
		for _, o := range d.orgs {
			if o.Subdomain == org.Subdomain {
				return oops.Code("ORGANIZATION_EXISTS").With("subdomain", org.Subdomain).Wrap(auth.ErrConflict)
			}
		}
		if org.ID == "" {
			org.ID = ids.New()
		}
		now := time.Now().UTC()
		org.CreatedAt, org.UpdatedAt = now, now
		d.orgs[org.ID] = *org
		return nil
	})
}

func (v *view) Find(_ context.Context, id string) (*auth.Organization, error) {
	var out *auth.Organization
	err := v.do("", func(d *memData) error {
		o, ok := d.orgs[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = &o
		return nil
	})
	return out, err
}

type userRepo struct{ v *view }

func (r userRepo) Create(_ context.Context, u *auth.User) error {
	return r.v.do(OpCreateUser, func(d *memData) error {
		if _, ok := d.orgs[u.OrganizationID]; !ok {
			return oops.Code("ORGANIZATION_MISSING").With("organization_id", u.OrganizationID).Wrap(auth.ErrNotFound)
		}
		for _, existing := range d.users {
			if existing.Email == u.Email {
				return oops.Code("USER_EXISTS").With("email", u.Email).Wrap(auth.ErrConflict)
			}
		}
		if u.ID == "" {
			u.ID = ids.New()
		}
		now := time.Now().UTC()
		u.CreatedAt, u.UpdatedAt = now, now
		d.users[u.ID] = *u
		return nil
	})
}

func (r userRepo) Find(_ context.Context, id string) (*auth.User, error) {
	var out *auth.User
	err := r.v.do("", func(d *memData) error {
		u, ok := d.users[id]
		if !ok {
			return auth.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	var out *auth.User
	err := r.v.do("", func(d *memData) error {
		for _, u := range d.users {
			if u.Email == email {
				u := u
				out = &u
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

func (r userRepo) UpdatePassword(_ context.Context, userID, hash string) error {
	return r.v.do(OpUpdatePassword, func(d *memData) error {
		u, ok := d.users[userID]
		if !ok {
			return auth.ErrNotFound
		}
		u.PasswordHash = hash
		u.UpdatedAt = time.Now().UTC()
		d.users[userID] = u
		return nil
	})
}

func (r userRepo) SetActive(_ context.Context, userID string, active bool) error {
	return r.v.do("", func(d *memData) error {
		u, ok := d.users[userID]
		if !ok {
			return auth.ErrNotFound
		}
		u.Active = active
		u.UpdatedAt = time.Now().UTC()
		d.users[userID] = u
		return nil
	})
}

type roleRepo struct{ v *view }

func (r roleRepo) Create(_ context.Context, role *auth.Role) error {
	return r.v.do(OpCreateRole, func(d *memData) error {
		if role.OrganizationID != "" {
			if _, ok := d.orgs[role.OrganizationID]; !ok {
				return auth.ErrNotFound
			}
		}
		for _, existing := range d.roles {
			if existing.Name == role.Name && existing.OrganizationID == role.OrganizationID {
				return oops.Code("ROLE_EXISTS").With("role", role.Name).Wrap(auth.ErrConflict)
			}
		}
		if role.ID == "" {
			role.ID = ids.New()
		}
		now := time.Now().UTC()
		role.CreatedAt, role.UpdatedAt = now, now
		d.roles[role.ID] = *role
		return nil
	})
}

func (r roleRepo) FindByName(_ context.Context, organizationID, name string) (*auth.Role, error) {
	var out *auth.Role
	err := r.v.do("", func(d *memData) error {
		for _, role := range d.roles {
			if role.Name == name && role.OrganizationID == organizationID {
				role := role
				out = &role
				return nil
			}
		}
		return auth.ErrNotFound
	})
	return out, err
}

func (r roleRepo) Grant(_ context.Context, roleID, permission string) error {
	return r.v.do(OpGrant, func(d *memData) error {
		if _, ok := d.roles[roleID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := d.perms[permission]; !ok {
			return oops.Code("PERMISSION_UNKNOWN").With("permission", permission).Wrap(auth.ErrNotFound)
		}
		g := d.grants[roleID]
		if g == nil {
			g = make(map[string]struct{})
			d.grants[roleID] = g
		}
		if _, ok := g[permission]; ok {
			return auth.ErrConflict
		}
		g[permission] = struct{}{}
		return nil
	})
}

func (r roleRepo) Assign(_ context.Context, a auth.UserRole) error {
	return r.v.do(OpAssign, func(d *memData) error {
		if _, ok := d.users[a.UserID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := d.roles[a.RoleID]; !ok {
			return auth.ErrNotFound
		}
		m := d.assignments[a.UserID]
		if m == nil {
			m = make(map[string]auth.UserRole)
			d.assignments[a.UserID] = m
		}
		if _, ok := m[a.RoleID]; ok {
			return auth.ErrConflict
		}
		if a.AssignedAt.IsZero() {
			a.AssignedAt = time.Now().UTC()
		}
		m[a.RoleID] = a
		return nil
	})
}

func (r roleRepo) NamesForUser(_ context.Context, userID string) ([]string, error) {
	var out []string
	err := r.v.do("", func(d *memData) error {
		set := map[string]struct{}{}
		for _, role := range d.visibleRoles(userID) {
			set[role.Name] = struct{}{}
		}
		out = sortedKeys(set)
		return nil
	})
	return out, err
}

type permRepo struct{ v *view }

func (r permRepo) List(_ context.Context) ([]auth.Permission, error) {
	var out []auth.Permission
	err := r.v.do("", func(d *memData) error {
		for _, p := range d.perms {
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (r permRepo) ForUser(_ context.Context, userID string) ([]string, error) {
	var out []string
	err := r.v.do(OpResolve, func(d *memData) error {
		set := map[string]struct{}{}
		for _, role := range d.visibleRoles(userID) {
			for name := range d.grants[role.ID] {
				set[name] = struct{}{}
			}
		}
		out = sortedKeys(set)
		return nil
	})
	return out, err
}

type tokenRepo struct{ v *view }

func (r tokenRepo) Create(_ context.Context, tok *auth.RefreshToken) error {
	return r.v.do(OpCreateToken, func(d *memData) error {
		if _, ok := d.users[tok.UserID]; !ok {
			return auth.ErrNotFound
		}
		if _, ok := d.tokens[tok.Token]; ok {
			return auth.ErrConflict
		}
		if tok.CreatedAt.IsZero() {
			tok.CreatedAt = time.Now().UTC()
		}
		d.tokens[tok.Token] = *tok
		return nil
	})
}

func (r tokenRepo) Find(_ context.Context, token string) (*auth.RefreshToken, error) {
	var out *auth.RefreshToken
	err := r.v.do(OpFindToken, func(d *memData) error {
		t, ok := d.tokens[token]
		if !ok {
			return auth.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r tokenRepo) MarkRevoked(_ context.Context, token string) error {
	return r.v.do("", func(d *memData) error {
		if t, ok := d.tokens[token]; ok {
			t.Revoked = true
			d.tokens[token] = t
		}
		return nil
	})
}

func (r tokenRepo) MarkRevokedByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	err := r.v.do("", func(d *memData) error {
		for k, t := range d.tokens {
			if t.UserID == userID && !t.Revoked {
				t.Revoked = true
				d.tokens[k] = t
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r tokenRepo) DeleteInert(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.v.do("", func(d *memData) error {
		for k, t := range d.tokens {
			if !t.ValidAt(now) {
				delete(d.tokens, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

type memData struct {
	orgs        map[string]auth.Organization
	users       map[string]auth.User
	roles       map[string]auth.Role
	perms       map[string]auth.Permission
	grants      map[string]map[string]struct{}
	assignments map[string]map[string]auth.UserRole
	tokens      map[string]auth.RefreshToken
}

func newMemData() *memData {
	return &memData{
		orgs:        map[string]auth.Organization{},
		users:       map[string]auth.User{},
		roles:       map[string]auth.Role{},
		perms:       map[string]auth.Permission{},
		grants:      map[string]map[string]struct{}{},
		assignments: map[string]map[string]auth.UserRole{},
		tokens:      map[string]auth.RefreshToken{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.orgs {
		c.orgs[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.roles {
		c.roles[k] = v
	}
	for k, v := range d.perms {
		c.perms[k] = v
	}
	for k, g := range d.grants {
		cg := make(map[string]struct{}, len(g))
		for p := range g {
			cg[p] = struct{}{}
		}
		c.grants[k] = cg
	}
	for k, a := range d.assignments {
		ca := make(map[string]auth.UserRole, len(a))
		for r, ur := range a {
			ca[r] = ur
		}
		c.assignments[k] = ca
	}
	for k, v := range d.tokens {
		c.tokens[k] = v
	}
	return c
}

// visibleRoles returns the user's assigned roles that belong to the user's
// organization or are system-wide.
func (d *memData) visibleRoles(userID string) []auth.Role {
	u, ok := d.users[userID]
	if !ok {
		return nil
	}
	var out []auth.Role
	for roleID := range d.assignments[userID] {
		role, ok := d.roles[roleID]
		if !ok {
			continue
		}
		if role.OrganizationID == "" || role.OrganizationID == u.OrganizationID {
			out = append(out, role)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
