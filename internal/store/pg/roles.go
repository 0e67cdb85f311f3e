package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/samber/oops"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/ids"
)

type roleRepo struct{ q queryer }

func (r roleRepo) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	err := r.q.QueryRowContext(ctx, `
		insert into roles (id, name, description, organization_id, is_system_role)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, role.ID, role.Name, nullIfEmpty(role.Description), nullIfEmpty(role.OrganizationID), role.IsSystemRole,
	).Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return constraintError(err, "ROLE_EXISTS")
	}
	return nil
}

// FindByName looks up a role in organizationID; an empty organizationID
// addresses the system-wide scope.
func (r roleRepo) FindByName(ctx context.Context, organizationID, name string) (*auth.Role, error) {
	var (
		role        auth.Role
		description sql.NullString
		orgID       sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		select id, name, description, organization_id, is_system_role, created_at, updated_at
		from roles
		where name = $1 and coalesce(organization_id, '') = $2
	`, name, organizationID).Scan(&role.ID, &role.Name, &description, &orgID,
		&role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	role.Description = description.String
	role.OrganizationID = orgID.String
	return &role, nil
}

func (r roleRepo) Grant(ctx context.Context, roleID, permission string) error {
	res, err := r.q.ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		select $1, id from permissions where name = $2
	`, roleID, permission)
	if err != nil {
		return constraintError(err, "GRANT_FAILED")
	}
	if err := affectedOrNotFound(res); err != nil {
		return oops.Code("PERMISSION_UNKNOWN").With("permission", permission).Wrap(err)
	}
	return nil
}

func (r roleRepo) Assign(ctx context.Context, a auth.UserRole) error {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, assigned_at, assigned_by)
		values ($1, $2, $3, $4)
	`, a.UserID, a.RoleID, a.AssignedAt, nullIfEmpty(a.AssignedBy))
	if err != nil {
		return constraintError(err, "ASSIGNMENT_FAILED")
	}
	return nil
}

// Roles owned by another organization never count, even if assigned.
func (r roleRepo) NamesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		select distinct r.name
		from user_roles ur
		join users u on u.id = ur.user_id
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		  and (r.organization_id = u.organization_id or r.organization_id is null)
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

type permRepo struct{ q queryer }

func (r permRepo) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := r.q.QueryContext(ctx, `
		select id, name, coalesce(description, ''), coalesce(category, '')
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r permRepo) ForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		select distinct p.name
		from user_roles ur
		join users u on u.id = ur.user_id
		join roles r on r.id = ur.role_id
		join role_permissions rp on rp.role_id = r.id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
		  and (r.organization_id = u.organization_id or r.organization_id is null)
		order by p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}
