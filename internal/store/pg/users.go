package pg

import (
	"context"
	"database/sql"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/ids"
)

type orgRepo struct{ q queryer }

func (r orgRepo) Create(ctx context.Context, org *auth.Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	err := r.q.QueryRowContext(ctx, `
		insert into organizations (id, name, subdomain)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, org.ID, org.Name, org.Subdomain).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return constraintError(err, "ORGANIZATION_EXISTS")
	}
	return nil
}

func (r orgRepo) Find(ctx context.Context, id string) (*auth.Organization, error) {
	var org auth.Organization
	err := r.q.QueryRowContext(ctx, `
		select id, name, subdomain, created_at, updated_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Subdomain, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

type userRepo struct{ q queryer }

const userColumns = `id, email, password_hash, full_name, organization_id, is_active,
	external_access_token, external_refresh_token, external_token_expiry,
	created_at, updated_at`

func (r userRepo) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := r.q.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, full_name, organization_id, is_active,
			external_access_token, external_refresh_token, external_token_expiry)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.OrganizationID, u.Active,
		nullIfEmpty(u.ExternalAccess), nullIfEmpty(u.ExternalRefresh), nullTime(u.ExternalTokenExpAt),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return constraintError(err, "USER_EXISTS")
	}
	return nil
}

func (r userRepo) Find(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
}

func (r userRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := r.q.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now()
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r userRepo) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := r.q.ExecContext(ctx, `
		update users set is_active = $2, updated_at = now()
		where id = $1
	`, userID, active)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u                 auth.User
		access, refresh   sql.NullString
		externalExpiresAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.OrganizationID, &u.Active,
		&access, &refresh, &externalExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	u.ExternalAccess = access.String
	u.ExternalRefresh = refresh.String
	if externalExpiresAt.Valid {
		t := externalExpiresAt.Time
		u.ExternalTokenExpAt = &t
	}
	return &u, nil
}
