package pg

import (
	"context"
	"time"

	"surveyhub.org/internal/auth"
)

type tokenRepo struct{ q queryer }

func (r tokenRepo) Create(ctx context.Context, tok *auth.RefreshToken) error {
	err := r.q.QueryRowContext(ctx, `
		insert into refresh_tokens (user_id, token, expires_at, revoked)
		values ($1, $2, $3, $4)
		returning created_at
	`, tok.UserID, tok.Token, tok.ExpiresAt, tok.Revoked).Scan(&tok.CreatedAt)
	if err != nil {
		return constraintError(err, "REFRESH_TOKEN_CREATE")
	}
	return nil
}

func (r tokenRepo) Find(ctx context.Context, token string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := r.q.QueryRowContext(ctx, `
		select token, user_id, expires_at, revoked, created_at
		from refresh_tokens
		where token = $1
	`, token).Scan(&tok.Token, &tok.UserID, &tok.ExpiresAt, &tok.Revoked, &tok.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &tok, nil
}

func (r tokenRepo) MarkRevoked(ctx context.Context, token string) error {
	_, err := r.q.ExecContext(ctx, `update refresh_tokens set revoked = true where token = $1`, token)
	return err
}

func (r tokenRepo) MarkRevokedByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		update refresh_tokens set revoked = true
		where user_id = $1 and not revoked
	`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r tokenRepo) DeleteInert(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		delete from refresh_tokens
		where revoked or expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
