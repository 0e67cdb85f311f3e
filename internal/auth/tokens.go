package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.uber.org/zap"

	"surveyhub.org/internal/obs"
)

// Token kinds carried in the "kind" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

const (
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims represents the JWT payload of access and refresh tokens.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenConfig holds per-kind signing keys and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService issues, verifies, persists and revokes session tokens.
type TokenService struct {
	store      Store
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithTokenClock overrides the time source used for issuing and validation.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(l *zap.Logger) TokenOption {
	return func(s *TokenService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewTokenService constructs a TokenService. Zero TTLs fall back to 24h for
// access tokens and 7d for refresh tokens.
func NewTokenService(store Store, cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if store == nil {
		return nil, errors.New("auth: token store is required")
	}
	accessSecret := strings.TrimSpace(cfg.AccessSecret)
	refreshSecret := strings.TrimSpace(cfg.RefreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	svc := &TokenService{
		store:      store,
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
		logger:     obs.Logger(),
	}
	if cfg.AccessTTL > 0 {
		svc.accessTTL = cfg.AccessTTL
	}
	if cfg.RefreshTTL > 0 {
		svc.refreshTTL = cfg.RefreshTTL
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// IssueAccessToken signs an access token for the user.
func (s *TokenService) IssueAccessToken(userID, email string) (string, error) {
	return s.sign(Claims{UserID: userID, Email: email, Kind: KindAccess}, s.accessKey, s.accessTTL)
}

// IssueRefreshToken signs a refresh token for the user. The token is not
// persisted; call Persist to make it usable.
func (s *TokenService) IssueRefreshToken(userID string) (string, error) {
	return s.sign(Claims{UserID: userID, Kind: KindRefresh}, s.refreshKey, s.refreshTTL)
}

func (s *TokenService) sign(claims Claims, key []byte, ttl time.Duration) (string, error) {
	if strings.TrimSpace(claims.UserID) == "" {
		return "", validationf("user id is required")
	}
	now := s.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("kind", claims.Kind).Wrap(err)
	}
	return signed, nil
}

// VerifyAccessToken checks signature, expiry and kind of an access token.
func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.verify(token, s.accessKey, KindAccess)
}

// VerifyRefreshToken checks signature, expiry and kind of a refresh token. It
// does not consult the persisted log; see IsValid.
func (s *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return s.verify(token, s.refreshKey, KindRefresh)
}

func (s *TokenService) verify(token string, key []byte, kind string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, oops.Code("TOKEN_MALFORMED").With("kind", kind).Wrap(ErrTokenMalformed)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, oops.Code("TOKEN_EXPIRED").With("kind", kind).Wrap(ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, oops.Code("TOKEN_MALFORMED").With("kind", kind).Wrap(ErrTokenMalformed)
		default:
			return nil, oops.Code("TOKEN_INVALID").With("kind", kind).With("reason", err.Error()).Wrap(ErrTokenInvalid)
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Kind != kind || strings.TrimSpace(claims.UserID) == "" {
		return nil, oops.Code("TOKEN_INVALID").With("kind", kind).Wrap(ErrTokenInvalid)
	}
	return claims, nil
}

// Persist decodes the refresh token's expiry and appends it to the token log.
func (s *TokenService) Persist(ctx context.Context, userID, token string) error {
	claims, err := s.VerifyRefreshToken(token)
	if err != nil {
		return oops.Code("TOKEN_MALFORMED").
			With("user_id", userID).
			With("cause", err.Error()).
			Wrap(ErrTokenMalformed)
	}
	if claims.UserID != userID {
		return oops.Code("TOKEN_INVALID").
			With("user_id", userID).
			Errorf("%w: token subject does not match user", ErrTokenInvalid)
	}
	rec := &RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, rec); err != nil {
		return oops.Code("TOKEN_PERSIST_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// IsValid reports whether a persisted, unrevoked, unexpired row exists for
// token. A missing row yields false without error.
func (s *TokenService) IsValid(ctx context.Context, token string) (bool, error) {
	rec, err := s.store.RefreshTokens(ctx).Find(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("TOKEN_LOOKUP_FAILED").Wrap(err)
	}
	return rec.ValidAt(s.now()), nil
}

// Revoke marks the token revoked. Revoking an unknown or already revoked
// token succeeds.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if err := s.store.RefreshTokens(ctx).MarkRevoked(ctx, token); err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").Wrap(err)
	}
	return nil
}

// RevokeAll revokes every active refresh token of the user and returns how
// many rows changed.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, userID)
	if err != nil {
		return 0, oops.Code("TOKEN_REVOKE_ALL_FAILED").With("user_id", userID).Wrap(err)
	}
	s.logger.Info("refresh tokens revoked", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}

// Reap deletes revoked and expired rows. Validity is unaffected: those rows
// were already terminal.
func (s *TokenService) Reap(ctx context.Context) (int64, error) {
	n, err := s.store.RefreshTokens(ctx).DeleteInert(ctx, s.now().UTC())
	if err != nil {
		return 0, oops.Code("TOKEN_REAP_FAILED").Wrap(err)
	}
	obs.RefreshTokensReaped(n)
	s.logger.Debug("refresh tokens reaped", zap.Int64("count", n))
	return n, nil
}
