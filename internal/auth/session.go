package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"surveyhub.org/internal/audit"
	"surveyhub.org/internal/obs"
)

// Session orchestrates registration, login, token refresh, logout and
// password changes.
type Session struct {
	store    Store
	hasher   PasswordHasher
	tokens   *TokenService
	resolver *PermissionResolver
	now      func() time.Time
	logger   *zap.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHasher overrides the default bcrypt hasher.
func WithHasher(h PasswordHasher) SessionOption {
	return func(s *Session) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithSessionClock overrides the time source used for assignment metadata.
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession wires a Session over store, tokens and resolver.
func NewSession(store Store, tokens *TokenService, resolver *PermissionResolver, opts ...SessionOption) *Session {
	s := &Session{
		store:    store,
		hasher:   NewBcryptHasher(0),
		tokens:   tokens,
		resolver: resolver,
		now:      time.Now,
		logger:   obs.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput carries the fields of a self-service registration.
type RegisterInput struct {
	Email          string
	Password       string
	FullName       string
	OrganizationID string
}

// Register creates an active user in the organization and assigns the
// organization's Viewer role when one exists. Tokens are issued and the
// refresh token persisted after the user transaction commits; if that last
// step fails the error is returned together with the created user.
func (s *Session) Register(ctx context.Context, in RegisterInput) (user *User, pair TokenPair, err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Session.Register")
	defer func() {
		obs.EndSpan(span, err)
		obs.RecordAuthEvent("register", err)
	}()

	email := normalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	orgID := strings.TrimSpace(in.OrganizationID)
	if email == "" || in.Password == "" || fullName == "" || orgID == "" {
		return nil, TokenPair{}, validationf("email, password, full name and organization are required")
	}
	if err := validatePassword("password", in.Password); err != nil {
		return nil, TokenPair{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, TokenPair{}, err
	}

	created := &User{
		Email:          email,
		PasswordHash:   hash,
		FullName:       fullName,
		OrganizationID: orgID,
		Active:         true,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.Users(ctx).FindByEmail(ctx, email); err == nil {
			return oops.Code("USER_EXISTS").With("email", email).Wrap(ErrConflict)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := tx.Users(ctx).Create(ctx, created); err != nil {
			return err
		}
		viewer, err := tx.Roles(ctx).FindByName(ctx, orgID, RoleViewer)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("organization has no viewer role", zap.String("organization_id", orgID))
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Roles(ctx).Assign(ctx, UserRole{
			UserID:     created.ID,
			RoleID:     viewer.ID,
			AssignedAt: s.now().UTC(),
		})
	})
	if err != nil {
		return nil, TokenPair{}, err
	}

	pair, err = s.issuePair(ctx, created)
	if err != nil {
		s.logger.Error("registered user without session", zap.String("user_id", created.ID), zap.Error(err))
		return created, TokenPair{}, err
	}
	_ = audit.LogEvent(ctx, "auth.register",
		zap.String("user_id", created.ID),
		zap.String("organization_id", orgID))
	return created, pair, nil
}

// Login verifies credentials and issues a persisted token pair. Unknown email
// and wrong password fail identically.
func (s *Session) Login(ctx context.Context, email, password string) (user *User, pair TokenPair, err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Session.Login")
	defer func() {
		obs.EndSpan(span, err)
		obs.RecordAuthEvent("login", err)
	}()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, TokenPair{}, validationf("email and password are required")
	}
	user, err = s.store.Users(ctx).FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, TokenPair{}, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}
	if err != nil {
		return nil, TokenPair{}, err
	}
	if !user.Active {
		return nil, TokenPair{}, oops.Code("AUTH_DEACTIVATED").With("user_id", user.ID).Wrap(ErrAccountDeactivated)
	}
	ok, verr := s.hasher.Verify(password, user.PasswordHash)
	if verr != nil || !ok {
		if verr != nil {
			s.logger.Debug("password verification failed", zap.String("user_id", user.ID), zap.Error(verr))
		}
		return nil, TokenPair{}, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	pair, err = s.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	_ = audit.LogEvent(ctx, "auth.login", zap.String("user_id", user.ID))
	return user, pair, nil
}

// Refresh exchanges a persisted, unrevoked refresh token for a new access
// token. The refresh token itself is not rotated.
func (s *Session) Refresh(ctx context.Context, refreshToken string) (access string, err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Session.Refresh")
	defer func() {
		obs.EndSpan(span, err)
		obs.RecordAuthEvent("refresh", err)
	}()

	if strings.TrimSpace(refreshToken) == "" {
		return "", validationf("refresh token is required")
	}
	valid, err := s.tokens.IsValid(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", oops.Code("TOKEN_REVOKED").Wrap(ErrTokenRevoked)
	}
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	if user == nil || !user.Active {
		return "", oops.Code("AUTH_ACCOUNT_UNAVAILABLE").With("user_id", claims.UserID).Wrap(ErrAccountUnavailable)
	}
	return s.tokens.IssueAccessToken(user.ID, user.Email)
}

// Logout revokes the refresh token. Unknown tokens are accepted.
func (s *Session) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Session.Logout")
	defer func() {
		obs.EndSpan(span, err)
		obs.RecordAuthEvent("logout", err)
	}()

	if strings.TrimSpace(refreshToken) == "" {
		return validationf("refresh token is required")
	}
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.logout")
	return nil
}

// LogoutEverywhere revokes every active refresh token of the user.
func (s *Session) LogoutEverywhere(ctx context.Context, userID string) (n int64, err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Session.LogoutEverywhere")
	defer func() {
		obs.EndSpan(span, err)
		obs.RecordAuthEvent("logout_everywhere", err)
	}()

	n, err = s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	_ = audit.LogEvent(ctx, "auth.logout_everywhere", zap.String("user_id", userID), zap.Int64("revoked", n))
	return n, nil
}

// ChangePassword replaces the user's password after verifying the current
// one. On mismatch the stored hash is left untouched.
func (s *Session) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Session.ChangePassword")
	defer func() {
		obs.EndSpan(span, err)
		obs.RecordAuthEvent("change_password", err)
	}()

	if currentPassword == "" {
		return validationf("current password is required")
	}
	if err := validatePassword("new password", newPassword); err != nil {
		return err
	}
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return err
	}
	ok, verr := s.hasher.Verify(currentPassword, user.PasswordHash)
	if verr != nil || !ok {
		return oops.Code("AUTH_WRONG_PASSWORD").With("user_id", userID).Wrap(ErrWrongPassword)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.password_changed", zap.String("user_id", userID))
	return nil
}

// CurrentUser returns the user's profile with organization name and the
// deduplicated role and permission names.
func (s *Session) CurrentUser(ctx context.Context, userID string) (profile *Profile, err error) {
	ctx, span := obs.StartSpan(ctx, "auth.Session.CurrentUser")
	defer func() { obs.EndSpan(span, err) }()

	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	var orgName string
	org, err := s.store.Organizations(ctx).Find(ctx, user.OrganizationID)
	switch {
	case err == nil:
		orgName = org.Name
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	roles, err := s.store.Roles(ctx).NamesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	perms, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:               user.ID,
		Email:            user.Email,
		FullName:         user.FullName,
		OrganizationID:   user.OrganizationID,
		OrganizationName: orgName,
		HasExternalAuth:  user.HasExternalAuth(),
		Roles:            distinctSorted(roles),
		Permissions:      perms.Names(),
		CreatedAt:        user.CreatedAt,
	}, nil
}

// Authenticate verifies an access token and loads its user. Unknown users and
// deactivated users are reported with distinct reasons.
func (s *Session) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return Principal{}, oops.Code("AUTH_ACCOUNT_UNAVAILABLE").With("user_id", claims.UserID).Wrap(ErrAccountUnavailable)
	}
	if err != nil {
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, oops.Code("AUTH_DEACTIVATED").With("user_id", user.ID).Wrap(ErrAccountDeactivated)
	}
	return Principal{
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: user.OrganizationID,
		User:           user,
	}, nil
}

func (s *Session) issuePair(ctx context.Context, user *User) (TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.tokens.Persist(ctx, user.ID, refresh); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func distinctSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
