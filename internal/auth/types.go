package auth

import "time"

// Organization is the tenant isolation boundary.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is an account owned by exactly one organization.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	FullName           string     `json:"full_name"`
	OrganizationID     string     `json:"organization_id"`
	Active             bool       `json:"active"`
	ExternalAccess     string     `json:"-"`
	ExternalRefresh    string     `json:"-"`
	ExternalTokenExpAt *time.Time `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// HasExternalAuth reports whether the user linked an external provider.
func (u User) HasExternalAuth() bool {
	return u.ExternalAccess != ""
}

// Role groups permissions. An empty OrganizationID marks a system-wide role.
type Role struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	IsSystemRole   bool      `json:"is_system_role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Permission is an entry of the flat, global permission catalog.
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// RolePermission grants a permission to a role.
type RolePermission struct {
	RoleID       string
	PermissionID string
}

// UserRole assigns a role to a user. AssignedBy is empty for system assignments.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
	AssignedBy string
}

// RefreshToken is a persisted refresh credential. Rows are append-only; once
// revoked or expired they are inert forever.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// ValidAt reports whether the token is usable at t.
func (t RefreshToken) ValidAt(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// TokenPair is returned by register and login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Profile is the current-user view: identity plus organization name and the
// deduplicated role and permission names.
type Profile struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	OrganizationID   string    `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	HasExternalAuth  bool      `json:"has_external_auth"`
	Roles            []string  `json:"roles"`
	Permissions      []string  `json:"permissions"`
	CreatedAt        time.Time `json:"created_at"`
}
