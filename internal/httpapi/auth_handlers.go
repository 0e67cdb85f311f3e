package httpapi

import (
	"net/http"

	"surveyhub.org/internal/auth"
)

type registerRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	FullName       string `json:"full_name"`
	OrganizationID string `json:"organization_id"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type sessionResponse struct {
	User *auth.User `json:"user"`
	auth.TokenPair
}

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (a *API) routeAuth() {
	limited := a.limiter.Middleware
	a.mux.Handle("POST /api/auth/register", limited(http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("POST /api/auth/login", limited(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("POST /api/auth/refresh", limited(http.HandlerFunc(a.handleRefresh)))
	a.mux.HandleFunc("POST /api/auth/logout", a.handleLogout)

	a.mux.Handle("GET /api/auth/me", a.authenticated(http.HandlerFunc(a.handleMe)))
	a.mux.Handle("POST /api/auth/change-password", a.authenticated(http.HandlerFunc(a.handleChangePassword)))
	a.mux.Handle("POST /api/auth/logout-all", a.authenticated(http.HandlerFunc(a.handleLogoutAll)))
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.session.Register(r.Context(), auth.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		FullName:       req.FullName,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{
		Message: "User registered successfully",
		Data:    sessionResponse{User: user, TokenPair: pair},
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Message: "Login successful",
		Data:    sessionResponse{User: user, TokenPair: pair},
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	access, err := a.session.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Message: "Token refreshed successfully",
		Data:    map[string]string{"access_token": access},
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.session.Logout(r.Context(), req.RefreshToken); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Logged out successfully"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	profile, err := a.session.CurrentUser(r.Context(), principal.UserID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: profile})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := a.session.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Message: "Password changed successfully"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	n, err := a.session.LogoutEverywhere(r.Context(), principal.UserID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Message: "Logged out from all sessions",
		Data:    map[string]int64{"revoked": n},
	})
}
