package httpapi

import (
	"net/http"

	"surveyhub.org/internal/auth"
)

func (a *API) routeAdmin() {
	guard := func(h http.HandlerFunc, perms ...string) http.Handler {
		return a.authenticated(a.requirePermission(perms...)(h))
	}
	// User and role administration is served elsewhere; these routes only
	// enforce the permission gates.
	a.mux.Handle("GET /api/admin/users", guard(notImplemented, auth.PermManageUsers, auth.PermViewUsers))
	a.mux.Handle("POST /api/admin/users", guard(notImplemented, auth.PermManageUsers))
	a.mux.Handle("GET /api/admin/roles", guard(notImplemented, auth.PermManageRoles))
	a.mux.Handle("GET /api/admin/permissions", guard(a.handlePermissions, auth.PermManageRoles, auth.PermAssignRoles))

	a.mux.Handle("GET /api/organizations/{organizationID}",
		a.authenticated(a.requireOrganization(http.HandlerFunc(a.handleOrganization))))
}

func (a *API) handleOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := a.store.Organizations(r.Context()).Find(r.Context(), r.PathValue("organizationID"))
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: org})
}

// handlePermissions lists the global permission catalog.
func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.store.Permissions(r.Context()).List(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: perms})
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotImplemented, "not implemented")
}
