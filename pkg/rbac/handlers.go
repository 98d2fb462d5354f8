package rbac

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// AuditReader lists recorded audit events
type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) ([]*audit.Event, error)
}

// Handlers provides HTTP handlers for RBAC operations
type Handlers struct {
	engine      *Engine
	middleware  *PermissionMiddleware
	auditReader AuditReader
}

// NewHandlers creates new RBAC handlers
func NewHandlers(engine *Engine) *Handlers {
	return &Handlers{
		engine:     engine,
		middleware: NewPermissionMiddleware(engine),
	}
}

// SetAuditReader enables GET /rbac/audit. It must be called before RegisterRoutes.
func (h *Handlers) SetAuditReader(r AuditReader) {
	h.auditReader = r
}

// IDsRequest is the body of the bulk delete endpoints
type IDsRequest struct {
	IDs []int64 `json:"ids"`
}

// ActiveRequest is the body of the membership toggle endpoint
type ActiveRequest struct {
	Active bool `json:"active"`
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/rbac").Subrouter()
	r.Use(h.middleware.RequireAuthenticated)

	r.HandleFunc("/me/permissions", h.GetMyPermissions).Methods("GET")

	// Roles
	r.HandleFunc("/roles", h.ListRoles).Methods("GET")
	r.HandleFunc("/roles", h.CreateRole).Methods("POST")
	r.HandleFunc("/roles/bulk-delete", h.DeleteRoles).Methods("POST")
	r.HandleFunc("/roles/{id}", h.UpdateRole).Methods("PUT")
	r.HandleFunc("/roles/{id}", h.DeleteRole).Methods("DELETE")
	r.HandleFunc("/roles/{id}/permissions", h.GetRolePermissions).Methods("GET")

	// Permissions
	r.HandleFunc("/permissions", h.ListPermissions).Methods("GET")
	r.HandleFunc("/permissions", h.CreatePermission).Methods("POST")
	r.HandleFunc("/permissions/bulk-delete", h.DeletePermissions).Methods("POST")
	r.HandleFunc("/permissions/{id}", h.UpdatePermission).Methods("PUT")
	r.HandleFunc("/permissions/{id}", h.DeletePermission).Methods("DELETE")

	// Memberships
	r.HandleFunc("/members", h.ListMembers).Methods("GET")
	r.HandleFunc("/members", h.SaveMember).Methods("POST")
	r.HandleFunc("/members/bulk-delete", h.DeleteMembers).Methods("POST")
	r.HandleFunc("/members/{user_id}", h.DeleteMember).Methods("DELETE")
	r.HandleFunc("/members/{user_id}/active", h.ToggleMember).Methods("POST")

	if h.auditReader != nil {
		r.Handle("/audit", h.middleware.RequirePermission(PermManageSecurity)(http.HandlerFunc(h.ListAuditEvents))).Methods("GET")
	}
}

// actorFromRequest builds the acting identity from the request context
func actorFromRequest(r *http.Request) Actor {
	userID, _ := contextkeys.GetActorID(r.Context())
	return Actor{UserID: userID, TenantID: contextkeys.GetTenantID(r.Context())}
}

// writeError translates an engine error into a coded JSON response
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := CodeOf(err)
	if code == "" {
		observability.FromContext(r.Context()).WithError(err).Error("rbac request failed")
		httputil.WriteCodedError(w, http.StatusInternalServerError, "INTERNAL", fallbackMessage)
		return
	}
	httputil.WriteCodedError(w, HTTPStatus(err), string(code), Message(code))
}

// GetMyPermissions returns the caller's effective permission keys in the request scope
func (h *Handlers) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	keys, err := h.engine.ResolveEffectivePermissions(r.Context(), actor.UserID, actor.TenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": keys})
}

// ListRoles lists the roles of the caller's scope
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.engine.ListRoles(r.Context(), actorFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole creates a new custom role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var input RoleInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	input.ID = nil

	res, err := h.engine.CreateOrUpdateRole(r.Context(), actorFromRequest(r), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, res)
}

// UpdateRole updates a role and replaces its permission set
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var input RoleInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	input.ID = &id

	res, err := h.engine.CreateOrUpdateRole(r.Context(), actorFromRequest(r), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// DeleteRole deletes a single role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.DeleteRole(r.Context(), actorFromRequest(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DeleteRoles deletes several roles and reports the blocked ones
func (h *Handlers) DeleteRoles(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	res, err := h.engine.DeleteRoles(r.Context(), actorFromRequest(r), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// GetRolePermissions returns the permission ids granted to a role
func (h *Handlers) GetRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	ids, err := h.engine.GetRolePermissionIDs(r.Context(), actorFromRequest(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permission_ids": ids})
}

// ListPermissions lists every permission
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.engine.ListPermissions(r.Context(), actorFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

// CreatePermission creates a permission
func (h *Handlers) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var input PermissionInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	input.ID = nil

	res, err := h.engine.CreateOrUpdatePermission(r.Context(), actorFromRequest(r), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, res)
}

// UpdatePermission updates a permission
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var input PermissionInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}
	input.ID = &id

	res, err := h.engine.CreateOrUpdatePermission(r.Context(), actorFromRequest(r), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// DeletePermission deletes a single permission
func (h *Handlers) DeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.DeletePermission(r.Context(), actorFromRequest(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// DeletePermissions deletes several permissions and reports the blocked ones
func (h *Handlers) DeletePermissions(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	res, err := h.engine.DeletePermissions(r.Context(), actorFromRequest(r), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// ListMembers lists the memberships of the caller's tenant
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.engine.ListMemberships(r.Context(), actorFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// SaveMember onboards a user or reassigns their role. tenant_id defaults to
// the tenant the request was made against.
func (h *Handlers) SaveMember(w http.ResponseWriter, r *http.Request) {
	var input MembershipInput
	if !httputil.ParseJSONOrError(w, r, &input) {
		return
	}

	actor := actorFromRequest(r)
	if input.TenantID == 0 {
		tenantID, err := h.scopeTenantID(r.Context(), actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		input.TenantID = tenantID
	}

	res, err := h.engine.CreateOrUpdateMembership(r.Context(), actor, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Mode == ModeCreated {
		httputil.WriteCreated(w, res)
		return
	}
	httputil.WriteSuccess(w, res)
}

// DeleteMember removes a user from the caller's tenant
func (h *Handlers) DeleteMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	actor := actorFromRequest(r)
	tenantID, err := h.scopeTenantID(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.engine.DeleteMembership(r.Context(), actor, userID, tenantID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// DeleteMembers removes several users from the caller's tenant
func (h *Handlers) DeleteMembers(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	res, err := h.engine.DeleteMemberships(r.Context(), actorFromRequest(r), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// ToggleMember activates or disables a membership
func (h *Handlers) ToggleMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}
	var req ActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	res, err := h.engine.ToggleActive(r.Context(), actorFromRequest(r), userID, req.Active)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, res)
}

// ListAuditEvents lists recent audit events. Tenant-scoped callers only see
// their own tenant; central callers may filter with ?tenant_id=.
func (h *Handlers) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)
	sc, err := h.engine.scopeFor(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{}
	if !sc.Central {
		tenantID := sc.TenantID
		filter.TenantID = &tenantID
	} else if v := q.Get("tenant_id"); v != "" {
		tenantID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid tenant_id")
			return
		}
		filter.TenantID = &tenantID
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid since, expected RFC3339")
			return
		}
		filter.Since = &since
	}
	for _, t := range q["event_type"] {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
	}

	events, err := h.auditReader.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, events)
}

func (h *Handlers) scopeTenantID(ctx context.Context, actor Actor) (int64, error) {
	sc, err := h.engine.scopeFor(ctx, actor)
	if err != nil {
		return 0, err
	}
	return sc.TenantID, nil
}
