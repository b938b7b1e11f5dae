package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/accessgate/accessgate/internal/platform/httpx"
	"github.com/accessgate/accessgate/internal/shared"
)

// Handler manages the administrative endpoints for roles, permissions and
// assignments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	gate     Gate
	validate *validator.Validate
	titler   cases.Caser
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate Gate) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		gate:     gate,
		validate: validator.New(),
		titler:   cases.Title(language.English),
	}
}

// MountRoutes registers the administrative routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAnyPermission(shared.PermRolesView, shared.PermRolesEdit))
			r.Get("/", h.listRoles)
			r.Get("/{slug}", h.getRole)
			r.Get("/{slug}/permissions", h.rolePermissions)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequirePermission(shared.PermRolesEdit))
			r.Post("/", h.createRole)
			r.Put("/{slug}", h.updateRole)
			r.Delete("/{slug}", h.deleteRole)
			r.Put("/{slug}/permissions", h.syncRolePermissions)
			r.Delete("/{slug}/permissions", h.revokeAllRolePermissions)
			r.Post("/{slug}/permissions/{permissionID}", h.attachRolePermission)
			r.Delete("/{slug}/permissions/{permissionID}", h.detachRolePermission)
		})
	})

	r.Route("/permissions", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAnyPermission(shared.PermPermissionsView, shared.PermPermissionsEdit))
			r.Get("/", h.listPermissions)
			r.Get("/{slug}", h.getPermission)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequirePermission(shared.PermPermissionsEdit))
			r.Post("/", h.createPermission)
			r.Put("/{slug}", h.updatePermission)
			r.Delete("/{slug}", h.deletePermission)
			r.Put("/{slug}/roles", h.syncPermissionRoles)
		})
	})

	r.Route("/subjects/{subjectID}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequireAnyPermission(shared.PermGrantsView, shared.PermGrantsEdit))
			r.Get("/roles", h.subjectRoles)
			r.Get("/permissions", h.subjectPermissions)
			r.Get("/can", h.subjectCan)
			r.Get("/is", h.subjectIs)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.gate.RequirePermission(shared.PermGrantsEdit))
			r.Put("/roles", h.syncSubjectRoles)
			r.Delete("/roles", h.revokeAllSubjectRoles)
			r.Post("/roles/{roleID}", h.assignSubjectRole)
			r.Delete("/roles/{roleID}", h.revokeSubjectRole)
			r.Put("/permissions", h.syncSubjectPermissions)
			r.Delete("/permissions", h.revokeAllSubjectPermissions)
			r.Post("/permissions/{permissionID}", h.assignSubjectPermission)
			r.Delete("/permissions/{permissionID}", h.revokeSubjectPermission)
		})
	})
}

type roleRequest struct {
	Slug        string `json:"slug" validate:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Special     string `json:"special" validate:"omitempty,oneof=all-access no-access"`
}

type permissionRequest struct {
	Slug        string `json:"slug" validate:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

type roleView struct {
	ID          int64   `json:"id"`
	Slug        string  `json:"slug"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Special     Special `json:"special,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

type permissionView struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type edgeResult struct {
	Changed bool `json:"changed"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondErr(w, "list roles", err)
		return
	}
	views := make([]roleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, toRoleView(role))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), Role{
		Slug:        req.Slug,
		Name:        h.displayName(req.Name, req.Slug),
		Description: req.Description,
		Special:     Special(req.Special),
	})
	if err != nil {
		h.respondErr(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleView(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	existing, err := h.service.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "update role", err)
		return
	}
	var req roleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), Role{
		ID:          existing.ID,
		Slug:        req.Slug,
		Name:        h.displayName(req.Name, req.Slug),
		Description: req.Description,
		Special:     Special(req.Special),
	})
	if err != nil {
		h.respondErr(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "delete role", err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), role.ID); err != nil {
		h.respondErr(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.RolePermissions(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) syncRolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "sync role permissions", err)
		return
	}
	var req idsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	change, err := h.service.SyncRolePermissions(r.Context(), role.ID, req.IDs)
	if err != nil {
		h.respondErr(w, "sync role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) revokeAllRolePermissions(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "revoke role permissions", err)
		return
	}
	change, err := h.service.SyncRolePermissions(r.Context(), role.ID, nil)
	if err != nil {
		h.respondErr(w, "revoke role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) attachRolePermission(w http.ResponseWriter, r *http.Request) {
	role, permissionID, err := h.roleAndID(r, "permissionID")
	if err != nil {
		h.respondErr(w, "attach role permission", err)
		return
	}
	created, err := h.service.AttachRolePermission(r.Context(), role.ID, permissionID)
	if err != nil {
		h.respondErr(w, "attach role permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edgeResult{Changed: created})
}

func (h *Handler) detachRolePermission(w http.ResponseWriter, r *http.Request) {
	role, permissionID, err := h.roleAndID(r, "permissionID")
	if err != nil {
		h.respondErr(w, "detach role permission", err)
		return
	}
	removed, err := h.service.DetachRolePermission(r.Context(), role.ID, permissionID)
	if err != nil {
		h.respondErr(w, "detach role permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edgeResult{Changed: removed})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondErr(w, "list permissions", err)
		return
	}
	views := make([]permissionView, 0, len(perms))
	for _, perm := range perms {
		views = append(views, toPermissionView(perm))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.service.GetPermissionBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionView(perm))
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), Permission{
		Slug:        req.Slug,
		Name:        h.displayName(req.Name, req.Slug),
		Description: req.Description,
	})
	if err != nil {
		h.respondErr(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionView(perm))
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	existing, err := h.service.GetPermissionBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "update permission", err)
		return
	}
	var req permissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.UpdatePermission(r.Context(), Permission{
		ID:          existing.ID,
		Slug:        req.Slug,
		Name:        h.displayName(req.Name, req.Slug),
		Description: req.Description,
	})
	if err != nil {
		h.respondErr(w, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionView(perm))
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.service.GetPermissionBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "delete permission", err)
		return
	}
	if err := h.service.DeletePermission(r.Context(), perm.ID); err != nil {
		h.respondErr(w, "delete permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) syncPermissionRoles(w http.ResponseWriter, r *http.Request) {
	perm, err := h.service.GetPermissionBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.respondErr(w, "sync permission roles", err)
		return
	}
	var req idsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	change, err := h.service.SyncPermissionRoles(r.Context(), perm.ID, req.IDs)
	if err != nil {
		h.respondErr(w, "sync permission roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) subjectRoles(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.loadSubject(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": subject.RoleSlugs()})
}

func (h *Handler) subjectPermissions(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.loadSubject(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": subject.PermissionSlugs()})
}

func (h *Handler) subjectCan(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.loadSubject(w, r)
	if !ok {
		return
	}
	slugs := r.URL.Query()["permission"]
	if len(slugs) == 0 {
		httpx.RespondError(w, fmt.Errorf("%w: permission query parameter required", shared.ErrValidation))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"allowed": subject.CanAtLeast(slugs)})
}

func (h *Handler) subjectIs(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.loadSubject(w, r)
	if !ok {
		return
	}
	slug := r.URL.Query().Get("role")
	if slug == "" {
		httpx.RespondError(w, fmt.Errorf("%w: role query parameter required", shared.ErrValidation))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"held": subject.Is(slug)})
}

func (h *Handler) syncSubjectRoles(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.subjectID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req idsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	change, err := h.service.SyncRoles(r.Context(), subjectID, req.IDs)
	if err != nil {
		h.respondErr(w, "sync subject roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) revokeAllSubjectRoles(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.subjectID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	change, err := h.service.RevokeAllRoles(r.Context(), subjectID)
	if err != nil {
		h.respondErr(w, "revoke subject roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) assignSubjectRole(w http.ResponseWriter, r *http.Request) {
	subjectID, roleID, err := h.subjectAndID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.AssignRole(r.Context(), subjectID, roleID)
	if err != nil {
		h.respondErr(w, "assign subject role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edgeResult{Changed: created})
}

func (h *Handler) revokeSubjectRole(w http.ResponseWriter, r *http.Request) {
	subjectID, roleID, err := h.subjectAndID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.RevokeRole(r.Context(), subjectID, roleID)
	if err != nil {
		h.respondErr(w, "revoke subject role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edgeResult{Changed: removed})
}

func (h *Handler) syncSubjectPermissions(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.subjectID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req idsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	change, err := h.service.SyncPermissions(r.Context(), subjectID, req.IDs)
	if err != nil {
		h.respondErr(w, "sync subject permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) revokeAllSubjectPermissions(w http.ResponseWriter, r *http.Request) {
	subjectID, err := h.subjectID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	change, err := h.service.RevokeAllPermissions(r.Context(), subjectID)
	if err != nil {
		h.respondErr(w, "revoke subject permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, change)
}

func (h *Handler) assignSubjectPermission(w http.ResponseWriter, r *http.Request) {
	subjectID, permissionID, err := h.subjectAndID(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.AssignPermission(r.Context(), subjectID, permissionID)
	if err != nil {
		h.respondErr(w, "assign subject permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edgeResult{Changed: created})
}

func (h *Handler) revokeSubjectPermission(w http.ResponseWriter, r *http.Request) {
	subjectID, permissionID, err := h.subjectAndID(r, "permissionID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.RevokePermission(r.Context(), subjectID, permissionID)
	if err != nil {
		h.respondErr(w, "revoke subject permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, edgeResult{Changed: removed})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if err := h.validate.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}

func (h *Handler) loadSubject(w http.ResponseWriter, r *http.Request) (Subject, bool) {
	subjectID, err := h.subjectID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return Subject{}, false
	}
	subject, err := h.service.Subject(r.Context(), subjectID)
	if err != nil {
		h.respondErr(w, "load subject", err)
		return Subject{}, false
	}
	return subject, true
}

func (h *Handler) subjectID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "subjectID"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: subject id must be numeric", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) subjectAndID(r *http.Request, param string) (int64, int64, error) {
	subjectID, err := h.subjectID(r)
	if err != nil {
		return 0, 0, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s must be numeric", shared.ErrValidation, param)
	}
	return subjectID, id, nil
}

func (h *Handler) roleAndID(r *http.Request, param string) (Role, int64, error) {
	role, err := h.service.GetRoleBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		return Role{}, 0, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		return Role{}, 0, fmt.Errorf("%w: %s must be numeric", shared.ErrValidation, param)
	}
	return role, id, nil
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	if h.logger != nil && !IsNotFound(err) {
		h.logger.Error("rbac "+op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// displayName falls back to a titled form of the slug when no explicit
// name is given, e.g. "content-editor" becomes "Content Editor".
func (h *Handler) displayName(name, slug string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	cleaned := strings.NewReplacer("-", " ", ".", " ", "_", " ").Replace(slug)
	return h.titler.String(cleaned)
}

func toRoleView(role Role) roleView {
	return roleView{
		ID:          role.ID,
		Slug:        role.Slug,
		Name:        role.Name,
		Description: role.Description,
		Special:     role.Special,
		CreatedAt:   formatTime(role.CreatedAt),
		UpdatedAt:   formatTime(role.UpdatedAt),
	}
}

func toPermissionView(perm Permission) permissionView {
	return permissionView{
		ID:          perm.ID,
		Slug:        perm.Slug,
		Name:        perm.Name,
		Description: perm.Description,
		CreatedAt:   formatTime(perm.CreatedAt),
		UpdatedAt:   formatTime(perm.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
