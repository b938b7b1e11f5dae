package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/accessgate/accessgate/internal/observability"
	"github.com/accessgate/accessgate/internal/platform/httpx"
	"github.com/accessgate/accessgate/internal/shared"
)

// Gate wires authorization checks in front of HTTP handlers. A role
// requirement without an authenticated subject denies with 401; every other
// failed check denies with 403. Permission requirements fall back to the
// guest role for anonymous requests.
type Gate struct {
	Service *Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequireRole ensures the current subject holds the role slug.
func (g Gate) RequireRole(slug string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subjectID, ok := g.currentSubjectID(r)
			if !ok {
				g.observe("role", "deny")
				g.deny(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			held, err := g.Service.Is(r.Context(), subjectID, slug)
			if err != nil {
				g.fail(w, r, "role", "require role", err)
				return
			}
			if !held {
				g.observe("role", "deny")
				g.deny(w, r, http.StatusForbidden, "forbidden")
				return
			}
			g.observe("role", "allow")
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission ensures the acting subject holds the permission slug.
func (g Gate) RequirePermission(slug string) func(http.Handler) http.Handler {
	return g.requirePermissions(slug)
}

// RequireAnyPermission ensures the acting subject holds at least one of the
// permission slugs.
func (g Gate) RequireAnyPermission(slugs ...string) func(http.Handler) http.Handler {
	return g.requirePermissions(slugs...)
}

func (g Gate) requirePermissions(slugs ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(slugs) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			if subjectID, ok := g.currentSubjectID(r); ok {
				allowed, err := g.Service.CanAtLeast(r.Context(), subjectID, slugs)
				if err != nil {
					g.fail(w, r, "permission", "require permission", err)
					return
				}
				if !allowed {
					g.observe("permission", "deny")
					g.deny(w, r, http.StatusForbidden, "forbidden")
					return
				}
				g.observe("permission", "allow")
				next.ServeHTTP(w, r)
				return
			}

			guest, err := g.Service.Guest(r.Context())
			if err != nil {
				if IsNotFound(err) {
					// No guest role configured: anonymous traffic passes.
					// Deliberate permissive default inherited from the
					// upstream behaviour; see Gate doc.
					g.observe("permission", "guest-passthrough")
					next.ServeHTTP(w, r)
					return
				}
				g.fail(w, r, "permission", "load guest", err)
				return
			}
			if !guest.CanAtLeast(slugs) {
				g.observe("permission", "deny")
				g.deny(w, r, http.StatusForbidden, "forbidden")
				return
			}
			g.observe("permission", "guest-allow")
			next.ServeHTTP(w, r)
		})
	}
}

func (g Gate) currentSubjectID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.Subject())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if g.Logger != nil {
			g.Logger.Error("gate parse subject id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

// deny writes the terminal deny response, negotiating JSON versus plain
// text on the Accept header.
func (g Gate) deny(w http.ResponseWriter, r *http.Request, status int, message string) {
	if wantsJSON(r) {
		httpx.Problem(w, status, http.StatusText(status), message)
		return
	}
	http.Error(w, message, status)
}

func (g Gate) fail(w http.ResponseWriter, r *http.Request, requirement, op string, err error) {
	if g.Logger != nil {
		g.Logger.Error("gate "+op, slog.Any("error", err))
	}
	g.observe(requirement, "error")
	if wantsJSON(r) {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (g Gate) observe(requirement, outcome string) {
	if g.Metrics != nil {
		g.Metrics.ObserveAuthzDecision(requirement, outcome)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
