package rbac_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/rbac"
	"github.com/accessgate/accessgate/internal/shared"
	_ "github.com/accessgate/accessgate/testing"
)

const adminSubjectID int64 = 99

// newAdminServer mounts the admin routes behind a session for a subject
// holding every core scope.
func newAdminServer(t *testing.T) (http.Handler, *fixture) {
	t.Helper()

	f := newServiceFixture(t)
	ctx := context.Background()

	admin := f.mustRole(t, "gatekeeper", rbac.SpecialNone)
	for _, scope := range shared.CoreScopes() {
		perm := f.mustPermission(t, scope)
		_, err := f.service.AttachRolePermission(ctx, admin.ID, perm.ID)
		require.NoError(t, err)
	}
	_, err := f.service.AssignRole(ctx, adminSubjectID, admin.ID)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := rbac.Gate{Service: f.service, Logger: logger}
	handler := rbac.NewHandler(logger, f.service, gate)

	mux := chi.NewRouter()
	handler.MountRoutes(mux)

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	sm := shared.NewSessionManager(client, "accessgate_session", time.Hour, false)

	withSession := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.Load(r.Context(), r)
		require.NoError(t, err)
		sess.SetSubject(strconv.FormatInt(adminSubjectID, 10))
		mux.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
	})
	return withSession, f
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateRole(t *testing.T) {
	h, _ := newAdminServer(t)

	rec := do(t, h, http.MethodPost, "/roles", `{"slug":"content-editor"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view struct {
		Slug string `json:"slug"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "content-editor", view.Slug)
	assert.Equal(t, "Content Editor", view.Name)
}

func TestHandlerCreateRoleDuplicate(t *testing.T) {
	h, _ := newAdminServer(t)

	rec := do(t, h, http.MethodPost, "/roles", `{"slug":"editor"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/roles", `{"slug":"editor"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerCreateRoleRejectsUnknownSpecial(t *testing.T) {
	h, _ := newAdminServer(t)

	rec := do(t, h, http.MethodPost, "/roles", `{"slug":"odd","special":"partial-access"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetRoleNotFound(t *testing.T) {
	h, _ := newAdminServer(t)

	rec := do(t, h, http.MethodGet, "/roles/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerAssignRoleReportsChange(t *testing.T) {
	h, f := newAdminServer(t)
	editor := f.mustRole(t, "editor", rbac.SpecialNone)
	path := "/subjects/1/roles/" + strconv.FormatInt(editor.ID, 10)

	rec := do(t, h, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"changed":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"changed":false}`, rec.Body.String())
}

func TestHandlerSyncSubjectRoles(t *testing.T) {
	h, f := newAdminServer(t)
	editor := f.mustRole(t, "editor", rbac.SpecialNone)

	body := `{"ids":[` + strconv.FormatInt(editor.ID, 10) + `]}`
	rec := do(t, h, http.MethodPut, "/subjects/1/roles", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var change rbac.ChangeSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &change))
	assert.Equal(t, []int64{editor.ID}, change.Attached)

	rec = do(t, h, http.MethodGet, "/subjects/1/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"roles":["editor"]}`, rec.Body.String())
}

func TestHandlerRevokeAllSubjectRoles(t *testing.T) {
	h, f := newAdminServer(t)
	editor := f.mustRole(t, "editor", rbac.SpecialNone)
	_, err := f.service.AssignRole(context.Background(), 1, editor.ID)
	require.NoError(t, err)

	rec := do(t, h, http.MethodDelete, "/subjects/1/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var change rbac.ChangeSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &change))
	assert.Equal(t, []int64{editor.ID}, change.Detached)
}

func TestHandlerSubjectCan(t *testing.T) {
	h, f := newAdminServer(t)
	ctx := context.Background()

	publish := f.mustPermission(t, "publish")
	editor := f.mustRole(t, "editor", rbac.SpecialNone, publish.ID)
	_, err := f.service.AssignRole(ctx, 1, editor.ID)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/subjects/1/can?permission=publish", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":true}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/subjects/1/can?permission=delete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"allowed":false}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/subjects/1/can", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSubjectIs(t *testing.T) {
	h, f := newAdminServer(t)
	editor := f.mustRole(t, "editor", rbac.SpecialNone)
	_, err := f.service.AssignRole(context.Background(), 1, editor.ID)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/subjects/1/is?role=Editor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"held":true}`, rec.Body.String())
}

func TestHandlerSubjectIDMustBeNumeric(t *testing.T) {
	h, _ := newAdminServer(t)

	rec := do(t, h, http.MethodGet, "/subjects/abc/roles", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRoutesRequireScope(t *testing.T) {
	f := newServiceFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := rbac.Gate{Service: f.service, Logger: logger}
	handler := rbac.NewHandler(logger, f.service, gate)

	mux := chi.NewRouter()
	handler.MountRoutes(mux)

	// Subject 5 exists with a role but holds no admin scope.
	viewer := f.mustRole(t, "viewer", rbac.SpecialNone)
	_, err := f.service.AssignRole(context.Background(), 5, viewer.ID)
	require.NoError(t, err)

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	sm := shared.NewSessionManager(client, "accessgate_session", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	sess, err := sm.Load(req.Context(), req)
	require.NoError(t, err)
	sess.SetSubject("5")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
