package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/shared"
)

func newManager(t *testing.T) *shared.SessionManager {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return shared.NewSessionManager(client, "accessgate_session", time.Hour, false)
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, sess.Subject())

	sess.SetSubject("42")
	sess.Set("theme", "dark")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "accessgate_session", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.Subject())
	assert.Equal(t, "dark", loaded.Get("theme"))
}

func TestSessionDestroy(t *testing.T) {
	sm := newManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	sess.SetSubject("42")

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	cookie := rec.Result().Cookies()[0]

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	loaded.Destroy()

	rec = httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, loaded))
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	fresh, err := sm.Load(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, fresh.Subject())
}

func TestSessionUnknownCookieStartsFresh(t *testing.T) {
	sm := newManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "accessgate_session", Value: "stale-id"})
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, sess.Subject())
}
