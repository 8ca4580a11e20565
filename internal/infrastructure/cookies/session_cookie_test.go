package cookies

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookieName, cookies[0].Name)
	return cookies[0]
}

func TestSessionCookieRoundTrip(t *testing.T) {
	now := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)
	c := NewSessionCookie([]byte("secret"), func() time.Time { return now })

	rec := httptest.NewRecorder()
	require.NoError(t, c.SetFor(rec, "session-id", 60*time.Second))

	cookie := responseCookie(t, rec)
	require.NotEqual(t, "session-id", cookie.Value)
	require.Equal(t, 60, cookie.MaxAge)
	require.True(t, cookie.Expires.Equal(now.Add(60*time.Second)))
	require.True(t, cookie.Secure)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, "/", cookie.Path)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	req.AddCookie(cookie)
	require.Equal(t, "session-id", c.Get(req))
}

func TestSessionCookieRejectsExpired(t *testing.T) {
	now := time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)
	c := NewSessionCookie([]byte("secret"), func() time.Time { return now })

	rec := httptest.NewRecorder()
	require.NoError(t, c.SetFor(rec, "session-id", 60*time.Second))
	cookie := responseCookie(t, rec)

	request := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
		req.AddCookie(cookie)
		return req
	}

	now = now.Add(59 * time.Second)
	require.Equal(t, "session-id", c.Get(request()))

	// a replayed cookie stops decoding once its lifetime is over
	now = now.Add(time.Second)
	require.Empty(t, c.Get(request()))

	now = now.Add(24 * time.Hour)
	require.Empty(t, c.Get(request()))
}

func TestSessionCookieRejectsTampering(t *testing.T) {
	c := NewSessionCookie([]byte("secret"), nil)
	other := NewSessionCookie([]byte("other-secret"), nil)

	rec := httptest.NewRecorder()
	require.NoError(t, other.Set(rec, "session-id", nil))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(responseCookie(t, rec))
	require.Empty(t, c.Get(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-id"})
	require.Empty(t, c.Get(req))

	require.Empty(t, c.Get(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestSessionCookieExpire(t *testing.T) {
	c := NewSessionCookie([]byte("secret"), nil)

	rec := httptest.NewRecorder()
	require.NoError(t, c.Expire(rec, "session-id"))

	cookie := responseCookie(t, rec)
	require.Less(t, cookie.MaxAge, 0)
}

func TestSessionCookieWithoutExpiry(t *testing.T) {
	c := NewSessionCookie([]byte("secret"), nil)

	rec := httptest.NewRecorder()
	require.NoError(t, c.Set(rec, "session-id", nil))

	cookie := responseCookie(t, rec)
	require.Zero(t, cookie.MaxAge)
	require.True(t, cookie.Expires.IsZero())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	require.Equal(t, "session-id", c.Get(req))
}
