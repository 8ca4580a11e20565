package application

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"fpp-app-layer/internal/config"
	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/fpptest"
	"fpp-app-layer/internal/infrastructure/cookies"
	"fpp-app-layer/internal/infrastructure/fpp"
	"fpp-app-layer/internal/infrastructure/repository"
	"fpp-app-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC)

type oauthFixture struct {
	cfg       *config.Config
	storage   *repository.MemorySessionStorage
	pool      *fpp.ClientPool
	service   *OAuthService
	exchanges atomic.Int32
}

func newOAuthFixture(t *testing.T, mutate func(*config.Config)) *oauthFixture {
	t.Helper()

	cfg := fpptest.Config()
	if mutate != nil {
		mutate(cfg)
	}

	f := &oauthFixture{cfg: cfg, storage: repository.NewMemorySessionStorage()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		f.exchanges.Add(1)

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["code"] == "bad-code" {
			http.Error(w, `{"errors":"invalid code"}`, http.StatusBadRequest)
			return
		}

		resp := map[string]any{
			"access_token": "shpat_" + body["code"],
			"scope":        "read_products,write_orders",
		}
		if body["code"] == "online-code" {
			resp["expires_in"] = 86399
			resp["associated_user_scope"] = "read_products"
			resp["associated_user"] = map[string]any{
				"id":             902541635,
				"first_name":     "John",
				"last_name":      "Smith",
				"email":          "john@example.com",
				"email_verified": true,
				"account_owner":  true,
				"locale":         "en",
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	httpClient := fpptest.NewServer(t, mux)
	f.pool = fpp.NewClientPool(cfg, zerolog.Nop(),
		fpp.WithHTTPClient(httpClient),
		fpp.WithRetryConfig(fpp.RetryConfig{Wait: time.Millisecond}),
	)

	f.useStorage(f.storage)
	return f
}

// useStorage rebuilds the service on top of storage
func (f *oauthFixture) useStorage(storage ports.SessionStorage) {
	f.service = NewOAuthService(f.cfg, storage, f.pool, zerolog.Nop(),
		WithOAuthClock(func() time.Time { return testNow }),
		WithSessionIDGenerator(func() string { return "pending-online-id" }),
	)
}

// failingStorage delegates to a working store and fails the calls it is told to
type failingStorage struct {
	ports.SessionStorage
	stores atomic.Int32
	// failStoreAt is the 1-based StoreSession call to fail; zero never fails
	failStoreAt int32
	// storeErr is returned by the failing call; nil makes it report false
	storeErr  error
	deleteErr error
}

func (s *failingStorage) StoreSession(ctx context.Context, session *domain.Session) (bool, error) {
	if s.stores.Add(1) == s.failStoreAt {
		return false, s.storeErr
	}
	return s.SessionStorage.StoreSession(ctx, session)
}

func (s *failingStorage) DeleteSession(ctx context.Context, id string) (bool, error) {
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	return s.SessionStorage.DeleteSession(ctx, id)
}

// begin runs BeginAuth and returns the session cookie and the state sent to the platform
func (f *oauthFixture) begin(t *testing.T, isOnline bool) (*http.Cookie, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth?shop="+fpptest.Shop, nil)

	authURL, err := f.service.BeginAuth(rec, req, fpptest.Shop, "/auth/callback", isOnline)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookies.SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)

	return sessionCookie, parsed.Query().Get("state")
}

func signedCallbackQuery(code, state string) AuthQuery {
	values := url.Values{}
	values.Set("code", code)
	values.Set("shop", fpptest.Shop)
	values.Set("state", state)
	values.Set("timestamp", "1648814400")
	values.Set("host", "dGVzdC1zaG9wLm15ZnVucGlucGluLmNvbS9hZG1pbg")
	values.Set("hmac", fpptest.SignQuery(values, fpptest.APISecret))
	return AuthQueryFromValues(values)
}

func callbackRequest(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	if c != nil {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func TestBeginAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("offline", func(t *testing.T) {
		f := newOAuthFixture(t, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth", nil)
		authURL, err := f.service.BeginAuth(rec, req, "https://test-shop.myfunpinpin.com/", "/auth/callback", false)
		require.NoError(t, err)

		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		require.Equal(t, "https", parsed.Scheme)
		require.Equal(t, fpptest.Shop, parsed.Host)
		require.Equal(t, "/admin/oauth/authorize", parsed.Path)

		query := parsed.Query()
		require.Equal(t, fpptest.APIKey, query.Get("client_id"))
		require.Equal(t, "read_products,write_orders", query.Get("scope"))
		require.Equal(t, "https://"+fpptest.HostName+"/auth/callback", query.Get("redirect_uri"))
		require.Equal(t, "code", query.Get("response_type"))
		require.Empty(t, query.Get("grant_options[]"))
		require.Len(t, query.Get("state"), 32)

		session, err := f.storage.LoadSession(ctx, domain.OfflineSessionID(fpptest.Shop))
		require.NoError(t, err)
		require.NotNil(t, session)
		require.Equal(t, query.Get("state"), session.State)
		require.False(t, session.IsOnline)
		require.Empty(t, session.AccessToken)

		cookie := rec.Result().Cookies()[0]
		require.Equal(t, cookies.SessionCookieName, cookie.Name)
		require.True(t, cookie.Secure)
		require.True(t, cookie.HttpOnly)
		require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
		require.Equal(t, 60, cookie.MaxAge)
	})

	t.Run("online", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		_, state := f.begin(t, true)

		session, err := f.storage.LoadSession(ctx, "pending-online-id")
		require.NoError(t, err)
		require.NotNil(t, session)
		require.True(t, session.IsOnline)
		require.Equal(t, state, session.State)
	})

	t.Run("online requests per-user grant", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		rec := httptest.NewRecorder()
		authURL, err := f.service.BeginAuth(rec, httptest.NewRequest(http.MethodGet, "/auth", nil), fpptest.Shop, "/auth/callback", true)
		require.NoError(t, err)

		parsed, err := url.Parse(authURL)
		require.NoError(t, err)
		require.Equal(t, "per-user", parsed.Query().Get("grant_options[]"))
	})

	t.Run("invalid shop", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		_, err := f.service.BeginAuth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth", nil), "evil.example.com", "/auth/callback", false)
		require.ErrorIs(t, err, domain.ErrInvalidShop)
		require.Zero(t, f.storage.Len())
	})

	t.Run("private app", func(t *testing.T) {
		f := newOAuthFixture(t, func(cfg *config.Config) { cfg.IsPrivateApp = true })
		_, err := f.service.BeginAuth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth", nil), fpptest.Shop, "/auth/callback", false)
		require.ErrorIs(t, err, domain.ErrPrivateApp)
	})

	t.Run("uninitialized config", func(t *testing.T) {
		f := newOAuthFixture(t, func(cfg *config.Config) { cfg.APIKey = "" })
		_, err := f.service.BeginAuth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/auth", nil), fpptest.Shop, "/auth/callback", false)
		require.ErrorIs(t, err, domain.ErrUninitializedContext)
	})
}

func TestValidateAuthCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("offline embedded", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, false)

		rec := httptest.NewRecorder()
		session, err := f.service.ValidateAuthCallback(rec, callbackRequest(cookie), signedCallbackQuery("offline-code", state))
		require.NoError(t, err)
		require.Equal(t, domain.OfflineSessionID(fpptest.Shop), session.ID)
		require.Equal(t, "shpat_offline-code", session.AccessToken)
		require.Equal(t, "read_products,write_orders", session.Scope)
		require.Nil(t, session.Expires)
		require.Nil(t, session.OnlineAccessInfo)

		stored, err := f.storage.LoadSession(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, session.AccessToken, stored.AccessToken)

		// embedded apps drop the cookie once the flow completes
		out := rec.Result().Cookies()
		require.Len(t, out, 1)
		require.Equal(t, -1, out[0].MaxAge)
	})

	t.Run("online embedded moves the session to its user id", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, true)

		session, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("online-code", state))
		require.NoError(t, err)
		require.Equal(t, domain.JWTSessionID(fpptest.Shop, "902541635"), session.ID)
		require.True(t, session.IsOnline)
		require.NotNil(t, session.Expires)
		require.Equal(t, testNow.Add(86399*time.Second), *session.Expires)
		require.NotNil(t, session.OnlineAccessInfo)
		require.Equal(t, int64(902541635), session.OnlineAccessInfo.AssociatedUser.ID)
		require.Equal(t, "read_products", session.OnlineAccessInfo.AssociatedUserScope)

		pending, err := f.storage.LoadSession(ctx, "pending-online-id")
		require.NoError(t, err)
		require.Nil(t, pending)

		stored, err := f.storage.LoadSession(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		require.Equal(t, 1, f.storage.Len())
	})

	t.Run("online non-embedded keeps the cookie session", func(t *testing.T) {
		f := newOAuthFixture(t, func(cfg *config.Config) { cfg.IsEmbeddedApp = false })
		cookie, state := f.begin(t, true)

		rec := httptest.NewRecorder()
		session, err := f.service.ValidateAuthCallback(rec, callbackRequest(cookie), signedCallbackQuery("online-code", state))
		require.NoError(t, err)
		require.Equal(t, "pending-online-id", session.ID)

		out := rec.Result().Cookies()
		require.Len(t, out, 1)
		require.Equal(t, 86399, out[0].MaxAge)

		req := callbackRequest(out[0])
		id, err := f.service.GetCurrentSessionID(req, true)
		require.NoError(t, err)
		require.Equal(t, "pending-online-id", id)
	})

	t.Run("missing cookie", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		_, state := f.begin(t, false)

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(nil), signedCallbackQuery("code", state))
		require.ErrorIs(t, err, domain.ErrCookieNotFound)
		require.Zero(t, f.exchanges.Load())
	})

	t.Run("tampered cookie", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, false)
		cookie.Value += "x"

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("code", state))
		require.ErrorIs(t, err, domain.ErrCookieNotFound)
	})

	t.Run("session gone", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, false)
		_, err := f.storage.DeleteSession(ctx, domain.OfflineSessionID(fpptest.Shop))
		require.NoError(t, err)

		_, err = f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("code", state))
		require.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("wrong state", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, _ := f.begin(t, false)

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("code", "not-the-state"))
		require.ErrorIs(t, err, domain.ErrInvalidOAuth)
		require.Zero(t, f.exchanges.Load())
	})

	t.Run("bad hmac", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, false)

		query := signedCallbackQuery("code", state)
		query.Code = "other-code"

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), query)
		require.ErrorIs(t, err, domain.ErrInvalidOAuth)
		require.Zero(t, f.exchanges.Load())
	})

	t.Run("missing hmac", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, false)

		query := signedCallbackQuery("code", state)
		query.Hmac = ""

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), query)
		require.ErrorIs(t, err, domain.ErrInvalidOAuth)
		require.ErrorIs(t, err, domain.ErrInvalidHmac)
	})

	t.Run("shop mismatch", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, false)

		query := signedCallbackQuery("code", state)
		query.Shop = "other-shop.myfunpinpin.com"

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), query)
		require.ErrorIs(t, err, domain.ErrInvalidOAuth)
	})

	t.Run("token exchange failure", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		cookie, state := f.begin(t, false)

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("bad-code", state))
		require.ErrorIs(t, err, domain.ErrHttpResponse)
		require.Equal(t, int32(1), f.exchanges.Load())

		session, err := f.storage.LoadSession(ctx, domain.OfflineSessionID(fpptest.Shop))
		require.NoError(t, err)
		require.Empty(t, session.AccessToken)
	})
}

func TestOAuthSessionStorageFailures(t *testing.T) {
	ctx := context.Background()
	unavailable := errors.New("connection refused")

	beginFails := func(t *testing.T, storeErr error) {
		f := newOAuthFixture(t, nil)
		f.useStorage(&failingStorage{SessionStorage: f.storage, failStoreAt: 1, storeErr: storeErr})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/auth?shop="+fpptest.Shop, nil)
		authURL, err := f.service.BeginAuth(rec, req, fpptest.Shop, "/auth/callback", false)
		require.ErrorIs(t, err, domain.ErrSessionStorage)
		require.Contains(t, err.Error(), "OAuth Session could not be saved")
		require.Empty(t, authURL)
		require.Empty(t, rec.Result().Cookies())
		require.Zero(t, f.storage.Len())
	}

	t.Run("begin when the store reports false", func(t *testing.T) {
		beginFails(t, nil)
	})

	t.Run("begin when the store errors", func(t *testing.T) {
		beginFails(t, unavailable)
	})

	t.Run("embedded online callback cannot delete the pending session", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		f.useStorage(&failingStorage{SessionStorage: f.storage, deleteErr: unavailable})
		cookie, state := f.begin(t, true)

		session, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("online-code", state))
		require.ErrorIs(t, err, domain.ErrSessionStorage)
		require.ErrorIs(t, err, unavailable)
		require.Contains(t, err.Error(), "OAuth Session could not be deleted")
		require.Nil(t, session)
		require.Equal(t, int32(1), f.exchanges.Load())

		stored, err := f.storage.LoadSession(ctx, domain.JWTSessionID(fpptest.Shop, "902541635"))
		require.NoError(t, err)
		require.Nil(t, stored)
	})

	t.Run("callback when the final store reports false", func(t *testing.T) {
		f := newOAuthFixture(t, nil)
		f.useStorage(&failingStorage{SessionStorage: f.storage, failStoreAt: 2})
		cookie, state := f.begin(t, false)

		session, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("offline-code", state))
		require.ErrorIs(t, err, domain.ErrSessionStorage)
		require.Contains(t, err.Error(), "OAuth Session could not be saved")
		require.Nil(t, session)

		// the pending session is left without a token
		stored, err := f.storage.LoadSession(ctx, domain.OfflineSessionID(fpptest.Shop))
		require.NoError(t, err)
		require.NotNil(t, stored)
		require.Empty(t, stored.AccessToken)
	})

	t.Run("callback when the final store errors", func(t *testing.T) {
		f := newOAuthFixture(t, func(cfg *config.Config) { cfg.IsEmbeddedApp = false })
		f.useStorage(&failingStorage{SessionStorage: f.storage, failStoreAt: 2, storeErr: unavailable})
		cookie, state := f.begin(t, true)

		_, err := f.service.ValidateAuthCallback(httptest.NewRecorder(), callbackRequest(cookie), signedCallbackQuery("online-code", state))
		require.ErrorIs(t, err, domain.ErrSessionStorage)
		require.ErrorIs(t, err, unavailable)
	})
}

func TestGetCurrentSessionID(t *testing.T) {
	f := newOAuthFixture(t, nil)
	token := fpptest.SignSessionToken(t, fpptest.SessionTokenClaims(fpptest.Shop, "42", testNow), fpptest.APISecret)

	t.Run("online bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		id, err := f.service.GetCurrentSessionID(req, true)
		require.NoError(t, err)
		require.Equal(t, fpptest.Shop+"_42", id)
	})

	t.Run("offline bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		id, err := f.service.GetCurrentSessionID(req, false)
		require.NoError(t, err)
		require.Equal(t, "offline_"+fpptest.Shop, id)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("Authorization", "Token "+token)

		_, err := f.service.GetCurrentSessionID(req, true)
		require.ErrorIs(t, err, domain.ErrMissingJwtToken)
	})

	t.Run("invalid token", func(t *testing.T) {
		bad := fpptest.SignSessionToken(t, fpptest.SessionTokenClaims(fpptest.Shop, "42", testNow), "wrong-secret")
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("Authorization", "Bearer "+bad)

		_, err := f.service.GetCurrentSessionID(req, true)
		require.ErrorIs(t, err, domain.ErrInvalidJwt)
	})

	t.Run("no credentials", func(t *testing.T) {
		id, err := f.service.GetCurrentSessionID(httptest.NewRequest(http.MethodGet, "/", nil), true)
		require.NoError(t, err)
		require.Empty(t, id)
	})

	t.Run("non-embedded ignores bearer", func(t *testing.T) {
		f := newOAuthFixture(t, func(cfg *config.Config) { cfg.IsEmbeddedApp = false })
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		id, err := f.service.GetCurrentSessionID(req, true)
		require.NoError(t, err)
		require.Empty(t, id)
	})
}

func TestLoadAndDeleteCurrentSession(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, nil)

	session := domain.NewSession(domain.JWTSessionID(fpptest.Shop, "42"), fpptest.Shop, "state", true)
	session.AccessToken = "token"
	_, err := f.service.StoreSession(ctx, session)
	require.NoError(t, err)

	token := fpptest.SignSessionToken(t, fpptest.SessionTokenClaims(fpptest.Shop, "42", testNow), fpptest.APISecret)
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	loaded, err := f.service.LoadCurrentSession(req, true)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "token", loaded.AccessToken)

	deleted, err := f.service.DeleteCurrentSession(req, true)
	require.NoError(t, err)
	require.True(t, deleted)

	loaded, err = f.service.LoadCurrentSession(req, true)
	require.NoError(t, err)
	require.Nil(t, loaded)

	_, err = f.service.DeleteCurrentSession(httptest.NewRequest(http.MethodGet, "/", nil), true)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestOfflineSessions(t *testing.T) {
	ctx := context.Background()
	f := newOAuthFixture(t, nil)

	t.Run("offline session id", func(t *testing.T) {
		id, err := f.service.GetOfflineSessionID("https://test-shop.myfunpinpin.com")
		require.NoError(t, err)
		require.Equal(t, "offline_"+fpptest.Shop, id)

		_, err = f.service.GetOfflineSessionID("not a shop")
		require.ErrorIs(t, err, domain.ErrInvalidShop)
	})

	t.Run("expired sessions are hidden unless requested", func(t *testing.T) {
		expired := testNow.Add(-time.Minute)
		session := domain.NewSession(domain.OfflineSessionID(fpptest.Shop), fpptest.Shop, "state", false)
		session.Expires = &expired
		_, err := f.service.StoreSession(ctx, session)
		require.NoError(t, err)

		loaded, err := f.service.LoadOfflineSession(ctx, fpptest.Shop, false)
		require.NoError(t, err)
		require.Nil(t, loaded)

		loaded, err = f.service.LoadOfflineSession(ctx, fpptest.Shop, true)
		require.NoError(t, err)
		require.NotNil(t, loaded)
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := f.service.DeleteOfflineSession(ctx, fpptest.Shop)
		require.NoError(t, err)
		require.True(t, deleted)

		loaded, err := f.service.LoadOfflineSession(ctx, fpptest.Shop, true)
		require.NoError(t, err)
		require.Nil(t, loaded)
	})
}
