package application

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"fpp-app-layer/internal/config"
	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/infrastructure/cookies"
	"fpp-app-layer/internal/infrastructure/fpp"
	"fpp-app-layer/internal/infrastructure/metrics"
	"fpp-app-layer/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	pendingCookieLifetime = 60 * time.Second
	accessTokenPath       = "/admin/oauth/access_token"
)

var bearerPattern = regexp.MustCompile(`^Bearer (.+)$`)

// AuthQuery is the query string the platform appends to the OAuth callback
type AuthQuery struct {
	Code      string
	Shop      string
	State     string
	Timestamp string
	Host      string
	Hmac      string
}

// AuthQueryFromValues extracts the callback parameters from a parsed query
func AuthQueryFromValues(values url.Values) AuthQuery {
	return AuthQuery{
		Code:      values.Get("code"),
		Shop:      values.Get("shop"),
		State:     values.Get("state"),
		Timestamp: values.Get("timestamp"),
		Host:      values.Get("host"),
		Hmac:      values.Get("hmac"),
	}
}

// Values returns the non-empty parameters as url.Values
func (q AuthQuery) Values() url.Values {
	values := url.Values{}
	for key, value := range map[string]string{
		"code":      q.Code,
		"shop":      q.Shop,
		"state":     q.State,
		"timestamp": q.Timestamp,
		"host":      q.Host,
		"hmac":      q.Hmac,
	} {
		if value != "" {
			values.Set(key, value)
		}
	}
	return values
}

type accessTokenResponse struct {
	AccessToken         string                `json:"access_token"`
	Scope               string                `json:"scope"`
	ExpiresIn           int64                 `json:"expires_in"`
	AssociatedUserScope string                `json:"associated_user_scope"`
	AssociatedUser      domain.AssociatedUser `json:"associated_user"`
}

// OAuthService runs the authorization code flow and resolves the session of a request
type OAuthService struct {
	cfg      *config.Config
	storage  ports.SessionStorage
	clients  ports.ClientProvider
	cookie   *cookies.SessionCookie
	tokens   *fpp.SessionTokenDecoder
	verifier *fpp.CallbackVerifier
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

// OAuthOption configures an OAuthService
type OAuthOption func(*OAuthService)

// WithOAuthClock replaces the wall clock used for expiries, cookies and token validation
func WithOAuthClock(now func() time.Time) OAuthOption {
	return func(s *OAuthService) { s.now = now }
}

func WithOAuthMetrics(m *metrics.Metrics) OAuthOption {
	return func(s *OAuthService) { s.metrics = m }
}

// WithSessionIDGenerator replaces the random id generator for online sessions
func WithSessionIDGenerator(newID func() string) OAuthOption {
	return func(s *OAuthService) { s.newID = newID }
}

// NewOAuthService creates a new OAuth service
func NewOAuthService(
	cfg *config.Config,
	storage ports.SessionStorage,
	clients ports.ClientProvider,
	logger zerolog.Logger,
	opts ...OAuthOption,
) *OAuthService {
	s := &OAuthService{
		cfg:     cfg,
		storage: storage,
		clients: clients,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.cookie = cookies.NewSessionCookie(cfg.CookieSigningKey(), s.now)
	s.tokens = fpp.NewSessionTokenDecoder(cfg.APIKey, cfg.APISecretKey, s.now)
	s.verifier = fpp.NewCallbackVerifier(cfg.APIKey, cfg.APISecretKey)
	return s
}

// BeginAuth stores a pending session, sets the session cookie and returns the authorize URL
func (s *OAuthService) BeginAuth(w http.ResponseWriter, r *http.Request, shop, redirectPath string, isOnline bool) (string, error) {
	if err := s.cfg.RequireOAuthApp("perform OAuth"); err != nil {
		return "", err
	}

	cleanShop := domain.SanitizeShop(shop)
	if cleanShop == "" {
		return "", domain.NewError(domain.KindInvalidShop, "Shop %s is not a valid shop domain", shop)
	}

	state, err := fpp.Nonce()
	if err != nil {
		return "", err
	}

	sessionID := domain.OfflineSessionID(cleanShop)
	if isOnline {
		sessionID = s.newID()
	}
	session := domain.NewSession(sessionID, cleanShop, state, isOnline)

	if err := s.persist(r.Context(), session, "OAuth Session could not be saved. Please check your session storage functionality."); err != nil {
		return "", err
	}

	if err := s.cookie.SetFor(w, session.ID, pendingCookieLifetime); err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("client_id", s.cfg.APIKey)
	query.Set("scope", s.cfg.ScopeString())
	query.Set("redirect_uri", "https://"+s.cfg.HostName+redirectPath)
	query.Set("state", state)
	query.Set("response_type", "code")
	if isOnline {
		query.Set("grant_options[]", "per-user")
	}

	s.logger.Info().
		Str("shop", cleanShop).
		Bool("online", isOnline).
		Str("sessionId", session.ID).
		Msg("Starting OAuth flow")

	return fpp.AuthorizeURL(cleanShop, query), nil
}

// ValidateAuthCallback exchanges the authorization code and finalizes the pending session
func (s *OAuthService) ValidateAuthCallback(w http.ResponseWriter, r *http.Request, query AuthQuery) (*domain.Session, error) {
	if err := s.cfg.RequireOAuthApp("perform OAuth"); err != nil {
		return nil, err
	}
	ctx := r.Context()

	sessionID := s.cookie.Get(r)
	if sessionID == "" {
		return nil, domain.NewError(domain.KindCookieNotFound,
			"Cannot complete OAuth process. Could not find an OAuth cookie for shop url: %s", query.Shop)
	}

	session, err := s.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.KindSessionStorage, err, "Failed to load OAuth session")
	}
	if session == nil {
		return nil, domain.NewError(domain.KindSessionNotFound,
			"Cannot complete OAuth process. No session found for the specified shop url: %s", query.Shop)
	}

	if err := s.validateQuery(query, session); err != nil {
		return nil, err
	}

	token, err := s.exchangeCode(ctx, session.Shop, query.Code)
	if err != nil {
		return nil, err
	}

	session.AccessToken = token.AccessToken
	session.Scope = token.Scope

	if session.IsOnline {
		expires := s.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		session.Expires = &expires
		session.OnlineAccessInfo = &domain.OnlineAccessInfo{
			ExpiresIn:           token.ExpiresIn,
			AssociatedUserScope: token.AssociatedUserScope,
			AssociatedUser:      token.AssociatedUser,
		}

		if s.cfg.IsEmbeddedApp {
			pendingID := session.ID
			session = session.Clone(domain.JWTSessionID(session.Shop, strconv.FormatInt(token.AssociatedUser.ID, 10)))

			deleted, err := s.storage.DeleteSession(ctx, pendingID)
			if err != nil || !deleted {
				return nil, domain.WrapError(domain.KindSessionStorage, err,
					"OAuth Session could not be deleted. Please check your session storage functionality.")
			}
		}
	}

	if s.cfg.IsEmbeddedApp {
		err = s.cookie.Expire(w, session.ID)
	} else {
		err = s.cookie.Set(w, session.ID, session.Expires)
	}
	if err != nil {
		return nil, err
	}

	if err := s.persist(ctx, session, "OAuth Session could not be saved. Please check your session storage functionality."); err != nil {
		return nil, err
	}

	s.metrics.OAuthCompletion(session.IsOnline)
	s.logger.Info().
		Str("shop", session.Shop).
		Str("sessionId", session.ID).
		Bool("online", session.IsOnline).
		Str("scope", session.Scope).
		Msg("OAuth flow completed")

	return session, nil
}

func (s *OAuthService) validateQuery(query AuthQuery, session *domain.Session) error {
	if !domain.ValidateShop(query.Shop) || domain.SanitizeShop(query.Shop) != session.Shop {
		return domain.NewError(domain.KindInvalidOAuth, "Invalid OAuth callback: shop %q does not match the pending session", query.Shop)
	}

	valid, err := s.verifier.ValidateHmac(query.Values())
	if err != nil {
		return domain.WrapError(domain.KindInvalidOAuth, err, "Invalid OAuth callback")
	}
	if !valid {
		return domain.NewError(domain.KindInvalidOAuth, "Invalid OAuth callback: HMAC validation failed")
	}

	stateMatches, err := fpp.SafeCompare(query.State, session.State)
	if err != nil {
		return domain.WrapError(domain.KindInvalidOAuth, err, "Invalid OAuth callback")
	}
	if !stateMatches {
		return domain.NewError(domain.KindInvalidOAuth, "Invalid OAuth callback: state does not match")
	}
	return nil
}

func (s *OAuthService) exchangeCode(ctx context.Context, shop, code string) (*accessTokenResponse, error) {
	client, err := s.clients.GetClient(shop)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(ctx, domain.RequestParams{
		Path: accessTokenPath,
		Type: domain.DataTypeJSON,
		Data: map[string]string{
			"client_id":     s.cfg.APIKey,
			"client_secret": s.cfg.APISecretKey,
			"code":          code,
		},
	})
	if err != nil {
		return nil, err
	}

	var token accessTokenResponse
	if err := resp.Decode(&token); err != nil {
		return nil, domain.WrapError(domain.KindHttpRequest, err, "Invalid access token response")
	}
	if token.AccessToken == "" {
		return nil, domain.NewError(domain.KindInvalidOAuth, "Access token response for %s did not contain a token", shop)
	}
	return &token, nil
}

// GetCurrentSessionID resolves the session id from a bearer session token (embedded apps)
// or from the signed cookie. An empty id with a nil error means no session is attached.
func (s *OAuthService) GetCurrentSessionID(r *http.Request, isOnline bool) (string, error) {
	if s.cfg.IsEmbeddedApp {
		if authHeader := r.Header.Get(domain.HeaderAuthorization); authHeader != "" {
			match := bearerPattern.FindStringSubmatch(authHeader)
			if match == nil {
				return "", domain.NewError(domain.KindMissingJwtToken, "Missing Bearer token in authorization header")
			}

			claims, err := s.tokens.Decode(match[1])
			if err != nil {
				return "", err
			}

			shop := claims.Shop()
			if isOnline {
				return domain.JWTSessionID(shop, claims.Subject), nil
			}
			return domain.OfflineSessionID(shop), nil
		}
	}

	return s.cookie.Get(r), nil
}

// GetOfflineSessionID returns the offline session id for shop
func (s *OAuthService) GetOfflineSessionID(shop string) (string, error) {
	cleanShop := domain.SanitizeShop(shop)
	if cleanShop == "" {
		return "", domain.NewError(domain.KindInvalidShop, "Shop %s is not a valid shop domain", shop)
	}
	return domain.OfflineSessionID(cleanShop), nil
}

// LoadCurrentSession loads the session attached to the request; nil when there is none
func (s *OAuthService) LoadCurrentSession(r *http.Request, isOnline bool) (*domain.Session, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	sessionID, err := s.GetCurrentSessionID(r, isOnline)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.storage.LoadSession(r.Context(), sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.KindSessionStorage, err, "Failed to load session %s", sessionID)
	}
	return session, nil
}

// DeleteCurrentSession deletes the session attached to the request
func (s *OAuthService) DeleteCurrentSession(r *http.Request, isOnline bool) (bool, error) {
	if err := s.cfg.Validate(); err != nil {
		return false, err
	}

	sessionID, err := s.GetCurrentSessionID(r, isOnline)
	if err != nil {
		return false, err
	}
	if sessionID == "" {
		return false, domain.NewError(domain.KindSessionNotFound, "No active session found.")
	}

	return s.deleteSession(r.Context(), sessionID)
}

// LoadOfflineSession loads the shop's offline session, hiding expired ones unless includeExpired
func (s *OAuthService) LoadOfflineSession(ctx context.Context, shop string, includeExpired bool) (*domain.Session, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	sessionID, err := s.GetOfflineSessionID(shop)
	if err != nil {
		return nil, err
	}

	session, err := s.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, domain.WrapError(domain.KindSessionStorage, err, "Failed to load session %s", sessionID)
	}
	if session != nil && !includeExpired && session.IsExpired(s.now()) {
		return nil, nil
	}
	return session, nil
}

// DeleteOfflineSession deletes the shop's offline session
func (s *OAuthService) DeleteOfflineSession(ctx context.Context, shop string) (bool, error) {
	if err := s.cfg.Validate(); err != nil {
		return false, err
	}

	sessionID, err := s.GetOfflineSessionID(shop)
	if err != nil {
		return false, err
	}
	return s.deleteSession(ctx, sessionID)
}

// StoreSession persists a session through the configured storage
func (s *OAuthService) StoreSession(ctx context.Context, session *domain.Session) (bool, error) {
	if err := s.cfg.Validate(); err != nil {
		return false, err
	}

	stored, err := s.storage.StoreSession(ctx, session)
	if err != nil {
		return false, domain.WrapError(domain.KindSessionStorage, err, "Failed to store session %s", session.ID)
	}
	return stored, nil
}

func (s *OAuthService) deleteSession(ctx context.Context, sessionID string) (bool, error) {
	deleted, err := s.storage.DeleteSession(ctx, sessionID)
	if err != nil {
		return false, domain.WrapError(domain.KindSessionStorage, err, "Failed to delete session %s", sessionID)
	}
	return deleted, nil
}

func (s *OAuthService) persist(ctx context.Context, session *domain.Session, message string) error {
	stored, err := s.storage.StoreSession(ctx, session)
	if err != nil {
		return domain.WrapError(domain.KindSessionStorage, err, "%s", message)
	}
	if !stored {
		return domain.NewError(domain.KindSessionStorage, "%s", message)
	}
	return nil
}
