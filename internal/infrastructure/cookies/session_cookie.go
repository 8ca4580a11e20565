package cookies

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// SessionCookieName is the cookie carrying the session id between OAuth begin and callback
const SessionCookieName = "fpp_app_session"

// cookieValue is the signed payload; Expires is a unix time, zero for browser session cookies
type cookieValue struct {
	ID      string `json:"id"`
	Expires int64  `json:"exp,omitempty"`
}

// SessionCookie reads and writes the signed session id cookie
type SessionCookie struct {
	codec *securecookie.SecureCookie
	now   func() time.Time
}

// NewSessionCookie creates a cookie codec signing with hashKey; now may be nil
func NewSessionCookie(hashKey []byte, now func() time.Time) *SessionCookie {
	if now == nil {
		now = time.Now
	}
	// expiry is carried in the payload and checked against now
	codec := securecookie.New(hashKey, nil).
		SetSerializer(securecookie.JSONEncoder{}).
		MaxAge(0)
	return &SessionCookie{codec: codec, now: now}
}

// Set writes sessionID signed; a nil expires makes a browser session cookie.
// The expiry is signed with the id, so Get rejects the cookie once it passes
// even if the browser keeps sending it.
func (c *SessionCookie) Set(w http.ResponseWriter, sessionID string, expires *time.Time) error {
	payload := cookieValue{ID: sessionID}
	if expires != nil {
		payload.Expires = expires.Unix()
	}
	value, err := c.codec.Encode(SessionCookieName, payload)
	if err != nil {
		return fmt.Errorf("failed to sign session cookie: %w", err)
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if expires != nil {
		cookie.Expires = expires.UTC()
		maxAge := int(expires.Sub(c.now()).Seconds())
		if maxAge <= 0 {
			maxAge = -1
		}
		cookie.MaxAge = maxAge
	}

	http.SetCookie(w, cookie)
	return nil
}

// SetFor writes sessionID expiring after ttl
func (c *SessionCookie) SetFor(w http.ResponseWriter, sessionID string, ttl time.Duration) error {
	expires := c.now().Add(ttl)
	return c.Set(w, sessionID, &expires)
}

// Expire writes sessionID with an expiry of now so the browser drops it
func (c *SessionCookie) Expire(w http.ResponseWriter, sessionID string) error {
	expires := c.now()
	return c.Set(w, sessionID, &expires)
}

// Get returns the verified session id, or "" when the cookie is absent,
// tampered with or past its signed expiry
func (c *SessionCookie) Get(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}

	var payload cookieValue
	if err := c.codec.Decode(SessionCookieName, cookie.Value, &payload); err != nil {
		return ""
	}
	if payload.Expires != 0 && !c.now().Before(time.Unix(payload.Expires, 0)) {
		return ""
	}
	return payload.ID
}
