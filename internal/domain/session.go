package domain

import (
	"fmt"
	"time"
)

// Session represents the OAuth state of one shop, or one shop user for online access
type Session struct {
	ID               string            `json:"id" bson:"_id"`
	Shop             string            `json:"shop" bson:"shop"`
	State            string            `json:"state" bson:"state"`
	IsOnline         bool              `json:"is_online" bson:"is_online"`
	Scope            string            `json:"scope,omitempty" bson:"scope,omitempty"`
	Expires          *time.Time        `json:"expires,omitempty" bson:"expires,omitempty"`
	AccessToken      string            `json:"access_token,omitempty" bson:"access_token,omitempty"`
	OnlineAccessInfo *OnlineAccessInfo `json:"online_access_info,omitempty" bson:"online_access_info,omitempty"`
}

// OnlineAccessInfo holds the user association returned with an online access token
type OnlineAccessInfo struct {
	ExpiresIn           int64          `json:"expires_in" bson:"expires_in"`
	AssociatedUserScope string         `json:"associated_user_scope" bson:"associated_user_scope"`
	AssociatedUser      AssociatedUser `json:"associated_user" bson:"associated_user"`
}

// AssociatedUser is the shop staff member an online token was issued for
type AssociatedUser struct {
	ID            int64  `json:"id" bson:"id"`
	FirstName     string `json:"first_name" bson:"first_name"`
	LastName      string `json:"last_name" bson:"last_name"`
	Email         string `json:"email" bson:"email"`
	EmailVerified bool   `json:"email_verified" bson:"email_verified"`
	AccountOwner  bool   `json:"account_owner" bson:"account_owner"`
	Locale        string `json:"locale" bson:"locale"`
	Collaborator  bool   `json:"collaborator" bson:"collaborator"`
}

// NewSession creates a pending session awaiting the OAuth callback
func NewSession(id, shop, state string, isOnline bool) *Session {
	return &Session{
		ID:       id,
		Shop:     shop,
		State:    state,
		IsOnline: isOnline,
	}
}

// OfflineSessionID returns the deterministic id of a shop's offline session
func OfflineSessionID(shop string) string {
	return "offline_" + shop
}

// JWTSessionID returns the id an embedded app resolves for an online session
func JWTSessionID(shop, userID string) string {
	return fmt.Sprintf("%s_%s", shop, userID)
}

// Clone returns a deep copy of the session stored under a new id
func (s *Session) Clone(id string) *Session {
	c := *s
	c.ID = id
	if s.Expires != nil {
		expires := *s.Expires
		c.Expires = &expires
	}
	if s.OnlineAccessInfo != nil {
		info := *s.OnlineAccessInfo
		c.OnlineAccessInfo = &info
	}
	return &c
}

// IsExpired reports whether the session carries an expiry at or before now
func (s *Session) IsExpired(now time.Time) bool {
	return s.Expires != nil && !s.Expires.After(now)
}

// IsActive reports whether the session holds a usable access token
func (s *Session) IsActive(now time.Time) bool {
	return s.AccessToken != "" && !s.IsExpired(now)
}
