package entity

import (
	"time"

	"fpp-app-layer/internal/domain"
)

// MongoSessionDoc represents an OAuth session in MongoDB
type MongoSessionDoc struct {
	ID               string                   `bson:"_id,omitempty"`
	Shop             string                   `bson:"shop"`
	State            string                   `bson:"state"`
	IsOnline         bool                     `bson:"isOnline"`
	Scope            string                   `bson:"scope,omitempty"`
	Expires          *time.Time               `bson:"expires,omitempty"`
	AccessToken      string                   `bson:"accessToken,omitempty"`
	OnlineAccessInfo *domain.OnlineAccessInfo `bson:"onlineAccessInfo,omitempty"`
	CreatedAt        time.Time                `bson:"createdAt,omitempty"`
	UpdatedAt        time.Time                `bson:"updatedAt"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoSessionDoc) ToDomain() *domain.Session {
	session := &domain.Session{
		ID:          d.ID,
		Shop:        d.Shop,
		State:       d.State,
		IsOnline:    d.IsOnline,
		Scope:       d.Scope,
		AccessToken: d.AccessToken,
	}
	if d.Expires != nil {
		expires := d.Expires.UTC()
		session.Expires = &expires
	}
	if d.OnlineAccessInfo != nil {
		info := *d.OnlineAccessInfo
		session.OnlineAccessInfo = &info
	}
	return session
}

// MongoSessionDocFromDomain converts a domain entity to a MongoDB document
func MongoSessionDocFromDomain(session *domain.Session) *MongoSessionDoc {
	return &MongoSessionDoc{
		ID:               session.ID,
		Shop:             session.Shop,
		State:            session.State,
		IsOnline:         session.IsOnline,
		Scope:            session.Scope,
		Expires:          session.Expires,
		AccessToken:      session.AccessToken,
		OnlineAccessInfo: session.OnlineAccessInfo,
	}
}
