package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the session storage
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// SessionItem mirrors the DynamoDB item layout.
// ExpiresAt is epoch seconds so it can back the table's TTL attribute.
type SessionItem struct {
	PK               string `dynamodbav:"PK"`
	Shop             string `dynamodbav:"Shop"`
	State            string `dynamodbav:"State"`
	IsOnline         bool   `dynamodbav:"IsOnline"`
	Scope            string `dynamodbav:"Scope,omitempty"`
	ExpiresAt        int64  `dynamodbav:"ExpiresAt,omitempty"`
	AccessToken      string `dynamodbav:"AccessToken,omitempty"`
	OnlineAccessInfo string `dynamodbav:"OnlineAccessInfo,omitempty"`
}

// DynamoDBSessionStorage implements SessionStorage using a DynamoDB table keyed by PK
type DynamoDBSessionStorage struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoDBSessionStorage creates a new DynamoDB session storage
func NewDynamoDBSessionStorage(client DynamoDBAPI, table string) *DynamoDBSessionStorage {
	return &DynamoDBSessionStorage{client: client, table: table}
}

var _ ports.SessionStorage = (*DynamoDBSessionStorage)(nil)

func sessionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "SESSION#" + id},
	}
}

// StoreSession saves or replaces a session
func (s *DynamoDBSessionStorage) StoreSession(ctx context.Context, session *domain.Session) (bool, error) {
	item := SessionItem{
		PK:          "SESSION#" + session.ID,
		Shop:        session.Shop,
		State:       session.State,
		IsOnline:    session.IsOnline,
		Scope:       session.Scope,
		AccessToken: session.AccessToken,
	}
	if session.Expires != nil {
		item.ExpiresAt = session.Expires.Unix()
	}
	if session.OnlineAccessInfo != nil {
		info, err := json.Marshal(session.OnlineAccessInfo)
		if err != nil {
			return false, fmt.Errorf("failed to encode online access info: %w", err)
		}
		item.OnlineAccessInfo = string(info)
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	return true, nil
}

// LoadSession retrieves a session by id
func (s *DynamoDBSessionStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            sessionKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item SessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	session := &domain.Session{
		ID:          id,
		Shop:        item.Shop,
		State:       item.State,
		IsOnline:    item.IsOnline,
		Scope:       item.Scope,
		AccessToken: item.AccessToken,
	}
	if item.ExpiresAt > 0 {
		expires := time.Unix(item.ExpiresAt, 0).UTC()
		session.Expires = &expires
	}
	if item.OnlineAccessInfo != "" {
		session.OnlineAccessInfo = &domain.OnlineAccessInfo{}
		if err := json.Unmarshal([]byte(item.OnlineAccessInfo), session.OnlineAccessInfo); err != nil {
			return nil, fmt.Errorf("failed to decode online access info: %w", err)
		}
	}
	return session, nil
}

// DeleteSession deletes a session by id
func (s *DynamoDBSessionStorage) DeleteSession(ctx context.Context, id string) (bool, error) {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       sessionKey(id),
	}); err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return true, nil
}
