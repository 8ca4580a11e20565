package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies every failure the app layer can surface
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUninitializedContext
	KindPrivateApp
	KindMissingRequiredArgument
	KindInvalidShop
	KindInvalidHmac
	KindInvalidOAuth
	KindInvalidJwt
	KindMissingJwtToken
	KindSafeCompare
	KindCookieNotFound
	KindSessionNotFound
	KindSessionStorage
	KindHttpRequest
	KindHttpResponse
	KindHttpInternal
	KindHttpThrottling
	KindHttpMaxRetries
	KindGraphqlQuery
	KindInvalidWebhook
	KindUnsupportedClientType
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                 "Unknown",
	KindUninitializedContext:    "UninitializedContext",
	KindPrivateApp:              "PrivateApp",
	KindMissingRequiredArgument: "MissingRequiredArgument",
	KindInvalidShop:             "InvalidShop",
	KindInvalidHmac:             "InvalidHmac",
	KindInvalidOAuth:            "InvalidOAuth",
	KindInvalidJwt:              "InvalidJwt",
	KindMissingJwtToken:         "MissingJwtToken",
	KindSafeCompare:             "SafeCompare",
	KindCookieNotFound:          "CookieNotFound",
	KindSessionNotFound:         "SessionNotFound",
	KindSessionStorage:          "SessionStorage",
	KindHttpRequest:             "HttpRequest",
	KindHttpResponse:            "HttpResponse",
	KindHttpInternal:            "HttpInternal",
	KindHttpThrottling:          "HttpThrottling",
	KindHttpMaxRetries:          "HttpMaxRetries",
	KindGraphqlQuery:            "GraphqlQuery",
	KindInvalidWebhook:          "InvalidWebhook",
	KindUnsupportedClientType:   "UnsupportedClientType",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the single error type returned by the app layer.
// Retriable and RetryAfter drive the HTTP client's retry loop; StatusCode and
// StatusText are set for errors built from a platform response.
type Error struct {
	Kind       ErrorKind
	Message    string
	Retriable  bool
	RetryAfter time.Duration
	StatusCode int
	StatusText string
	Err        error
}

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrUninitializedContext    = &Error{Kind: KindUninitializedContext}
	ErrPrivateApp              = &Error{Kind: KindPrivateApp}
	ErrMissingRequiredArgument = &Error{Kind: KindMissingRequiredArgument}
	ErrInvalidShop             = &Error{Kind: KindInvalidShop}
	ErrInvalidHmac             = &Error{Kind: KindInvalidHmac}
	ErrInvalidOAuth            = &Error{Kind: KindInvalidOAuth}
	ErrInvalidJwt              = &Error{Kind: KindInvalidJwt}
	ErrMissingJwtToken         = &Error{Kind: KindMissingJwtToken}
	ErrSafeCompare             = &Error{Kind: KindSafeCompare}
	ErrCookieNotFound          = &Error{Kind: KindCookieNotFound}
	ErrSessionNotFound         = &Error{Kind: KindSessionNotFound}
	ErrSessionStorage          = &Error{Kind: KindSessionStorage}
	ErrHttpRequest             = &Error{Kind: KindHttpRequest}
	ErrHttpResponse            = &Error{Kind: KindHttpResponse}
	ErrHttpInternal            = &Error{Kind: KindHttpInternal}
	ErrHttpThrottling          = &Error{Kind: KindHttpThrottling}
	ErrHttpMaxRetries          = &Error{Kind: KindHttpMaxRetries}
	ErrGraphqlQuery            = &Error{Kind: KindGraphqlQuery}
	ErrInvalidWebhook          = &Error{Kind: KindInvalidWebhook}
	ErrUnsupportedClientType   = &Error{Kind: KindUnsupportedClientType}
)

// NewError creates an error of the given kind with a formatted message
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an error of the given kind around a cause
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetriable reports whether err is a retriable platform failure
func IsRetriable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retriable
}

// HTTPStatus maps an error to the status an HTTP handler should answer with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindCookieNotFound, KindSessionNotFound, KindMissingJwtToken, KindInvalidJwt:
		return http.StatusUnauthorized
	case KindInvalidShop, KindInvalidOAuth, KindInvalidHmac, KindMissingRequiredArgument:
		return http.StatusBadRequest
	case KindInvalidWebhook:
		return http.StatusForbidden
	case KindHttpThrottling:
		return http.StatusTooManyRequests
	case KindHttpRequest, KindHttpResponse, KindHttpInternal, KindHttpMaxRetries, KindGraphqlQuery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
