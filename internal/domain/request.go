package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DataType is the declared content type of a request body
type DataType string

const (
	DataTypeJSON       DataType = "application/json"
	DataTypeGraphQL    DataType = "application/graphql"
	DataTypeURLEncoded DataType = "application/x-www-form-urlencoded"
)

// RequestParams describes one platform API call
type RequestParams struct {
	Method       string
	Path         string
	Type         DataType
	Data         any
	Query        url.Values
	ExtraHeaders map[string]string
	// Tries is the total number of attempts; zero means one.
	Tries int
}

// Response is a successful platform response
type Response struct {
	Body    any
	Raw     []byte
	Headers http.Header
}

// Decode unmarshals the raw body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
