package strapi

import "encoding/json"

// DefaultErrorMessage is used when Strapi's error body carries no message
const DefaultErrorMessage = "Failed to execute query"

// APIError is a non-2xx response from Strapi
type APIError struct {
	Status  int             `json:"status"`
	Name    string          `json:"name,omitempty"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// Error returns the message Strapi reported, which is what editors see
func (e *APIError) Error() string {
	return e.Message
}
