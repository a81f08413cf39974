package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Sentinel errors
var (
	// ErrNotLoggedIn is returned when an operation needs a held session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrMissingToken is returned when a response carries no bearer token.
	ErrMissingToken = errors.New("response did not include a bearer token")

	// ErrInvalidUser is returned when an identity payload is not a JSON object.
	ErrInvalidUser = errors.New("invalid user record")

	// ErrMalformedToken is returned when an access token cannot be decoded.
	ErrMalformedToken = errors.New("malformed access token")
)

// maxErrorBody caps how much of an error response is read for decoding.
const maxErrorBody = 64 << 10

// APIError is the error body returned by the JobCrew API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Status     int    `json:"status,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// DecodeAPIError reads the body of a non-success response into an APIError.
// Bodies that are not the API's JSON error shape still yield an APIError
// carrying the status code.
func DecodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if resp.Body == nil {
		return apiErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	if err := json.Unmarshal(data, apiErr); err != nil {
		apiErr.Message = string(data)
	}
	apiErr.StatusCode = resp.StatusCode

	return apiErr
}
