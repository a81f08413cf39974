package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// User is the identity record returned by the members endpoint.
//
// Only the fields needed for display are decoded. The original JSON is kept
// verbatim so that a save/restore round trip does not drop fields this
// package knows nothing about.
type User struct {
	ID         int64  `json:"id"`
	MemberName string `json:"membername,omitempty"`
	Email      string `json:"email,omitempty"`
	Nickname   string `json:"nickname,omitempty"`

	raw json.RawMessage
}

// userFields has the same fields as User without its JSON methods.
type userFields User

// UnmarshalJSON decodes the display fields and keeps the raw payload.
func (u *User) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ErrInvalidUser
	}

	var fields userFields
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}

	*u = User(fields)
	u.raw = append(json.RawMessage(nil), trimmed...)

	return nil
}

// MarshalJSON returns the payload the user was decoded from, or the display
// fields for users built in code.
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.raw) > 0 {
		return u.raw, nil
	}
	return json.Marshal(userFields(u))
}

// DisplayName is the member name, falling back to the email address.
func (u User) DisplayName() string {
	if u.MemberName != "" {
		return u.MemberName
	}
	return u.Email
}

// Raw returns the JSON the user was decoded from, if any.
func (u User) Raw() json.RawMessage {
	return u.raw
}

// Snapshot is a read-only copy of the session for presentation code.
type Snapshot struct {
	User     User
	LoggedIn bool
}
