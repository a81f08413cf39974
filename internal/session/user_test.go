package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_UnmarshalJSON(t *testing.T) {
	payload := `{"id":3,"membername":"deckhand","email":"deck@example.com","nickname":"Deck","role":"USER","createdAt":"2026-01-02T03:04:05"}`

	var user User
	require.NoError(t, json.Unmarshal([]byte(payload), &user))

	assert.Equal(t, int64(3), user.ID)
	assert.Equal(t, "deckhand", user.MemberName)
	assert.Equal(t, "deck@example.com", user.Email)
	assert.Equal(t, "Deck", user.Nickname)

	// Unknown fields survive a round trip
	data, err := json.Marshal(user)
	require.NoError(t, err)
	assert.JSONEq(t, payload, string(data))
	assert.JSONEq(t, payload, string(user.Raw()))
}

func TestUser_UnmarshalJSON_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "array", payload: `[1,2]`},
		{name: "string", payload: `"deckhand"`},
		{name: "number", payload: `42`},
		{name: "null", payload: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var user User
			err := json.Unmarshal([]byte(tt.payload), &user)
			assert.ErrorIs(t, err, ErrInvalidUser)
		})
	}
}

func TestUser_MarshalJSON_BuiltInCode(t *testing.T) {
	data, err := json.Marshal(User{ID: 1, Email: "a@example.com"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"email":"a@example.com"}`, string(data))
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "deckhand", User{MemberName: "deckhand", Email: "deck@example.com"}.DisplayName())
	assert.Equal(t, "deck@example.com", User{Email: "deck@example.com"}.DisplayName())
	assert.Empty(t, User{}.DisplayName())
}

func TestDecodeAPIError(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusForbidden)
		_, _ = rec.WriteString(`{"code":"M003","message":"not a crew member","status":403,"detail":"crew 9","timestamp":"2026-10-01T00:00:00"}`)

		apiErr := DecodeAPIError(rec.Result())
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "M003", apiErr.Code)
		assert.Equal(t, "crew 9", apiErr.Detail)
		assert.Equal(t, "api error 403 (M003): not a crew member", apiErr.Error())
	})

	t.Run("plain body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusBadGateway)
		_, _ = rec.WriteString("upstream down")

		apiErr := DecodeAPIError(rec.Result())
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.Equal(t, "api error 502: upstream down", apiErr.Error())
	})

	t.Run("empty body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusUnauthorized)

		apiErr := DecodeAPIError(rec.Result())
		assert.Equal(t, "api error 401: Unauthorized", apiErr.Error())
	})
}
