package aceconnect

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   APIError
	}{
		{
			name:   "error string",
			status: 400,
			body:   `{"error":"Missing fields"}`,
			want:   APIError{StatusCode: 400, Message: "Missing fields"},
		},
		{
			name:   "message key with code",
			status: 409,
			body:   `{"message":"Invitation already sent","code":"INVITATION_ALREADY_SENT"}`,
			want:   APIError{StatusCode: 409, Code: CodeInvitationAlreadySent, Message: "Invitation already sent"},
		},
		{
			name:   "nested error object",
			status: 422,
			body:   `{"error":{"message":"bad rating","code":"INVALID_NTRP"}}`,
			want:   APIError{StatusCode: 422, Code: "INVALID_NTRP", Message: "bad rating"},
		},
		{
			name:   "verification flag",
			status: 403,
			body:   `{"error":"Please verify your email","requiresVerification":true}`,
			want:   APIError{StatusCode: 403, Message: "Please verify your email", RequiresVerification: true},
		},
		{
			name:   "non-json body",
			status: 502,
			body:   `<html>Bad Gateway</html>`,
			want:   APIError{StatusCode: 502, Message: http.StatusText(502)},
		},
		{
			name:   "empty body",
			status: 500,
			body:   ``,
			want:   APIError{StatusCode: 500, Message: http.StatusText(500)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAPIError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestAPIErrorCategories(t *testing.T) {
	assert.ErrorIs(t, &APIError{StatusCode: 401}, ErrAuth)
	assert.ErrorIs(t, &APIError{StatusCode: 403}, ErrAuth)
	assert.ErrorIs(t, &APIError{StatusCode: 409}, ErrConflict)
	assert.ErrorIs(t, &APIError{StatusCode: 400}, ErrValidation)
	assert.ErrorIs(t, &APIError{StatusCode: 422}, ErrValidation)
	assert.NotErrorIs(t, &APIError{StatusCode: 500}, ErrValidation)

	wrapped := fmt.Errorf("send: %w", &APIError{StatusCode: 409})
	assert.ErrorIs(t, wrapped, ErrConflict)

	assert.ErrorIs(t, ErrEmptyMessage, ErrValidation)
	assert.ErrorIs(t, ErrSelfInvite, ErrValidation)
	assert.ErrorIs(t, ErrNotConnected, ErrChannel)
	assert.ErrorIs(t, ErrNotAuthenticated, ErrAuth)
}

func TestIsAlreadySent(t *testing.T) {
	assert.True(t, IsAlreadySent(&APIError{StatusCode: 409}))
	assert.True(t, IsAlreadySent(&APIError{StatusCode: 400, Code: CodeInvitationAlreadySent}))
	assert.True(t, IsAlreadySent(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 409})))

	// Message text alone is not a signal.
	assert.False(t, IsAlreadySent(&APIError{StatusCode: 400, Message: "Invitation already sent"}))
	assert.False(t, IsAlreadySent(errors.New("Invitation already sent")))
	assert.False(t, IsAlreadySent(nil))
}
