package aceconnect

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Error categories. Every error returned by the SDK that belongs to one of
// these categories matches it with errors.Is.
var (
	ErrNetwork    = errors.New("aceconnect: network failure")
	ErrValidation = errors.New("aceconnect: validation failure")
	ErrConflict   = errors.New("aceconnect: conflict")
	ErrAuth       = errors.New("aceconnect: authentication failure")
	ErrChannel    = errors.New("aceconnect: channel failure")
)

// Specific failures.
var (
	ErrEmptyMessage         = fmt.Errorf("%w: message is empty", ErrValidation)
	ErrNoActiveConversation = fmt.Errorf("%w: no active conversation", ErrValidation)
	ErrSelfInvite           = fmt.Errorf("%w: cannot invite yourself", ErrValidation)
	ErrNotAuthenticated     = fmt.Errorf("%w: not authenticated", ErrAuth)
	ErrNotConnected         = fmt.Errorf("%w: not connected", ErrChannel)

	// ErrSelectionSuperseded is returned by Select when a newer selection
	// started before the backlog arrived. The fetched backlog is discarded.
	ErrSelectionSuperseded = errors.New("aceconnect: selection superseded")
)

// CodeInvitationAlreadySent is the structured code the backend attaches to a
// duplicate invitation.
const CodeInvitationAlreadySent = "INVITATION_ALREADY_SENT"

// APIError is a non-2xx response from the REST backend.
type APIError struct {
	StatusCode           int
	Code                 string
	Message              string
	RequiresVerification bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is maps the HTTP status onto the error categories.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuth:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrValidation:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// IsAlreadySent reports whether err is the duplicate-invitation conflict.
// Only the status code and the structured code are consulted.
func IsAlreadySent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusConflict || apiErr.Code == CodeInvitationAlreadySent
}

// parseAPIError builds an APIError from a response body. The backend puts the
// human message under "error" or "message".
func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		res := gjson.GetManyBytes(body, "error", "message", "code", "requiresVerification")
		switch {
		case res[0].Type == gjson.String:
			e.Message = res[0].String()
		case res[0].IsObject():
			e.Message = res[0].Get("message").String()
			if e.Code == "" {
				e.Code = res[0].Get("code").String()
			}
		}
		if e.Message == "" {
			e.Message = res[1].String()
		}
		if c := res[2].String(); c != "" {
			e.Code = c
		}
		e.RequiresVerification = res[3].Bool()
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
