package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCredentialNotFound is returned when no credential is stored for an operator
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrNotAuthorized is returned when the stored session token is stale or revoked
	ErrNotAuthorized = errors.New("not authorized")

	// ErrConnectionFailed is returned when the transport cannot be reached
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotConnected is returned when an operation requires a live connection
	ErrNotConnected = errors.New("not connected to Telegram")

	// ErrSecondFactorRequired is returned when sign-in needs the cloud password
	ErrSecondFactorRequired = errors.New("second factor required")

	// ErrInvalidCode is returned when the login code is rejected
	ErrInvalidCode = errors.New("invalid login code")

	// ErrInvalidPassword is returned when the 2FA password is rejected
	ErrInvalidPassword = errors.New("invalid password")

	// ErrAlreadyParticipant is returned when the account is already a member of the chat
	ErrAlreadyParticipant = errors.New("already a participant")

	// ErrInvalidInvite is returned when an invite link is invalid or expired
	ErrInvalidInvite = errors.New("invalid or expired invite link")

	// ErrChatNotFound is returned when a chat is not present in the registry
	ErrChatNotFound = errors.New("chat not found")

	// ErrSelfDependency is returned when a chat is configured to depend on itself
	ErrSelfDependency = errors.New("chat cannot depend on itself")

	// ErrLoginNotActive is returned when input arrives for an operator with no flow in progress
	ErrLoginNotActive = errors.New("no login flow in progress")
)

// FloodWaitError is the provider's flow-control signal: the caller must
// pause for at least Wait before retrying the same request. Decoded once
// at the transport boundary so downstream code matches on the type
// instead of inspecting error text.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.Wait)
}

// NewFloodWait builds a flood-wait signal from a provider-supplied duration.
func NewFloodWait(wait time.Duration) *FloodWaitError {
	return &FloodWaitError{Wait: wait}
}

// AsFloodWait extracts the suggested wait if err carries a flood-control signal.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}
