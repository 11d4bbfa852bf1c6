package telegram

import (
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// decodeError translates gotd RPC errors into the closed set of domain
// signals, exactly once at the transport boundary. Downstream code
// matches on the domain types and never inspects error text.
func decodeError(err error) error {
	if err == nil {
		return nil
	}

	if wait, ok := tgerr.AsFloodWait(err); ok {
		return domain.NewFloodWait(wait)
	}

	if errors.Is(err, auth.ErrPasswordAuthNeeded) || tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
		return domain.ErrSecondFactorRequired
	}

	switch {
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY"):
		return domain.ErrInvalidCode
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return domain.ErrInvalidPassword
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		return domain.ErrAlreadyParticipant
	case tgerr.Is(err, "INVITE_HASH_INVALID", "INVITE_HASH_EXPIRED"):
		return domain.ErrInvalidInvite
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "SESSION_EXPIRED", "USER_DEACTIVATED"):
		return domain.ErrNotAuthorized
	}

	return fmt.Errorf("telegram: %w", err)
}
