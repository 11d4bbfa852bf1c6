package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

type operatorUseCase struct {
	credentials domain.CredentialStore
	connections domain.ConnectionCache
	dispatcher  domain.Dispatcher
	registry    domain.ChatRegistry
	audit       domain.AuditProducer
	logger      zerolog.Logger
}

// NewOperatorUseCase wires the caller-facing operator API over the
// connection cache, dispatcher and chat registry.
func NewOperatorUseCase(
	credentials domain.CredentialStore,
	connections domain.ConnectionCache,
	dispatcher domain.Dispatcher,
	registry domain.ChatRegistry,
	audit domain.AuditProducer,
	logger zerolog.Logger,
) domain.OperatorUseCase {
	return &operatorUseCase{
		credentials: credentials,
		connections: connections,
		dispatcher:  dispatcher,
		registry:    registry,
		audit:       audit,
		logger:      logger.With().Str("component", "operator_usecase").Logger(),
	}
}

// acquire resolves the operator's stored credential into a live authorized
// connection. ErrCredentialNotFound and ErrNotAuthorized pass through so
// the delivery layer can route the operator into the login flow.
func (uc *operatorUseCase) acquire(ctx context.Context, operatorID int64) (domain.UserbotClient, error) {
	cred, err := uc.credentials.GetCredential(ctx, operatorID)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to load credential for operator %d: %w", operatorID, err)
	}

	client, err := uc.connections.Acquire(ctx, *cred)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (uc *operatorUseCase) Status(ctx context.Context, operatorID int64) (*domain.UserInfo, error) {
	client, err := uc.acquire(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	me, err := client.Me(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account info: %w", err)
	}
	return me, nil
}

func (uc *operatorUseCase) Logout(ctx context.Context, operatorID int64) error {
	if _, err := uc.credentials.GetCredential(ctx, operatorID); err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return domain.ErrCredentialNotFound
		}
		return fmt.Errorf("failed to load credential for operator %d: %w", operatorID, err)
	}

	if err := uc.connections.Evict(ctx, operatorID); err != nil {
		uc.logger.Warn().Err(err).Int64("operator_id", operatorID).Msg("failed to evict connection on logout")
	}
	if err := uc.credentials.DeleteCredential(ctx, operatorID); err != nil {
		return fmt.Errorf("failed to delete credential for operator %d: %w", operatorID, err)
	}

	uc.logger.Info().Int64("operator_id", operatorID).Msg("operator logged out")
	uc.publish(ctx, domain.EventLogout, fmt.Sprintf("operator %d logged out", operatorID))
	return nil
}

func (uc *operatorUseCase) Send(ctx context.Context, operatorID int64, peer, text string, onWait domain.WaitFunc) (domain.Outcome, error) {
	client, err := uc.acquire(ctx, operatorID)
	if err != nil {
		return domain.Outcome{}, err
	}

	out := uc.dispatcher.Send(ctx, client, peer, text, onWait)
	if out.OK {
		uc.publish(ctx, domain.EventSendSuccess, out.Detail)
	} else {
		uc.publish(ctx, domain.EventSendFail, out.Detail)
	}
	return out, nil
}

func (uc *operatorUseCase) SendWithDependency(ctx context.Context, operatorID, chatID int64, text string, onWait domain.WaitFunc) (domain.Outcome, error) {
	client, err := uc.acquire(ctx, operatorID)
	if err != nil {
		return domain.Outcome{}, err
	}

	out := uc.dispatcher.SendWithDependency(ctx, client, chatID, text, onWait)
	if out.DependencyChatID != nil {
		uc.publish(ctx, domain.EventDepSend, fmt.Sprintf("warmup chat %d before %d: %s", *out.DependencyChatID, chatID, out.Detail))
	}
	uc.publish(ctx, domain.EventMainSend, out.Detail)
	return out, nil
}

func (uc *operatorUseCase) Join(ctx context.Context, operatorID int64, link string, onWait domain.WaitFunc) (domain.Outcome, error) {
	client, err := uc.acquire(ctx, operatorID)
	if err != nil {
		return domain.Outcome{}, err
	}

	out := uc.dispatcher.Join(ctx, client, link, onWait)
	if out.OK {
		uc.publish(ctx, domain.EventJoinSuccess, out.Detail)
	} else {
		uc.publish(ctx, domain.EventJoinFail, out.Detail)
	}
	return out, nil
}

// SyncChats imports the account's dialogs into the chat registry and
// returns how many records were stored.
func (uc *operatorUseCase) SyncChats(ctx context.Context, operatorID int64) (int, error) {
	client, err := uc.acquire(ctx, operatorID)
	if err != nil {
		return 0, err
	}

	dialogs, err := client.ListDialogs(ctx, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list dialogs: %w", err)
	}

	stored := 0
	for _, d := range dialogs {
		if _, err := uc.registry.AddChat(ctx, d.ID, d.Title); err != nil {
			uc.logger.Warn().Err(err).Int64("chat_id", d.ID).Msg("failed to store synced chat")
			continue
		}
		stored++
	}

	uc.logger.Info().
		Int64("operator_id", operatorID).
		Int("stored", stored).
		Msg("chat sync completed")
	return stored, nil
}

func (uc *operatorUseCase) publish(ctx context.Context, eventType, message string) {
	if uc.audit == nil {
		return
	}
	if err := uc.audit.Publish(ctx, eventType, message); err != nil {
		uc.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish audit event")
	}
}
