package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vkondratev/userbot-relay/config"
	"github.com/vkondratev/userbot-relay/internal/domain"
)

type chatRegistry struct {
	store  domain.ChatStore
	cfg    config.RegistryConfig
	logger zerolog.Logger
}

// NewChatRegistry creates the dependency registry over a chat store.
func NewChatRegistry(cfg *config.RegistryConfig, store domain.ChatStore, logger zerolog.Logger) domain.ChatRegistry {
	return &chatRegistry{
		store:  store,
		cfg:    *cfg,
		logger: logger.With().Str("component", "chat_registry").Logger(),
	}
}

func (r *chatRegistry) GetDependency(ctx context.Context, chatID int64) (*int64, error) {
	dep, err := r.store.GetChatDependency(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependency for chat %d: %w", chatID, err)
	}
	return dep, nil
}

func (r *chatRegistry) SetDependency(ctx context.Context, chatID, dependencyChatID int64) error {
	if chatID == dependencyChatID {
		return domain.ErrSelfDependency
	}

	if err := r.store.SetChatDependency(ctx, chatID, dependencyChatID); err != nil {
		if err == domain.ErrChatNotFound {
			return err
		}
		return fmt.Errorf("failed to link chat %d to %d: %w", chatID, dependencyChatID, err)
	}

	r.logger.Info().
		Int64("chat_id", chatID).
		Int64("dependency_chat_id", dependencyChatID).
		Msg("chat dependency updated")
	return nil
}

func (r *chatRegistry) ListChats(ctx context.Context) ([]domain.ChatRecord, error) {
	chats, err := r.store.GetChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// AddChat stores the chat and, when its title matches the configured target
// keyword, links it to the first known chat matching the warmup keyword.
func (r *chatRegistry) AddChat(ctx context.Context, chatID int64, title string) (*domain.ChatRecord, error) {
	rec := domain.ChatRecord{ChatID: chatID, Title: title}

	if r.cfg.TargetKeyword != "" && containsFold(title, r.cfg.TargetKeyword) {
		dep, err := r.findWarmupChat(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if dep != nil {
			rec.DependencyChatID = dep
			r.logger.Info().
				Int64("chat_id", chatID).
				Int64("dependency_chat_id", *dep).
				Msg("auto-linked chat to warmup dependency by keyword")
		}
	}

	if err := r.store.PutChat(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store chat %d: %w", chatID, err)
	}
	return &rec, nil
}

func (r *chatRegistry) findWarmupChat(ctx context.Context, exclude int64) (*int64, error) {
	if r.cfg.WarmupKeyword == "" {
		return nil, nil
	}
	chats, err := r.store.GetChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats for keyword linking: %w", err)
	}
	for _, c := range chats {
		if c.ChatID == exclude {
			continue
		}
		if containsFold(c.Title, r.cfg.WarmupKeyword) {
			id := c.ChatID
			return &id, nil
		}
	}
	return nil, nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
