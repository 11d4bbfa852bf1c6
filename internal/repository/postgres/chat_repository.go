package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// chatRepository implements domain.ChatStore
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) domain.ChatStore {
	return &chatRepository{
		db: db,
	}
}

// GetChats retrieves all known chats ordered by title
func (r *chatRepository) GetChats(ctx context.Context) ([]domain.ChatRecord, error) {
	var models []ChatModel
	result := r.db.WithContext(ctx).
		Order("title ASC").
		Find(&models)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to query chats: %w", result.Error)
	}

	chats := make([]domain.ChatRecord, 0, len(models))
	for _, m := range models {
		chats = append(chats, domain.ChatRecord{
			ChatID:           m.ChatID,
			Title:            m.Title,
			DependencyChatID: m.DependencyChatID,
		})
	}
	return chats, nil
}

// PutChat upserts a chat record keyed by chat ID
func (r *chatRepository) PutChat(ctx context.Context, chat domain.ChatRecord) error {
	model := ChatModel{
		ChatID:           chat.ChatID,
		Title:            chat.Title,
		DependencyChatID: chat.DependencyChatID,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "updated_at"}),
		}).
		Create(&model)

	if result.Error != nil {
		return fmt.Errorf("failed to upsert chat: %w", result.Error)
	}
	return nil
}

// GetChatDependency returns the dependency chat ID for a chat, nil when
// the chat is unknown or has no dependency
func (r *chatRepository) GetChatDependency(ctx context.Context, chatID int64) (*int64, error) {
	var model ChatModel
	result := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		First(&model)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query chat dependency: %w", result.Error)
	}
	return model.DependencyChatID, nil
}

// SetChatDependency links a chat to its dependency chat
func (r *chatRepository) SetChatDependency(ctx context.Context, chatID, dependencyChatID int64) error {
	result := r.db.WithContext(ctx).
		Model(&ChatModel{}).
		Where("chat_id = ?", chatID).
		Update("dependency_chat_id", dependencyChatID)

	if result.Error != nil {
		return fmt.Errorf("failed to update chat dependency: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrChatNotFound
	}
	return nil
}
