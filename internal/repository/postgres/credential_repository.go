package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vkondratev/userbot-relay/internal/domain"
)

// credentialRepository implements domain.CredentialStore
type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *gorm.DB) domain.CredentialStore {
	return &credentialRepository{
		db: db,
	}
}

// GetCredential retrieves the stored credential for an operator
func (r *credentialRepository) GetCredential(ctx context.Context, operatorID int64) (*domain.Credential, error) {
	var model CredentialModel
	result := r.db.WithContext(ctx).
		Where("operator_id = ?", operatorID).
		First(&model)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to query credential: %w", result.Error)
	}

	return &domain.Credential{
		OperatorID:   model.OperatorID,
		APIID:        model.APIID,
		APIHash:      model.APIHash,
		SessionToken: model.SessionToken,
	}, nil
}

// PutCredential upserts the credential keyed by operator ID
func (r *credentialRepository) PutCredential(ctx context.Context, cred domain.Credential) error {
	model := CredentialModel{
		OperatorID:   cred.OperatorID,
		APIID:        cred.APIID,
		APIHash:      cred.APIHash,
		SessionToken: cred.SessionToken,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "operator_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"api_id", "api_hash", "session_token", "updated_at"}),
		}).
		Create(&model)

	if result.Error != nil {
		return fmt.Errorf("failed to upsert credential: %w", result.Error)
	}
	return nil
}

// DeleteCredential removes the operator's credential
func (r *credentialRepository) DeleteCredential(ctx context.Context, operatorID int64) error {
	result := r.db.WithContext(ctx).
		Where("operator_id = ?", operatorID).
		Delete(&CredentialModel{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete credential: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}
