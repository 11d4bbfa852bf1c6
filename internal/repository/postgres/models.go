package postgres

import (
	"time"

	"gorm.io/gorm"
)

// CredentialModel is the persisted operator credential row
type CredentialModel struct {
	ID           uint   `gorm:"primaryKey"`
	OperatorID   int64  `gorm:"uniqueIndex;not null"`
	APIID        int    `gorm:"not null"`
	APIHash      string `gorm:"not null"`
	SessionToken string `gorm:"unique;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the table name
func (CredentialModel) TableName() string {
	return "credentials"
}

// ChatModel is the persisted chat row with its optional dependency link
type ChatModel struct {
	ChatID           int64  `gorm:"primaryKey"`
	Title            string `gorm:"not null"`
	DependencyChatID *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName overrides the table name
func (ChatModel) TableName() string {
	return "chats"
}

// Migrate creates or updates the repository tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialModel{}, &ChatModel{})
}
