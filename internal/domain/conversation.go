package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConversationThread maps an end-user conversation (WhatsApp number) to its
// remote assistant thread. Created lazily on the first turn, never deleted.
type ConversationThread struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConversationID string    `gorm:"type:text;not null;uniqueIndex" json:"conversation_id"`
	ThreadID       string    `gorm:"type:text;not null" json:"thread_id"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ConversationThread) TableName() string { return "conversation_thread" }

// ConversationTurn is one completed user-to-assistant exchange. Append-only.
type ConversationTurn struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConversationID string    `gorm:"type:text;not null;index" json:"conversation_id"`
	ThreadID       string    `gorm:"type:text;not null" json:"thread_id"`

	UserMessage   string         `gorm:"type:text;not null" json:"user_message"`
	AssistantText string         `gorm:"type:text;not null" json:"assistant_text"`
	ImageURLs     datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"image_urls"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (ConversationTurn) TableName() string { return "conversation_turn" }
