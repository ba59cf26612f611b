package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImageAsset is a product image the assistant can request by code via the
// get_image_url side effect.
type ImageAsset struct {
	Code string `gorm:"type:text;primaryKey" json:"code"`
	URL  string `gorm:"type:text;not null" json:"url"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImageAsset) TableName() string { return "image_asset" }

// Booking records a calendar appointment created on behalf of a conversation.
type Booking struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ConversationID string    `gorm:"type:text;not null;index" json:"conversation_id"`

	Summary         string    `gorm:"type:text;not null" json:"summary"`
	StartsAt        time.Time `gorm:"not null" json:"starts_at"`
	EndsAt          time.Time `gorm:"not null" json:"ends_at"`
	CalendarEventID string    `gorm:"type:text;not null" json:"calendar_event_id"`

	Details datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"details"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Booking) TableName() string { return "booking" }
