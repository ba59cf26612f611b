package conversation

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/GOGOSCHNO/assistantai1/internal/domain"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/dbctx"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

type BookingRepo interface {
	Create(dbc dbctx.Context, row *domain.Booking) error
	ListByConversationID(dbc dbctx.Context, conversationID string) ([]*domain.Booking, error)
}

type bookingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBookingRepo(db *gorm.DB, log *logger.Logger) BookingRepo {
	return &bookingRepo{
		db:  db,
		log: log.With("repo", "BookingRepo"),
	}
}

func (r *bookingRepo) Create(dbc dbctx.Context, row *domain.Booking) error {
	if row == nil {
		return fmt.Errorf("missing row")
	}
	if strings.TrimSpace(row.ConversationID) == "" {
		return fmt.Errorf("missing conversation_id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if len(row.Details) == 0 {
		row.Details = []byte("{}")
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

func (r *bookingRepo) ListByConversationID(dbc dbctx.Context, conversationID string) ([]*domain.Booking, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("missing conversation_id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.Booking
	if err := transaction.WithContext(dbc.Ctx).
		Where("conversation_id = ?", conversationID).
		Order("starts_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
