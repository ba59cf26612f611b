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

type TurnRepo interface {
	Append(dbc dbctx.Context, row *domain.ConversationTurn) error
	ListByConversationID(dbc dbctx.Context, conversationID string, limit int) ([]*domain.ConversationTurn, error)
}

type turnRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTurnRepo(db *gorm.DB, log *logger.Logger) TurnRepo {
	return &turnRepo{
		db:  db,
		log: log.With("repo", "TurnRepo"),
	}
}

func (r *turnRepo) Append(dbc dbctx.Context, row *domain.ConversationTurn) error {
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
	if len(row.ImageURLs) == 0 {
		row.ImageURLs = []byte("[]")
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

func (r *turnRepo) ListByConversationID(dbc dbctx.Context, conversationID string, limit int) ([]*domain.ConversationTurn, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 {
		limit = 50
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*domain.ConversationTurn
	if err := transaction.WithContext(dbc.Ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
