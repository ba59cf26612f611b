package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/GOGOSCHNO/assistantai1/internal/domain"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/dbctx"
	"github.com/GOGOSCHNO/assistantai1/internal/pkg/logger"
)

type ThreadRepo interface {
	GetByConversationID(dbc dbctx.Context, conversationID string) (*domain.ConversationThread, error)
	Create(dbc dbctx.Context, row *domain.ConversationThread) error
}

type threadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, log *logger.Logger) ThreadRepo {
	return &threadRepo{
		db:  db,
		log: log.With("repo", "ThreadRepo"),
	}
}

func (r *threadRepo) GetByConversationID(dbc dbctx.Context, conversationID string) (*domain.ConversationThread, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("missing conversation_id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.ConversationThread
	err := transaction.WithContext(dbc.Ctx).
		Where("conversation_id = ?", conversationID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Create inserts the mapping, ignoring a concurrent insert of the same
// conversation. Callers re-read after a conflict to pick up the winner's row.
func (r *threadRepo) Create(dbc dbctx.Context, row *domain.ConversationThread) error {
	if row == nil {
		return fmt.Errorf("missing row")
	}
	if strings.TrimSpace(row.ConversationID) == "" {
		return fmt.Errorf("missing conversation_id")
	}
	if strings.TrimSpace(row.ThreadID) == "" {
		return fmt.Errorf("missing thread_id")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return transaction.WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "conversation_id"}},
		DoNothing: true,
	}).Create(row).Error
}
