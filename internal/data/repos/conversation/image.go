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

type ImageAssetRepo interface {
	GetURL(dbc dbctx.Context, code string) (string, error)
	Upsert(dbc dbctx.Context, row *domain.ImageAsset) error
}

type imageAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageAssetRepo(db *gorm.DB, log *logger.Logger) ImageAssetRepo {
	return &imageAssetRepo{
		db:  db,
		log: log.With("repo", "ImageAssetRepo"),
	}
}

// GetURL returns "" when no asset exists for the code.
func (r *imageAssetRepo) GetURL(dbc dbctx.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("missing image code")
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row domain.ImageAsset
	err := transaction.WithContext(dbc.Ctx).
		Where("code = ?", code).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.URL, nil
}

func (r *imageAssetRepo) Upsert(dbc dbctx.Context, row *domain.ImageAsset) error {
	if row == nil {
		return fmt.Errorf("missing row")
	}
	if strings.TrimSpace(row.Code) == "" {
		return fmt.Errorf("missing image code")
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
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "updated_at"}),
	}).Create(row).Error
}
