package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/saathi-legal/saathi_api/model"
	"gorm.io/gorm"
)

// ConsentRepository is the append-only consent audit trail. Rows are inserted
// and read; nothing in normal operation updates or deletes them.
type ConsentRepository struct {
	BaseRepository
}

func NewConsentRepository(db *gorm.DB) *ConsentRepository {
	return &ConsentRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func (r *ConsentRepository) Migrate() error {
	return r.db.AutoMigrate(&model.ConsentDecision{})
}

func (r *ConsentRepository) Append(ctx context.Context, decision *model.ConsentDecision) error {
	if decision.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		decision.ID = id.String()
	}
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now()
	}
	decision.Seq = 0

	return r.db.WithContext(ctx).Create(decision).Error
}

// Latest returns the authoritative decision for identifier, or nil when none
// has been recorded. Later DecidedAt wins; equal timestamps fall back to
// insertion order.
func (r *ConsentRepository) Latest(ctx context.Context, identifier string) (*model.ConsentDecision, error) {
	var decision model.ConsentDecision

	err := r.db.WithContext(ctx).
		Where("identifier = ?", identifier).
		Order("decided_at DESC").
		Order("seq DESC").
		First(&decision).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &decision, nil
}

// History lists decisions for identifier, newest first.
func (r *ConsentRepository) History(ctx context.Context, identifier string, limit int) ([]model.ConsentDecision, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var decisions []model.ConsentDecision
	err := r.db.WithContext(ctx).
		Where("identifier = ?", identifier).
		Order("decided_at DESC").
		Order("seq DESC").
		Limit(limit).
		Find(&decisions).Error

	return decisions, err
}

func (r *ConsentRepository) Count(ctx context.Context, identifier string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ConsentDecision{}).
		Where("identifier = ?", identifier).
		Count(&count).Error
	return count, err
}
