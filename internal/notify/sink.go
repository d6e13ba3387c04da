// Package notify stores farmer notifications. Emitting is fire-and-forget:
// callers never see a delivery failure.
package notify

import (
	"context"
	"errors"
	"fmt"

	"agribalance-backend/internal/apperror"
	"agribalance-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Sink interface {
	Notify(ctx context.Context, n models.Notification)
}

// Store persists notifications and serves the farmer inbox.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Notify(ctx context.Context, n models.Notification) {
	n.ID = 0
	n.IsRead = false
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		s.log.Warn("notification dropped",
			zap.Uint("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
	}
}

func (s *Store) List(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []models.Notification
	if err := q.Order("created_at desc, id desc").Limit(200).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications for user %d: %w", userID, err)
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, userID, id uint) error {
	var n models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("notification %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("load notification %d: %w", id, err)
	}
	if err := s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error; err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}
