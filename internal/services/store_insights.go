package services

import (
	"context"
	"errors"
	"time"

	"growzzy/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FindUnresolvedInsight returns the current insight for fingerprint, dismissed
// or not, or nil when the previous one was resolved.
func (s *Store) FindUnresolvedInsight(ctx context.Context, fingerprint string) (*models.Insight, error) {
	var in models.Insight
	err := s.db.WithContext(ctx).
		Where("fingerprint = ? AND resolved_at IS NULL", fingerprint).
		Order("created_at DESC").
		First(&in).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &in, nil
}

func (s *Store) CreateInsight(ctx context.Context, in *models.Insight) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(in).Error
}

// RefreshInsight rewrites the text and confidence of an open insight.
func (s *Store) RefreshInsight(ctx context.Context, in *models.Insight) error {
	return s.db.WithContext(ctx).Model(&models.Insight{}).
		Where("id = ?", in.ID).
		Updates(map[string]interface{}{
			"description": in.Description,
			"confidence":  in.Confidence,
			"updated_at":  in.UpdatedAt,
		}).Error
}

// ResolveInsights marks every unresolved insight with fingerprint as resolved.
func (s *Store) ResolveInsights(ctx context.Context, fingerprint string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Insight{}).
		Where("fingerprint = ? AND resolved_at IS NULL", fingerprint).
		Update("resolved_at", normalizeTime(at)).Error
}

// ListInsights 返回用户未解决的建议
func (s *Store) ListInsights(ctx context.Context, ownerID string, includeDismissed bool) ([]models.Insight, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND resolved_at IS NULL", ownerID)
	if !includeDismissed {
		q = q.Where("dismissed = ?", false)
	}
	var list []models.Insight
	if err := q.Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// DismissInsight 标记建议为已忽略（终态）
func (s *Store) DismissInsight(ctx context.Context, ownerID, id string) error {
	result := s.db.WithContext(ctx).Model(&models.Insight{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Update("dismissed", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "insight", ID: id}
	}
	return nil
}

// CountOpenInsights counts undismissed, unresolved insights for entity by severity.
func (s *Store) CountOpenInsights(ctx context.Context, entityID string) (map[string]int64, error) {
	type row struct {
		Severity string
		N        int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.Insight{}).
		Select("severity, COUNT(*) AS n").
		Where("entity_id = ? AND dismissed = ? AND resolved_at IS NULL", entityID, false).
		Group("severity").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, r := range rows {
		out[r.Severity] = r.N
	}
	return out, nil
}
