package services

import (
	"context"
	"errors"
	"time"

	"growzzy/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GetCampaign loads a campaign owned by ownerID.
func (s *Store) GetCampaign(ctx context.Context, ownerID, id string) (*models.Campaign, error) {
	var c models.Campaign
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "campaign", ID: id}
		}
		return nil, err
	}
	return &c, nil
}

// ListActiveCampaigns 返回用户所有投放中的活动
func (s *Store) ListActiveCampaigns(ctx context.Context, ownerID string) ([]models.Campaign, error) {
	var list []models.Campaign
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", ownerID, models.CampaignActive).
		Order("created_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) UpdateCampaignStatus(ctx context.Context, id, status string) error {
	return s.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (s *Store) UpdateCampaignBudget(ctx context.Context, id string, budget float64) error {
	return s.db.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("budget", budget).Error
}

// ListLeads 返回用户最近的线索
func (s *Store) ListLeads(ctx context.Context, ownerID string, limit int) ([]models.Lead, error) {
	var list []models.Lead
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Store) UpdateLeadScore(ctx context.Context, id string, score int) error {
	return s.db.WithContext(ctx).Model(&models.Lead{}).
		Where("id = ?", id).
		Update("ai_score", score).Error
}

func (s *Store) CreateReport(ctx context.Context, r *models.Report) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(r).Error
}

// AggregateRow raw sum/count of one metric window.
type AggregateRow struct {
	Sum   float64
	Count int64
}

// AggregateMetric sums the snapshots of metric for entity with period_date >= since.
func (s *Store) AggregateMetric(ctx context.Context, entityID, metric string, since time.Time) (AggregateRow, error) {
	var row AggregateRow
	err := s.db.WithContext(ctx).Model(&models.MetricSnapshot{}).
		Select("COALESCE(SUM(value), 0) AS sum, COUNT(*) AS count").
		Where("entity_id = ? AND metric = ? AND period_date >= ?", entityID, metric, normalizeTime(since)).
		Scan(&row).Error
	return row, err
}

// MetricHistory returns up to limit values of metric for entity, newest first.
func (s *Store) MetricHistory(ctx context.Context, entityID, metric string, limit int) ([]float64, error) {
	var values []float64
	err := s.db.WithContext(ctx).Model(&models.MetricSnapshot{}).
		Where("entity_id = ? AND metric = ?", entityID, metric).
		Order("period_date DESC").
		Limit(limit).
		Pluck("value", &values).Error
	return values, err
}

// LatestMetrics returns the newest value per metric for entity since the given time.
func (s *Store) LatestMetrics(ctx context.Context, entityID string, since time.Time) (map[string]float64, error) {
	var rows []models.MetricSnapshot
	if err := s.db.WithContext(ctx).
		Where("entity_id = ? AND period_date >= ?", entityID, normalizeTime(since)).
		Order("period_date DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, r := range rows {
		if _, seen := out[r.Metric]; !seen {
			out[r.Metric] = r.Value
		}
	}
	return out, nil
}
