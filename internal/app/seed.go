package app

import (
	"context"
	"time"

	"growzzy/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedResult ids created by SeedDemo.
type SeedResult struct {
	CampaignIDs []string `json:"campaignIds"`
	LeadIDs     []string `json:"leadIds"`
	Snapshots   int      `json:"snapshots"`
}

// SeedDemo inserts a small demo account for ownerID: two campaigns with a
// week of daily snapshots (one healthy, one burning budget) and a few leads.
func SeedDemo(ctx context.Context, db *gorm.DB, ownerID string, now time.Time) (*SeedResult, error) {
	res := &SeedResult{}
	day := now.UTC().Truncate(24 * time.Hour)

	campaigns := []models.Campaign{
		{
			ID: uuid.NewString(), UserID: ownerID, Name: "Spring Sale", Status: models.CampaignActive,
			Platform: "meta", ExternalID: "meta-1001", Budget: 200,
			Spend: 1400, Revenue: 4900, Leads: 70, Conversions: 49, Clicks: 2800, Impressions: 140000,
		},
		{
			ID: uuid.NewString(), UserID: ownerID, Name: "Brand Awareness", Status: models.CampaignActive,
			Platform: "google", ExternalID: "g-2002", Budget: 300,
			Spend: 2100, Revenue: 1470, Leads: 7, Conversions: 3, Clicks: 630, Impressions: 210000,
		},
	}
	// 每天的报表值：roas, ctr, cpc
	daily := []map[string]float64{
		{"roas": 3.5, "ctr": 2.0, "cpc": 0.5, "spend": 200},
		{"roas": 0.7, "ctr": 0.3, "cpc": 3.3, "spend": 300},
	}

	leads := []models.Lead{
		{ID: uuid.NewString(), UserID: ownerID, Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 0000 0000", Company: "Analytical Engines", Source: "referral", Status: "new"},
		{ID: uuid.NewString(), UserID: ownerID, Name: "Grace Hopper", Email: "grace@example.com", Source: "website", Status: "new"},
		{ID: uuid.NewString(), UserID: ownerID, Name: "anon", Source: "ads", Status: "new"},
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range campaigns {
			if err := tx.Create(&campaigns[i]).Error; err != nil {
				return err
			}
			res.CampaignIDs = append(res.CampaignIDs, campaigns[i].ID)
			for d := 0; d < 7; d++ {
				for metric, v := range daily[i] {
					s := models.MetricSnapshot{
						EntityID:   campaigns[i].ID,
						Metric:     metric,
						Value:      v,
						PeriodDate: day.AddDate(0, 0, -d),
					}
					if err := tx.Create(&s).Error; err != nil {
						return err
					}
					res.Snapshots++
				}
			}
		}
		for i := range leads {
			if err := tx.Create(&leads[i]).Error; err != nil {
				return err
			}
			res.LeadIDs = append(res.LeadIDs, leads[i].ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
