package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/pizzeria/internal/model"
)

// CampaignRepository reports on coupons generated under a campaign tag
type CampaignRepository struct{}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

// GetCampaignSummary counts the coupons of a campaign by state
func (r *CampaignRepository) GetCampaignSummary(ctx context.Context, db DBExecutor, campaign string, now time.Time) (*model.CampaignSummary, error) {
	query := db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = 'ACTIVE' AND claimed_at IS NULL AND assigned_to_id IS NULL
				AND (expires_at IS NULL OR expires_at > ?) THEN 1 ELSE 0 END), 0) AS available,
			COALESCE(SUM(CASE WHEN claimed_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS assigned,
			COALESCE(SUM(CASE WHEN status = 'USED' THEN 1 ELSE 0 END), 0) AS used,
			COALESCE(SUM(CASE WHEN status = 'EXPIRED'
				OR (status = 'ACTIVE' AND expires_at IS NOT NULL AND expires_at <= ?) THEN 1 ELSE 0 END), 0) AS expired
		FROM coupons
		WHERE campaign = ?
	`)

	summary := model.CampaignSummary{Campaign: campaign}
	if err := db.GetContext(ctx, &summary, query, now.UnixMilli(), now.UnixMilli(), campaign); err != nil {
		return nil, fmt.Errorf("failed to get campaign summary: %w", err)
	}
	if summary.Total == 0 {
		return nil, ErrNotFound
	}

	return &summary, nil
}

// ListAssignedCodes returns the codes of a campaign that have been handed out
func (r *CampaignRepository) ListAssignedCodes(ctx context.Context, db DBExecutor, campaign string) ([]string, error) {
	// Only coupons that reached a claimant
	query := db.Rebind(`
		SELECT code
		FROM coupons
		WHERE campaign = ? AND claimed_at IS NOT NULL
		ORDER BY claimed_at ASC, code ASC
	`)

	var codes []string
	if err := db.SelectContext(ctx, &codes, query, campaign); err != nil {
		return nil, fmt.Errorf("failed to get coupon codes: %w", err)
	}

	return codes, nil
}
