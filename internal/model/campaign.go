package model

// CampaignSummary aggregates the coupons generated under one campaign tag
type CampaignSummary struct {
	Campaign  string `db:"campaign" json:"campaign"`
	Total     int64  `db:"total" json:"total"`
	Available int64  `db:"available" json:"available"` // active and unassigned
	Assigned  int64  `db:"assigned" json:"assigned"`
	Used      int64  `db:"used" json:"used"`
	Expired   int64  `db:"expired" json:"expired"`
}
