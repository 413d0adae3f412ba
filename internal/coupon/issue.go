package coupon

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// AcquisitionIssue tags coupons handed out through the public issue flow.
const AcquisitionIssue = "ISSUE"

// IssueRequest asks for one pool coupon for an anonymous or known claimant.
type IssueRequest struct {
	Prefix     string              `json:"prefix"`
	Hours      int                 `json:"hours"`
	Contact    string              `json:"contact"`
	CustomerID string              `json:"customerId"`
	Kind       model.CouponKind    `json:"kind"`
	Amount     decimal.NullDecimal `json:"amount"`
	Percent    decimal.NullDecimal `json:"percent"`
	Channel    string              `json:"channel"`
	GameID     string              `json:"-"`
}

// Issued is the outcome of a successful issue.
type Issued struct {
	Coupon     *model.Coupon
	ClaimantID string
}

// Filter returns the pool the request draws from.
func (r IssueRequest) Filter() (repository.PoolFilter, error) {
	if r.Kind != "" && !r.Kind.Valid() {
		return repository.PoolFilter{}, apperr.Validation(apperr.BadType, "unknown coupon kind")
	}
	return repository.PoolFilter{
		Kind:       r.Kind,
		Amount:     r.Amount,
		Percent:    r.Percent,
		CodePrefix: r.Prefix,
		GameID:     r.GameID,
	}, nil
}

// Issue allocates one pool coupon to the request's claimant. Generic issues
// require a positive duration; game prizes may keep their own expiry.
func (a *Allocator) Issue(ctx context.Context, req IssueRequest) (*Issued, error) {
	if req.GameID == "" && req.Hours <= 0 {
		return nil, apperr.Validation(apperr.BadHours, "hours must be positive")
	}
	f, err := req.Filter()
	if err != nil {
		return nil, err
	}

	claim := Claim{
		ClaimantID:  ClaimantID(req.CustomerID, req.Contact),
		Hours:       req.Hours,
		Acquisition: AcquisitionIssue,
		Channel:     req.Channel,
	}
	if req.GameID != "" {
		claim.Acquisition = model.AcquisitionGame
	}
	if claim.Channel == "" && req.Contact != "" {
		claim.Channel = "sms"
	}

	c, err := a.Allocate(ctx, f, claim)
	if err != nil {
		return nil, err
	}
	return &Issued{Coupon: c, ClaimantID: claim.ClaimantID}, nil
}
