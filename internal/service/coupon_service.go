package service

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/metrics"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// GenerateBatchResponse lists the codes created by one batch
type GenerateBatchResponse struct {
	Campaign string   `json:"campaign"`
	Codes    []string `json:"codes"`
}

// ClaimCouponRequest draws one coupon from a pool for a claimant
type ClaimCouponRequest struct {
	coupon.IssueRequest
	GameID string `json:"gameId"`
}

// ClaimedCoupon is the coupon handed to a claimant
type ClaimedCoupon struct {
	Code      string              `json:"code"`
	Kind      model.CouponKind    `json:"kind"`
	Amount    string              `json:"amount,omitempty"`
	Percent   string              `json:"percent,omitempty"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
	Claimant  string              `json:"claimant,omitempty"`
	Variant   model.CouponVariant `json:"variant"`
}

// ClaimCouponResponse wraps the claimed coupon
type ClaimCouponResponse struct {
	Coupon ClaimedCoupon `json:"coupon"`
}

// GetPoolRequest selects a pool and, optionally, the campaign behind it
type GetPoolRequest struct {
	Campaign string           `json:"campaign"`
	Prefix   string           `json:"prefix"`
	Kind     model.CouponKind `json:"kind"`
	GameID   string           `json:"gameId"`
}

// GetPoolResponse reports what is left in a pool. Summary and AssignedCodes
// are set when a campaign was named.
type GetPoolResponse struct {
	Available     int64                  `json:"available"`
	Summary       *model.CampaignSummary `json:"summary,omitempty"`
	AssignedCodes []string               `json:"assignedCodes,omitempty"`
}

// CouponServer implements the coupon service
type CouponServer struct {
	db           *sqlx.DB
	batches      *coupon.BatchGenerator
	allocator    *coupon.Allocator
	campaignRepo *repository.CampaignRepository
	now          func() time.Time
}

// NewCouponServer creates a new CouponServer instance
func NewCouponServer(db *sqlx.DB, batches *coupon.BatchGenerator, allocator *coupon.Allocator) *CouponServer {
	return &CouponServer{
		db:           db,
		batches:      batches,
		allocator:    allocator,
		campaignRepo: repository.NewCampaignRepository(),
		now:          time.Now,
	}
}

// GenerateBatch creates a campaign's worth of coupons with distinct codes
func (s *CouponServer) GenerateBatch(
	ctx context.Context,
	req *connect.Request[coupon.BatchSpec],
) (*connect.Response[GenerateBatchResponse], error) {
	codes, err := s.batches.Generate(ctx, *req.Msg)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&GenerateBatchResponse{
		Campaign: req.Msg.Campaign,
		Codes:    codes,
	}), nil
}

// ClaimCoupon assigns one pool coupon to the claimant
func (s *CouponServer) ClaimCoupon(
	ctx context.Context,
	req *connect.Request[ClaimCouponRequest],
) (*connect.Response[ClaimCouponResponse], error) {
	// Start timing for metrics
	start := time.Now()
	result := "failed"

	// Defer metric recording to ensure it's always called
	defer func() {
		metrics.RecordClaimCouponDuration(result, time.Since(start).Seconds())
	}()

	issue := req.Msg.IssueRequest
	issue.GameID = req.Msg.GameID

	issued, err := s.allocator.Issue(ctx, issue)
	if err != nil {
		if apperr.ReasonOf(err) == apperr.OutOfStock {
			result = "out_of_stock"
		}
		return nil, connectError(err)
	}
	result = "success"

	return connect.NewResponse(&ClaimCouponResponse{
		Coupon: Claimed(issued),
	}), nil
}

// GetPool reports how many coupons a pool still holds
func (s *CouponServer) GetPool(
	ctx context.Context,
	req *connect.Request[GetPoolRequest],
) (*connect.Response[GetPoolResponse], error) {
	f, err := coupon.IssueRequest{Prefix: req.Msg.Prefix, Kind: req.Msg.Kind, GameID: req.Msg.GameID}.Filter()
	if err != nil {
		return nil, connectError(err)
	}

	available, err := s.allocator.Available(ctx, f)
	if err != nil {
		return nil, connectError(err)
	}
	res := &GetPoolResponse{Available: available}

	if req.Msg.Campaign == "" {
		return connect.NewResponse(res), nil
	}

	res.Summary, err = s.campaignRepo.GetCampaignSummary(ctx, s.db, req.Msg.Campaign, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, connectError(apperr.NotFoundf("campaign not found"))
		}
		return nil, connectError(apperr.Wrap("pool.summary", err))
	}

	res.AssignedCodes, err = s.campaignRepo.ListAssignedCodes(ctx, s.db, req.Msg.Campaign)
	if err != nil {
		return nil, connectError(apperr.Wrap("pool.codes", err))
	}

	return connect.NewResponse(res), nil
}

// Claimed converts an issued coupon to its client view
func Claimed(issued *coupon.Issued) ClaimedCoupon {
	c := issued.Coupon
	out := ClaimedCoupon{
		Code:      c.Code,
		Kind:      c.Kind,
		Variant:   c.Variant,
		ExpiresAt: c.ExpiresAt.Ptr(),
		Claimant:  issued.ClaimantID,
	}
	if c.Amount.Valid {
		out.Amount = c.Amount.Decimal.StringFixed(2)
	}
	if c.Percent.Valid {
		out.Percent = c.Percent.Decimal.String()
	}
	return out
}

// connectError maps business outcomes to connect codes. The reason travels
// in the error message so clients can branch on it.
func connectError(err error) error {
	e := apperr.As(err)

	code := connect.CodeInternal
	switch e.Kind {
	case apperr.KindValidation:
		code = connect.CodeInvalidArgument
	case apperr.KindNotFound:
		code = connect.CodeNotFound
	case apperr.KindConflict:
		switch e.Reason {
		case apperr.OutOfStock, apperr.RateLimited:
			code = connect.CodeResourceExhausted
		default:
			code = connect.CodeFailedPrecondition
		}
	}
	if code == connect.CodeInternal {
		return connect.NewError(code, errors.New(string(apperr.Internal)))
	}
	return connect.NewError(code, errors.New(string(e.Reason)))
}
