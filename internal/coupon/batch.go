package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/database"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// MaxBatch is the largest number of coupons one batch may create.
const MaxBatch = 100_000

// BatchSpec describes a run of identical coupons with distinct codes.
type BatchSpec struct {
	Campaign    string              `json:"campaign"`
	Prefix      string              `json:"prefix"`
	Count       int                 `json:"count"`
	Kind        model.CouponKind    `json:"kind"`
	Variant     model.CouponVariant `json:"variant"`
	Percent     decimal.NullDecimal `json:"percent"`
	PercentMin  decimal.NullDecimal `json:"percentMin"`
	PercentMax  decimal.NullDecimal `json:"percentMax"`
	Amount      decimal.NullDecimal `json:"amount"`
	MaxAmount   decimal.NullDecimal `json:"maxAmount"`
	UsageLimit  int64               `json:"usageLimit"` // 0 means unlimited
	Visibility  model.Visibility    `json:"visibility"`
	Acquisition string              `json:"acquisition"`
	GameID      string              `json:"gameId"`
	ActiveFrom  *time.Time          `json:"activeFrom"`
	ExpiresAt   *time.Time          `json:"expiresAt"`
	DaysActive  []int               `json:"daysActive"`
	WindowStart *int64              `json:"windowStart"`
	WindowEnd   *int64              `json:"windowEnd"`
	Segments    []string            `json:"segments"`
}

// Validate checks the batch and fills defaults.
func (s *BatchSpec) Validate() error {
	if s.Count <= 0 || s.Count > MaxBatch {
		return apperr.Validation(apperr.BadRequest, fmt.Sprintf("count must be between 1 and %d", MaxBatch))
	}
	if s.Campaign == "" {
		return apperr.Validation(apperr.BadRequest, "campaign is required")
	}
	if s.Variant == "" {
		s.Variant = model.VariantFixed
	}
	if s.Visibility == "" {
		s.Visibility = model.VisibilityPublic
	}
	if !s.Kind.Valid() || !s.Variant.Valid() {
		return apperr.Validation(apperr.BadType, "unknown coupon kind or variant")
	}
	if s.Visibility != model.VisibilityPublic && s.Visibility != model.VisibilityReserved {
		return apperr.Validation(apperr.BadType, "unknown visibility")
	}
	if s.UsageLimit < 0 {
		return apperr.Validation(apperr.BadRange, "usage limit must not be negative")
	}

	switch {
	case s.Kind == model.KindAmount:
		if !s.Amount.Valid || !s.Amount.Decimal.IsPositive() {
			return apperr.Validation(apperr.BadRange, "amount must be positive")
		}
	case s.Variant == model.VariantRange:
		if !validPercent(s.PercentMin) || !validPercent(s.PercentMax) ||
			s.PercentMin.Decimal.GreaterThan(s.PercentMax.Decimal) {
			return apperr.Validation(apperr.BadRange, "percent range must satisfy 0 < min <= max <= 100")
		}
	default:
		if !validPercent(s.Percent) {
			return apperr.Validation(apperr.BadRange, "percent must be in (0, 100]")
		}
	}
	if s.MaxAmount.Valid && !s.MaxAmount.Decimal.IsPositive() {
		return apperr.Validation(apperr.BadRange, "max amount must be positive")
	}

	for _, d := range s.DaysActive {
		if d < 0 || d > 6 {
			return apperr.Validation(apperr.BadRange, "days must be 0 (Sunday) to 6")
		}
	}
	for _, m := range []*int64{s.WindowStart, s.WindowEnd} {
		if m != nil && (*m < 0 || *m >= 24*60) {
			return apperr.Validation(apperr.BadHours, "window bounds are minutes of day")
		}
	}
	if s.ActiveFrom != nil && s.ExpiresAt != nil && !s.ExpiresAt.After(*s.ActiveFrom) {
		return apperr.Validation(apperr.BadRange, "expiry must be after activation")
	}
	return nil
}

func validPercent(p decimal.NullDecimal) bool {
	return p.Valid && p.Decimal.IsPositive() && p.Decimal.LessThanOrEqual(hundred)
}

// BatchGenerator creates coupon batches.
type BatchGenerator struct {
	db      *sqlx.DB
	codes   *CodeGenerator
	coupons *repository.CouponRepository
	now     func() time.Time
}

// NewBatchGenerator creates a batch generator
func NewBatchGenerator(db *sqlx.DB, codes *CodeGenerator) *BatchGenerator {
	return &BatchGenerator{
		db:      db,
		codes:   codes,
		coupons: repository.NewCouponRepository(),
		now:     time.Now,
	}
}

// Generate creates spec.Count coupons in one transaction and returns their
// codes. Indexes continue past codes already present, so running the same
// campaign twice adds new coupons.
func (g *BatchGenerator) Generate(ctx context.Context, spec BatchSpec) ([]string, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	now := g.now()
	base := model.Coupon{
		Kind:        spec.Kind,
		Variant:     spec.Variant,
		Percent:     spec.Percent,
		PercentMin:  spec.PercentMin,
		PercentMax:  spec.PercentMax,
		Amount:      spec.Amount,
		MaxAmount:   spec.MaxAmount,
		Status:      model.StatusActive,
		Visibility:  spec.Visibility,
		Acquisition: nullString(spec.Acquisition),
		GameID:      nullString(spec.GameID),
		Campaign:    nullString(spec.Campaign),
		DaysActive:  model.IntList(spec.DaysActive),
		Segments:    model.StringList(spec.Segments),
		CreatedAt:   model.MillisOf(now),
		UpdatedAt:   model.MillisOf(now),
	}
	if spec.Variant == model.VariantRange {
		base.Percent = decimal.NullDecimal{}
	}
	if spec.GameID != "" && spec.Acquisition == "" {
		base.Acquisition = nullString(model.AcquisitionGame)
	}
	if spec.UsageLimit > 0 {
		base.UsageLimit.Int64, base.UsageLimit.Valid = spec.UsageLimit, true
	}
	if spec.ActiveFrom != nil {
		base.ActiveFrom = model.MillisOf(*spec.ActiveFrom)
	}
	if spec.ExpiresAt != nil {
		base.ExpiresAt = model.MillisOf(*spec.ExpiresAt)
	}
	if spec.WindowStart != nil {
		base.WindowStart.Int64, base.WindowStart.Valid = *spec.WindowStart, true
	}
	if spec.WindowEnd != nil {
		base.WindowEnd.Int64, base.WindowEnd.Valid = *spec.WindowEnd, true
	}

	var codes []string
	err := database.WithTx(ctx, g.db, func(tx *sqlx.Tx) error {
		var existing int64
		err := tx.GetContext(ctx, &existing, tx.Rebind(`SELECT COUNT(*) FROM coupons WHERE campaign = ?`), spec.Campaign)
		if err != nil {
			return apperr.Wrap("batch.count", err)
		}

		coupons := make([]model.Coupon, 0, spec.Count)
		seen := make(map[string]struct{}, spec.Count)
		codes = make([]string, 0, spec.Count)

		// a code colliding within the campaign moves on to the next index
		for index := uint64(existing); len(coupons) < spec.Count; index++ {
			code, err := g.codes.Generate(spec.Prefix, spec.Campaign, index)
			if err != nil {
				return apperr.Wrap("batch.codegen", err)
			}
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}

			c := base
			c.ID = uuid.NewString()
			c.Code = code
			coupons = append(coupons, c)
			codes = append(codes, code)
		}

		if err := g.coupons.CreateBatch(ctx, tx, coupons); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Conflict(apperr.InvalidState, "generated code collides with an existing coupon")
			}
			return apperr.Wrap("batch.insert", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}
