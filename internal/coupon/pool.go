package coupon

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

const defaultAllocateAttempts = 8

// Claim describes who receives a pool coupon and for how long. An empty
// ClaimantID issues a bearer coupon that anyone holding the code may use.
type Claim struct {
	ClaimantID  string
	Hours       int // 0 keeps the coupon's own expiry
	Acquisition string
	Channel     string
}

// Allocator hands unassigned pool coupons to claimants, one coupon per
// claimant, never the same coupon twice.
type Allocator struct {
	db          repository.DBExecutor
	coupons     *repository.CouponRepository
	maxAttempts int
	now         func() time.Time
	draw        func() float64
}

// NewAllocator creates an allocator over db
func NewAllocator(db *sqlx.DB) *Allocator {
	return &Allocator{
		db:          db,
		coupons:     repository.NewCouponRepository(),
		maxAttempts: defaultAllocateAttempts,
		now:         time.Now,
		draw:        rand.Float64,
	}
}

// Allocate assigns one coupon matching f to the claimant. An empty pool
// returns an out_of_stock conflict.
func (a *Allocator) Allocate(ctx context.Context, f repository.PoolFilter, claim Claim) (*model.Coupon, error) {
	if claim.Hours < 0 {
		return nil, apperr.Validation(apperr.BadHours, "hours must not be negative")
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		now := a.now()

		assignment := repository.Assignment{
			AssigneeID:  claim.ClaimantID,
			Acquisition: claim.Acquisition,
			Channel:     claim.Channel,
			RangeDraw:   a.draw(),
		}
		if claim.Hours > 0 {
			assignment.ExpiresAt = model.MillisOf(now.Add(time.Duration(claim.Hours) * time.Hour))
		}

		c, err := a.coupons.Allocate(ctx, a.db, f, assignment, now)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Wrap("allocate.update", err)
		}

		// Zero rows: either the pool is empty or another claimant took the
		// row we selected.
		remaining, err := a.coupons.CountPool(ctx, a.db, f, now)
		if err != nil {
			return nil, apperr.Wrap("allocate.count", err)
		}
		if remaining == 0 {
			return nil, apperr.Conflict(apperr.OutOfStock, "no pool coupon left")
		}
	}

	return nil, apperr.Conflict(apperr.OutOfStock, "pool contended, retries exhausted")
}

// Available counts the pool coupons matching f that can still be claimed
func (a *Allocator) Available(ctx context.Context, f repository.PoolFilter) (int64, error) {
	n, err := a.coupons.CountPool(ctx, a.db, f, a.now())
	if err != nil {
		return 0, apperr.Wrap("allocate.available", err)
	}
	return n, nil
}

// ClaimantID picks the identity a pool coupon is reserved to: the customer
// id, else the normalized contact. Empty means an anonymous claim.
func ClaimantID(customerID, contact string) string {
	if id := strings.TrimSpace(customerID); id != "" {
		return id
	}
	return NormalizeContact(contact)
}

// DefaultCountryCode is the dialing code assumed for phone numbers written
// without one.
const DefaultCountryCode = "34"

// NormalizeContact lowercases emails and rewrites phone numbers as "+"
// followed by digits, so "600 111 222", "0034600111222" and
// "+34 600-111-222" all name the same claimant.
func NormalizeContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return ""
	}
	if strings.Contains(contact, "@") {
		return strings.ToLower(contact)
	}

	var digits strings.Builder
	for _, r := range contact {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(contact, "+"):
	case strings.HasPrefix(d, "00") && len(d) > 2:
		d = d[2:]
	default:
		d = DefaultCountryCode + d
	}
	return "+" + d
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
