package order

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/database"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

const (
	saleCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	saleCodeLen      = 6
	saleCodeAttempts = 5
)

// NewSaleCode returns a random public order code such as P-7KQ2MX.
func NewSaleCode() (string, error) {
	buf := make([]byte, saleCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = saleCodeAlphabet[int(b)%len(saleCodeAlphabet)]
	}
	return "P-" + string(buf), nil
}

// NewSale builds the sale row for an assembled cart.
func NewSale(a *Assembly, code string, status model.SaleStatus, now time.Time) *model.Sale {
	s := &model.Sale{
		ID:              uuid.NewString(),
		Code:            code,
		StoreID:         a.StoreID,
		CustomerID:      nullString(a.Customer.ID),
		CustomerName:    nullString(a.Customer.Name),
		CustomerPhone:   nullString(a.Customer.Phone),
		CustomerSegment: nullString(a.Customer.Segment),
		Status:          status,
		Products:        a.Lines,
		Extras:          a.Extras,
		TotalProducts:   a.TotalProducts,
		Discounts:       a.Discount,
		Total:           a.Total,
		CreatedAt:       model.MillisOf(now),
		UpdatedAt:       model.MillisOf(now),
	}
	if a.Coupon != nil {
		s.CouponCode = nullString(a.Coupon.Code)
	}
	if status == model.SalePaid {
		s.PaidAt = model.MillisOf(now)
	}
	return s
}

// Service places orders awaiting payment.
type Service struct {
	db        *sqlx.DB
	assembler *Assembler
	stock     *StockReserver
	sales     *repository.SaleRepository
	now       func() time.Time
}

// NewService creates an order service
func NewService(db *sqlx.DB, assembler *Assembler, stock *StockReserver) *Service {
	return &Service{
		db:        db,
		assembler: assembler,
		stock:     stock,
		sales:     repository.NewSaleRepository(),
		now:       time.Now,
	}
}

// Place prices req and stores it as AWAITING_PAYMENT. Stock is checked but
// only taken when the payment is confirmed.
func (s *Service) Place(ctx context.Context, req OrderRequest) (*model.Sale, error) {
	for attempt := 0; attempt < saleCodeAttempts; attempt++ {
		code, err := NewSaleCode()
		if err != nil {
			return nil, apperr.Wrap("order.code", err)
		}

		var sale *model.Sale
		err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
			asm, err := s.assembler.Assemble(ctx, tx, req)
			if err != nil {
				return err
			}
			if err := s.stock.Check(ctx, tx, asm.StoreID, asm.Lines); err != nil {
				return err
			}

			sale = NewSale(asm, code, model.SaleAwaitingPayment, s.now())
			return s.sales.Create(ctx, tx, sale)
		})
		if err == nil {
			return sale, nil
		}
		if errors.Is(err, repository.ErrDuplicate) {
			log.Printf("Sale code %s already taken, retrying", code)
			continue
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Wrap("order.create", err)
	}
	return nil, apperr.Wrap("order.code", errors.New("could not allocate a unique sale code"))
}

// Get loads a sale by id or by public code.
func (s *Service) Get(ctx context.Context, idOrCode string) (*model.Sale, error) {
	sale, err := s.sales.GetByCode(ctx, s.db, idOrCode)
	if errors.Is(err, repository.ErrNotFound) {
		sale, err = s.sales.GetByID(ctx, s.db, idOrCode)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("order not found")
		}
		return nil, apperr.Wrap("order.get", err)
	}
	return sale, nil
}

// Cancel moves an order to CANCELLED. A PAID order gives its stock back;
// consumed coupons stay consumed.
func (s *Service) Cancel(ctx context.Context, idOrCode string) (*model.Sale, error) {
	sale, err := s.Get(ctx, idOrCode)
	if err != nil {
		return nil, err
	}

	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := s.sales.GetByID(ctx, tx, sale.ID)
		if err != nil {
			return apperr.Wrap("cancel.load", err)
		}
		if current.Status == model.SaleCancelled {
			sale = current
			return nil
		}

		ok, err := s.sales.Transition(ctx, tx, current.ID, current.Status, model.SaleCancelled, s.now())
		if err != nil {
			return apperr.Wrap("cancel.update", err)
		}
		if !ok {
			return apperr.Conflict(apperr.InvalidState, "order changed while cancelling")
		}
		if current.Status == model.SalePaid {
			if err := s.stock.Release(ctx, tx, current.StoreID, current.Products); err != nil {
				return err
			}
		}

		sale, err = s.sales.GetByID(ctx, tx, current.ID)
		if err != nil {
			return apperr.Wrap("cancel.reload", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
