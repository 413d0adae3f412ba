package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/order"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// CheckoutRequest pays for an existing order (OrderID or Code) or for a
// cart that becomes an order only once paid.
type CheckoutRequest struct {
	OrderID string              `json:"orderId"`
	Code    string              `json:"code"`
	Cart    *order.OrderRequest `json:"cart"`
}

// CheckoutSession is what the client needs to redirect to Stripe.
type CheckoutSession struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
	SaleCode  string `json:"saleCode,omitempty"`
}

// Checkout opens payment sessions.
type Checkout struct {
	db        *sqlx.DB
	gateway   Gateway
	orders    *order.Service
	assembler *order.Assembler
	stock     *order.StockReserver
	sales     *repository.SaleRepository
	now       func() time.Time
}

// NewCheckout creates a checkout service
func NewCheckout(db *sqlx.DB, gateway Gateway, orders *order.Service, assembler *order.Assembler, stock *order.StockReserver) *Checkout {
	return &Checkout{
		db:        db,
		gateway:   gateway,
		orders:    orders,
		assembler: assembler,
		stock:     stock,
		sales:     repository.NewSaleRepository(),
		now:       time.Now,
	}
}

// Create opens a checkout session for req.
func (c *Checkout) Create(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	switch {
	case req.OrderID != "" || req.Code != "":
		ref := req.OrderID
		if ref == "" {
			ref = req.Code
		}
		return c.forOrder(ctx, ref)
	case req.Cart != nil:
		return c.forCart(ctx, *req.Cart)
	}
	return nil, apperr.Validation(apperr.BadRequest, "orderId, code or cart is required")
}

func (c *Checkout) forOrder(ctx context.Context, ref string) (*CheckoutSession, error) {
	sale, err := c.orders.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if sale.Status != model.SaleAwaitingPayment {
		return nil, apperr.Conflict(apperr.InvalidState, "order "+sale.Code+" is "+string(sale.Status))
	}

	s, err := c.open(ctx, CheckoutParams{
		Reference:   sale.ID,
		Description: "Order " + sale.Code,
		Amount:      sale.Total,
		Metadata:    map[string]string{MetaSaleID: sale.ID, MetaSaleCode: sale.Code},
	})
	if err != nil {
		return nil, err
	}

	ok, err := c.sales.AttachCheckoutSession(ctx, c.db, sale.ID, s.ID, c.now())
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.DuplicateCheckout, "checkout session already bound to another order")
		}
		return nil, apperr.Wrap("checkout.attach", err)
	}
	if !ok {
		return nil, apperr.Conflict(apperr.InvalidState, "order "+sale.Code+" was paid or cancelled meanwhile")
	}

	return &CheckoutSession{URL: s.URL, SessionID: s.ID, SaleCode: sale.Code}, nil
}

func (c *Checkout) forCart(ctx context.Context, cart order.OrderRequest) (*CheckoutSession, error) {
	asm, err := c.assembler.Assemble(ctx, c.db, cart)
	if err != nil {
		return nil, err
	}
	if err := c.stock.Check(ctx, c.db, asm.StoreID, asm.Lines); err != nil {
		return nil, err
	}

	meta := map[string]string{}
	if err := EncodeCart(cart, meta); err != nil {
		return nil, err
	}

	s, err := c.open(ctx, CheckoutParams{
		Reference:   asm.StoreID,
		Description: "Pizzeria order",
		Amount:      asm.Total,
		Metadata:    meta,
	})
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{URL: s.URL, SessionID: s.ID}, nil
}

func (c *Checkout) open(ctx context.Context, p CheckoutParams) (*Session, error) {
	if Cents(p.Amount) <= 0 {
		return nil, apperr.Validation(apperr.BadRequest, "nothing to pay")
	}
	s, err := c.gateway.CreateCheckoutSession(ctx, p)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInternal, Reason: apperr.CheckoutUnavailable, Stage: "checkout.create", Cause: err}
	}
	return s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
