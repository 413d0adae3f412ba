// Package order prices carts into sales and reserves store stock for them.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// MaxQuantity bounds the quantity of a single line.
const MaxQuantity = 99

// ExtraRequest is a signed amount asked for on a line or on the order.
type ExtraRequest struct {
	Code       string          `json:"code"`
	Label      string          `json:"label,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Chargeable *bool           `json:"chargeable,omitempty"`
}

// ItemRequest is one requested cart line. PizzaID may be a catalog id or
// a pizza name.
type ItemRequest struct {
	PizzaID  string         `json:"pizzaId"`
	Name     string         `json:"name,omitempty"`
	Size     string         `json:"size"`
	Quantity int            `json:"quantity"`
	Extras   []ExtraRequest `json:"extras,omitempty"`
}

// Customer identifies who orders.
type Customer struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Segment string `json:"segment,omitempty"`
}

// SubjectID is the identity coupons are checked against: the customer id,
// else the normalized phone that anonymous coupons are reserved to.
func (c Customer) SubjectID() string {
	if c.ID != "" {
		return c.ID
	}
	return coupon.NormalizeContact(c.Phone)
}

// OrderRequest is a cart as sent by a client or carried in checkout metadata.
type OrderRequest struct {
	StoreID       string              `json:"storeId"`
	Items         []ItemRequest       `json:"items"`
	Extras        []ExtraRequest      `json:"extras,omitempty"`
	Customer      *Customer           `json:"customer,omitempty"`
	Coupon        string              `json:"coupon,omitempty"`
	DiscountValue decimal.NullDecimal `json:"discountValue,omitempty"`
}

// Assembly is a priced, validated cart.
type Assembly struct {
	StoreID       string
	Customer      Customer
	Lines         model.LineItems
	Extras        model.Extras
	TotalProducts decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	Coupon        *model.Coupon
	Terms         *coupon.Terms
}

// Assembler prices carts against the catalog.
type Assembler struct {
	catalog *repository.CatalogRepository
	coupons *repository.CouponRepository
	eval    *coupon.Evaluator
	now     func() time.Time
}

// NewAssembler creates an assembler
func NewAssembler(eval *coupon.Evaluator) *Assembler {
	return &Assembler{
		catalog: repository.NewCatalogRepository(),
		coupons: repository.NewCouponRepository(),
		eval:    eval,
		now:     time.Now,
	}
}

// Assemble prices req. The discount applies to products only, order extras
// are added afterwards and are never discounted.
func (a *Assembler) Assemble(ctx context.Context, db repository.DBExecutor, req OrderRequest) (*Assembly, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation(apperr.EmptyCart, "cart has no items")
	}

	store, err := a.catalog.GetStore(ctx, db, req.StoreID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Validation(apperr.UnknownStore, "unknown store "+req.StoreID)
		}
		return nil, apperr.Wrap("assemble.store", err)
	}
	if !store.Active {
		return nil, apperr.Validation(apperr.UnknownStore, "store "+req.StoreID+" is closed")
	}

	asm := &Assembly{StoreID: store.ID, TotalProducts: decimal.Zero}
	if req.Customer != nil {
		asm.Customer = *req.Customer
	}

	for i, item := range req.Items {
		line, err := a.priceLine(ctx, db, i, item)
		if err != nil {
			return nil, err
		}
		asm.Lines = append(asm.Lines, line)
		asm.TotalProducts = asm.TotalProducts.Add(line.Total)
	}

	asm.Discount = decimal.Zero
	if code := strings.TrimSpace(req.Coupon); code != "" {
		if err := a.applyCoupon(ctx, db, asm, code, req.DiscountValue); err != nil {
			return nil, err
		}
	}

	asm.Total = asm.TotalProducts.Sub(asm.Discount)
	for _, x := range req.Extras {
		extra, err := orderExtra(x)
		if err != nil {
			return nil, err
		}
		asm.Extras = append(asm.Extras, extra)
		if extra.Chargeable {
			asm.Total = asm.Total.Add(extra.Amount)
		}
	}
	if asm.Total.IsNegative() {
		return nil, apperr.Validation(apperr.BadExtra, "extras make the total negative")
	}

	return asm, nil
}

func (a *Assembler) priceLine(ctx context.Context, db repository.DBExecutor, i int, item ItemRequest) (model.LineItem, error) {
	ref := strings.TrimSpace(item.PizzaID)
	if ref == "" {
		ref = strings.TrimSpace(item.Name)
	}
	if ref == "" {
		return model.LineItem{}, apperr.Validation(apperr.UnknownProduct, fmt.Sprintf("item %d has no product", i))
	}

	pizza, err := a.catalog.FindPizza(ctx, db, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.LineItem{}, apperr.Validation(apperr.UnknownProduct, "unknown product "+ref)
		}
		return model.LineItem{}, apperr.Wrap("assemble.product", err)
	}
	if !pizza.Active {
		return model.LineItem{}, apperr.Validation(apperr.UnknownProduct, "product "+ref+" is not sold")
	}

	size := strings.TrimSpace(item.Size)
	if size == "" {
		return model.LineItem{}, apperr.Validation(apperr.MissingSize, "missing size for "+pizza.Name)
	}
	if item.Quantity <= 0 || item.Quantity > MaxQuantity {
		return model.LineItem{}, apperr.Validation(apperr.BadQuantity, fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity))
	}

	price, err := a.catalog.GetPrice(ctx, db, pizza.ID, size)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.LineItem{}, apperr.Validation(apperr.NoPrice, fmt.Sprintf("no price for %s size %s", pizza.Name, size))
		}
		return model.LineItem{}, apperr.Wrap("assemble.price", err)
	}

	line := model.LineItem{
		PizzaID:   pizza.ID,
		Name:      pizza.Name,
		Size:      size,
		Quantity:  item.Quantity,
		UnitPrice: price.Price,
	}

	unit := price.Price
	for _, x := range item.Extras {
		if strings.TrimSpace(x.Code) == "" {
			return model.LineItem{}, apperr.Validation(apperr.BadExtra, "line extra without code")
		}
		line.Extras = append(line.Extras, model.Extra{
			Code:       x.Code,
			Label:      labelOr(x.Label, x.Code),
			Kind:       model.ExtraFee,
			Amount:     x.Amount,
			Chargeable: true,
		})
		unit = unit.Add(x.Amount)
	}
	if unit.IsNegative() {
		return model.LineItem{}, apperr.Validation(apperr.BadExtra, "line extras make the price negative")
	}

	line.Total = unit.Mul(decimal.NewFromInt(int64(item.Quantity)))
	return line, nil
}

func (a *Assembler) applyCoupon(ctx context.Context, db repository.DBExecutor, asm *Assembly, code string, requested decimal.NullDecimal) error {
	c, err := a.coupons.GetByCode(ctx, db, code)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Wrap("assemble.coupon", err)
	}

	subject := coupon.Subject{CustomerID: asm.Customer.SubjectID(), Segment: asm.Customer.Segment}
	if reason := a.eval.Evaluate(c, a.now(), subject); reason != apperr.Valid {
		if reason == apperr.NotFound {
			return apperr.NotFoundf("coupon not found")
		}
		return apperr.Conflict(reason, "coupon not usable").WithDetail("coupon", code)
	}

	terms, err := coupon.ResolveTerms(c, requested)
	if err != nil {
		return err
	}

	asm.Coupon = c
	asm.Terms = &terms
	asm.Discount = terms.Discount(asm.TotalProducts)
	asm.Extras = append(asm.Extras, model.Extra{
		Code:          c.Code,
		Label:         "Coupon " + c.Code,
		Kind:          model.ExtraCoupon,
		Amount:        asm.Discount.Neg(),
		Chargeable:    false,
		DiscountValue: decimal.NewNullDecimal(terms.Value()),
	})
	return nil
}

func orderExtra(x ExtraRequest) (model.Extra, error) {
	code := strings.TrimSpace(x.Code)
	if code == "" {
		return model.Extra{}, apperr.Validation(apperr.BadExtra, "order extra without code")
	}
	chargeable := true
	if x.Chargeable != nil {
		chargeable = *x.Chargeable
	}
	return model.Extra{
		Code:       code,
		Label:      labelOr(x.Label, code),
		Kind:       model.ExtraFee,
		Amount:     x.Amount,
		Chargeable: chargeable,
	}, nil
}

func labelOr(label, fallback string) string {
	if l := strings.TrimSpace(label); l != "" {
		return l
	}
	return fallback
}
