package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/database"
	"github.com/kkkkikiki/pizzeria/internal/metrics"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/notify"
	"github.com/kkkkikiki/pizzeria/internal/order"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// Signal sources.
const (
	SourceWebhook = "webhook"
	SourceManual  = "manual"
)

// Path is how a confirmation reached its sale.
type Path string

const (
	PathExisting Path = "existing" // sale created before checkout
	PathCart     Path = "cart"     // sale materialized from session metadata
)

const confirmAttempts = 3

// Signal is a "payment succeeded" notice for one checkout session.
type Signal struct {
	SessionID       string
	PaymentIntentID string
	Paid            bool
	Metadata        map[string]string
	Source          string
}

// Outcome is the result of a confirmation. Replay means an earlier
// confirmation already applied every effect.
type Outcome struct {
	Sale          *model.Sale
	Path          Path
	Replay        bool
	Notifications []notify.Result
}

// Reconciler turns payment signals into exactly one paid sale per checkout
// session, taking stock and consuming the coupon once.
type Reconciler struct {
	db        *sqlx.DB
	gateway   Gateway
	assembler *order.Assembler
	stock     *order.StockReserver
	ledger    *coupon.Ledger
	notifier  notify.Notifier
	sales     *repository.SaleRepository
	catalog   *repository.CatalogRepository
	now       func() time.Time
	// inTx picks the executor statements inside a confirmation tx run on.
	inTx func(tx *sqlx.Tx) repository.DBExecutor
}

// NewReconciler creates a reconciler
func NewReconciler(
	db *sqlx.DB,
	gateway Gateway,
	assembler *order.Assembler,
	stock *order.StockReserver,
	ledger *coupon.Ledger,
	notifier notify.Notifier,
) *Reconciler {
	return &Reconciler{
		db:        db,
		gateway:   gateway,
		assembler: assembler,
		stock:     stock,
		ledger:    ledger,
		notifier:  notifier,
		sales:     repository.NewSaleRepository(),
		catalog:   repository.NewCatalogRepository(),
		now:       time.Now,
		inTx:      func(tx *sqlx.Tx) repository.DBExecutor { return tx },
	}
}

// ConfirmSession fetches a session from the gateway and confirms it.
func (r *Reconciler) ConfirmSession(ctx context.Context, sessionID string) (*Outcome, error) {
	if sessionID == "" {
		return nil, apperr.Validation(apperr.BadRequest, "sessionId is required")
	}
	s, err := r.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInternal, Reason: apperr.CheckoutUnavailable, Stage: "confirm.fetch", Cause: err}
	}
	return r.Confirm(ctx, Signal{
		SessionID:       s.ID,
		PaymentIntentID: s.PaymentIntentID,
		Paid:            s.Paid,
		Metadata:        s.Metadata,
		Source:          SourceManual,
	})
}

// ConfirmOrderCode confirms the checkout session attached to an order.
func (r *Reconciler) ConfirmOrderCode(ctx context.Context, code string) (*Outcome, error) {
	sale, err := r.sales.GetByCode(ctx, r.db, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("order not found")
		}
		return nil, apperr.Wrap("confirm.order", err)
	}
	if paidBefore(sale) {
		return &Outcome{Sale: sale, Path: PathExisting, Replay: true}, nil
	}
	if !sale.StripeCheckoutSessionID.Valid {
		return nil, apperr.Conflict(apperr.PaymentNotCompleted, "order has no checkout session")
	}
	return r.ConfirmSession(ctx, sale.StripeCheckoutSessionID.String)
}

// Confirm applies a payment signal. Replays and concurrent duplicates of
// the same session succeed without repeating effects.
func (r *Reconciler) Confirm(ctx context.Context, sig Signal) (*Outcome, error) {
	out, err := r.confirm(ctx, sig)

	path, result := "unknown", string(apperr.ReasonOf(err))
	if out != nil {
		path = string(out.Path)
		if out.Replay {
			result = "replay"
		} else {
			result = "paid"
		}
	}
	metrics.RecordReconciliation(path, result)

	if err != nil {
		stage := apperr.As(err).Stage
		if stage == "" {
			stage = "reconcile"
		}
		log.Printf("stage=%s session=%s source=%s reason=%s error: %v",
			stage, sig.SessionID, sig.Source, apperr.ReasonOf(err), err)
		return nil, err
	}

	if !out.Replay {
		log.Printf("Sale %s paid via %s path (session %s, %s)", out.Sale.Code, out.Path, sig.SessionID, sig.Source)
		out.Notifications = r.notifyPaid(ctx, out.Sale)
	}
	return out, nil
}

func (r *Reconciler) confirm(ctx context.Context, sig Signal) (*Outcome, error) {
	if sig.SessionID == "" {
		return nil, apperr.Validation(apperr.BadRequest, "sessionId is required")
	}
	if !sig.Paid {
		return nil, apperr.Conflict(apperr.PaymentNotCompleted, "checkout session is not paid")
	}

	for attempt := 0; attempt < confirmAttempts; attempt++ {
		sale, err := r.findSale(ctx, sig)
		if err != nil {
			return nil, err
		}

		var out *Outcome
		if sale != nil {
			out, err = r.settle(ctx, sale.ID, sig)
		} else {
			out, err = r.materialize(ctx, sig)
			if err != nil && r.sessionTaken(ctx, sig.SessionID) {
				// a concurrent confirmation committed the sale while this
				// one was assembling it
				continue
			}
		}
		if errors.Is(err, repository.ErrDuplicate) {
			// a concurrent confirmation created or claimed the sale first
			continue
		}
		return out, err
	}
	return nil, apperr.Wrap("reconcile.retry", errors.New("checkout session kept conflicting"))
}

// findSale looks the sale up by session id, then by the sale id the session
// was created for.
func (r *Reconciler) findSale(ctx context.Context, sig Signal) (*model.Sale, error) {
	sale, err := r.sales.GetByCheckoutSession(ctx, r.db, sig.SessionID)
	if err == nil {
		return sale, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap("reconcile.lookup", err)
	}

	saleID := sig.Metadata[MetaSaleID]
	if saleID == "" {
		return nil, nil
	}
	sale, err = r.sales.GetByID(ctx, r.db, saleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("order " + saleID + " not found")
		}
		return nil, apperr.Wrap("reconcile.lookup", err)
	}
	return sale, nil
}

// settle pays an existing sale.
func (r *Reconciler) settle(ctx context.Context, saleID string, sig Signal) (*Outcome, error) {
	out := &Outcome{Path: PathExisting}

	err := database.WithTx(ctx, r.db, func(sqlTx *sqlx.Tx) error {
		tx := r.inTx(sqlTx)
		sale, err := r.sales.GetByID(ctx, tx, saleID)
		if err != nil {
			return apperr.Wrap("reconcile.load", err)
		}

		switch {
		case paidBefore(sale):
			out.Sale, out.Replay = sale, true
			return nil
		case sale.Status == model.SaleCancelled:
			return apperr.Conflict(apperr.InvalidState, "order "+sale.Code+" was cancelled")
		}

		ok, err := r.sales.MarkPaid(ctx, tx, sale.ID, sig.SessionID, sig.PaymentIntentID, r.now())
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return err
			}
			return apperr.Wrap("reconcile.mark_paid", err)
		}
		if !ok {
			// paid by a concurrent confirmation
			out.Sale, out.Replay = sale, true
			return nil
		}

		if err := r.applyEffects(ctx, tx, sale); err != nil {
			return err
		}

		out.Sale, err = r.sales.GetByID(ctx, tx, sale.ID)
		if err != nil {
			return apperr.Wrap("reconcile.reload", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Replay && !paidBefore(out.Sale) {
		sale, err := r.sales.GetByID(ctx, r.db, saleID)
		if err != nil {
			return nil, apperr.Wrap("reconcile.reload", err)
		}
		out.Sale = sale
	}
	return out, nil
}

// paidBefore reports whether a sale was already paid, including sales
// cancelled after payment.
func paidBefore(sale *model.Sale) bool {
	return sale.Status == model.SalePaid || sale.PaidAt.Valid
}

// materialize creates the paid sale from the cart carried in the session.
func (r *Reconciler) materialize(ctx context.Context, sig Signal) (*Outcome, error) {
	cart, err := DecodeCart(sig.Metadata)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperr.Conflict(apperr.MissingCart, "checkout session has no order and no cart")
	}

	out := &Outcome{Path: PathCart}
	err = database.WithTx(ctx, r.db, func(sqlTx *sqlx.Tx) error {
		tx := r.inTx(sqlTx)
		if _, err := r.sales.GetByCheckoutSession(ctx, tx, sig.SessionID); err == nil {
			return repository.ErrDuplicate
		}

		asm, err := r.assembler.Assemble(ctx, tx, *cart)
		if err != nil {
			return err
		}

		code, err := order.NewSaleCode()
		if err != nil {
			return apperr.Wrap("reconcile.code", err)
		}
		sale := order.NewSale(asm, code, model.SalePaid, r.now())
		sale.StripeCheckoutSessionID = nullString(sig.SessionID)
		sale.StripePaymentIntentID = nullString(sig.PaymentIntentID)

		if err := r.sales.Create(ctx, tx, sale); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return err
			}
			return apperr.Wrap("reconcile.create", err)
		}

		if err := r.applyEffects(ctx, tx, sale); err != nil {
			return err
		}
		out.Sale = sale
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Reconciler) sessionTaken(ctx context.Context, sessionID string) bool {
	_, err := r.sales.GetByCheckoutSession(ctx, r.db, sessionID)
	return err == nil
}

// applyEffects takes stock and consumes the coupon of a sale that just
// became PAID inside tx.
func (r *Reconciler) applyEffects(ctx context.Context, tx repository.DBExecutor, sale *model.Sale) error {
	err := r.stock.Reserve(ctx, tx, sale.StoreID, sale.Products)
	metrics.RecordStockReservation(string(apperr.ReasonOf(err)))
	if err != nil {
		return err
	}

	if !sale.CouponCode.Valid {
		return nil
	}

	req := coupon.RedeemRequest{
		Code:       sale.CouponCode.String,
		CustomerID: order.Customer{ID: sale.CustomerID.String, Phone: sale.CustomerPhone.String}.SubjectID(),
		Segment:    sale.CustomerSegment.String,
		SaleID:     sale.ID,
		StoreID:    sale.StoreID,
		Subtotal:   decimal.NewNullDecimal(sale.TotalProducts),
	}
	if line, ok := sale.Extras.CouponLine(); ok {
		req.DiscountValue = line.DiscountValue
	}

	_, err = r.ledger.Redeem(ctx, tx, req)
	metrics.RecordRedemption(string(apperr.ReasonOf(err)))
	return err
}

func (r *Reconciler) notifyPaid(ctx context.Context, sale *model.Sale) []notify.Result {
	var msgs []notify.Message

	if sale.CustomerPhone.Valid {
		msgs = append(msgs, notify.Message{
			To:   sale.CustomerPhone.String,
			Body: fmt.Sprintf("Your order %s is confirmed. Total %s.", sale.Code, sale.Total.StringFixed(2)),
		})
	}

	store, err := r.catalog.GetStore(ctx, r.db, sale.StoreID)
	if err != nil {
		log.Printf("stage=notify.store sale=%s error: %v", sale.Code, err)
	} else if store.Phone.Valid {
		msgs = append(msgs, notify.Message{
			To:   store.Phone.String,
			Body: fmt.Sprintf("New paid order %s: %d lines, total %s.", sale.Code, len(sale.Products), sale.Total.StringFixed(2)),
		})
	}

	return notify.Dispatch(ctx, r.notifier, msgs)
}
