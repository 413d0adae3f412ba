package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/database/dbtest"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/notify"
	"github.com/kkkkikiki/pizzeria/internal/order"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

type fakeGateway struct {
	mu       sync.Mutex
	next     int
	sessions map[string]*Session
	created  []CheckoutParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]*Session{}}
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	id := fmt.Sprintf("cs_test_%d", g.next)
	s := &Session{ID: id, URL: "https://checkout.stripe.test/" + id, Metadata: p.Metadata}
	g.sessions[id] = s
	g.created = append(g.created, p)
	return s, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, id string) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	cp := *s
	return &cp, nil
}

// pay marks a session paid the way Stripe would after the customer pays.
func (g *fakeGateway) pay(id string) Signal {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[id]
	s.Paid = true
	s.PaymentIntentID = "pi_" + id
	return Signal{SessionID: s.ID, PaymentIntentID: s.PaymentIntentID, Paid: true, Metadata: s.Metadata, Source: SourceWebhook}
}

type recordingNotifier struct {
	mu   sync.Mutex
	fail bool
	sent []notify.Message
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("sms gateway down")
	}
	n.sent = append(n.sent, msg)
	return nil
}

type fixture struct {
	db         *sqlx.DB
	gateway    *fakeGateway
	notifier   *recordingNotifier
	orders     *order.Service
	checkout   *Checkout
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.Store(t, db, "s1")
	dbtest.Pizza(t, db, "margherita", "Margherita", map[string]string{"M": "12.00"})
	dbtest.Pizza(t, db, "pepperoni", "Pepperoni", map[string]string{"M": "10.00"})
	dbtest.Stock(t, db, "s1", "margherita", 10)
	dbtest.Stock(t, db, "s1", "pepperoni", 10)

	eval := coupon.NewEvaluator(time.UTC)
	assembler := order.NewAssembler(eval)
	stock := order.NewStockReserver()
	orders := order.NewService(db, assembler, stock)
	gateway := newFakeGateway()
	notifier := &recordingNotifier{}

	return &fixture{
		db:         db,
		gateway:    gateway,
		notifier:   notifier,
		orders:     orders,
		checkout:   NewCheckout(db, gateway, orders, assembler, stock),
		reconciler: NewReconciler(db, gateway, assembler, stock, coupon.NewLedger(db, eval), notifier),
	}
}

func (f *fixture) countSales(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.Get(&n, `SELECT COUNT(*) FROM sales`))
	return n
}

func (f *fixture) coupon(t *testing.T, code string) *model.Coupon {
	t.Helper()
	c, err := repository.NewCouponRepository().GetByCode(context.Background(), f.db, code)
	require.NoError(t, err)
	return c
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
