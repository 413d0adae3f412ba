package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// BulkCoupons handles POST /admin/coupons/bulk
func (s *Server) BulkCoupons(w http.ResponseWriter, r *http.Request) {
	var spec coupon.BatchSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, r, err)
		return
	}

	codes, err := s.batches.Generate(r.Context(), spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Printf("Generated %d coupons for campaign %s", len(codes), spec.Campaign)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign": spec.Campaign,
		"count":    len(codes),
		"codes":    codes,
	})
}

// SweepCoupons handles POST /admin/coupons/sweep
func (s *Server) SweepCoupons(w http.ResponseWriter, r *http.Request) {
	n, err := s.maintenance.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"expired": n})
}

type redemptionView struct {
	model.CouponRedemption
	SaleID  string `json:"saleId,omitempty"`
	StoreID string `json:"storeId,omitempty"`
}

// CouponRedemptions handles GET /admin/coupons/{code}/redemptions
func (s *Server) CouponRedemptions(w http.ResponseWriter, r *http.Request) {
	c, err := s.coupons.GetByCode(r.Context(), s.db, chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, r, apperr.NotFoundf("coupon not found"))
			return
		}
		writeError(w, r, apperr.Wrap("admin.redemptions.coupon", err))
		return
	}

	history, err := s.redemptions.ListByCoupon(r.Context(), s.db, c.ID)
	if err != nil {
		writeError(w, r, apperr.Wrap("admin.redemptions", err))
		return
	}
	views := make([]redemptionView, 0, len(history))
	for _, red := range history {
		views = append(views, redemptionView{CouponRedemption: red, SaleID: red.SaleID.String, StoreID: red.StoreID.String})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":        c.Code,
		"status":      c.Status,
		"usedCount":   c.UsedCount,
		"redemptions": views,
	})
}

// StoreStock handles GET /admin/stores/{storeId}/stock
func (s *Server) StoreStock(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")
	if _, err := s.catalog.GetStore(r.Context(), s.db, storeID); err != nil {
		writeError(w, r, catalogError(err, apperr.UnknownStore, "admin.stock.store"))
		return
	}

	rows, err := s.stock.ListForStore(r.Context(), s.db, storeID)
	if err != nil {
		writeError(w, r, apperr.Wrap("admin.stock.list", err))
		return
	}
	if rows == nil {
		rows = []model.StorePizzaStock{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"storeId": storeID, "stock": rows})
}

type stockRequest struct {
	StoreID string `json:"storeId"`
	PizzaID string `json:"pizzaId"`
	Stock   int64  `json:"stock"`
	Active  *bool  `json:"active"`
}

// SetStock handles PUT /admin/stock: sets the absolute stock of a pizza
// in a store.
func (s *Server) SetStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.StoreID == "" || req.PizzaID == "" {
		writeError(w, r, apperr.Validation(apperr.BadRequest, "storeId and pizzaId are required"))
		return
	}
	if req.Stock < 0 {
		writeError(w, r, apperr.Validation(apperr.BadQuantity, "stock must not be negative"))
		return
	}

	if _, err := s.catalog.GetStore(r.Context(), s.db, req.StoreID); err != nil {
		writeError(w, r, catalogError(err, apperr.UnknownStore, "admin.stock.store"))
		return
	}
	pizza, err := s.catalog.FindPizza(r.Context(), s.db, req.PizzaID)
	if err != nil {
		writeError(w, r, catalogError(err, apperr.UnknownProduct, "admin.stock.pizza"))
		return
	}

	row := model.StorePizzaStock{
		StoreID:   req.StoreID,
		PizzaID:   pizza.ID,
		Stock:     req.Stock,
		Active:    req.Active == nil || *req.Active,
		UpdatedAt: model.MillisOf(s.now()),
	}
	if err := s.stock.Upsert(r.Context(), s.db, row); err != nil {
		writeError(w, r, apperr.Wrap("admin.stock", err))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// CancelOrder handles POST /admin/orders/{ref}/cancel
func (s *Server) CancelOrder(w http.ResponseWriter, r *http.Request) {
	sale, err := s.orders.Cancel(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSaleView(sale))
}

func catalogError(err error, reason apperr.Reason, stage string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.Validation(reason, "not in catalog")
	}
	return apperr.Wrap(stage, err)
}
