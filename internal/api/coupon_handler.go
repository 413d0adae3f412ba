package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/metrics"
	"github.com/kkkkikiki/pizzeria/internal/model"
	"github.com/kkkkikiki/pizzeria/internal/notify"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

type validateResponse struct {
	Valid  bool          `json:"valid"`
	Reason apperr.Reason `json:"reason,omitempty"`
	couponView
}

// Validate handles GET /validate. It previews eligibility with the same
// predicate redeem enforces.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		writeError(w, r, apperr.Validation(apperr.BadRequest, "code is required"))
		return
	}

	c, err := s.coupons.GetByCode(r.Context(), s.db, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"valid": false, "reason": apperr.NotFound})
			return
		}
		writeError(w, r, apperr.Wrap("validate.load", err))
		return
	}

	reason := s.eval.Evaluate(c, s.now(), coupon.Subject{
		CustomerID: q.Get("customerId"),
		Segment:    q.Get("segment"),
	})
	res := validateResponse{Valid: reason == apperr.Valid, couponView: newCouponView(c)}
	if !res.Valid {
		res.Reason = reason
	}
	writeJSON(w, http.StatusOK, res)
}

type redeemRequest struct {
	Code            string              `json:"code"`
	CustomerID      string              `json:"customerId"`
	SegmentAtRedeem string              `json:"segmentAtRedeem"`
	SaleID          string              `json:"saleId"`
	StoreID         string              `json:"storeId"`
	DiscountValue   decimal.NullDecimal `json:"discountValue"`
}

// Redeem handles POST /redeem
func (s *Server) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Code == "" {
		writeError(w, r, apperr.Validation(apperr.BadRequest, "code is required"))
		return
	}

	red, err := s.ledger.RedeemCode(r.Context(), coupon.RedeemRequest{
		Code:          req.Code,
		CustomerID:    req.CustomerID,
		Segment:       req.SegmentAtRedeem,
		SaleID:        req.SaleID,
		StoreID:       req.StoreID,
		DiscountValue: req.DiscountValue,
	})
	metrics.RecordRedemption(string(apperr.ReasonOf(err)))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			writeJSON(w, http.StatusConflict, map[string]interface{}{"ok": false, "reason": apperr.ReasonOf(err)})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "code": red.Code, "redemption": red})
}

type assignRequest struct {
	Code  string `json:"code"`
	Hours int    `json:"hours"`
}

// Assign handles POST /assign: it activates a coupon now and moves its
// expiry to now + hours.
func (s *Server) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.maintenance.Extend(r.Context(), req.Code, req.Hours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "coupon": newCouponView(c)})
}

// Issue handles POST /issue: one generic pool coupon for the claimant,
// texted to the contact when one is given.
func (s *Server) Issue(w http.ResponseWriter, r *http.Request) {
	var req coupon.IssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.GameID = ""
	s.issue(w, r, req)
}

type gameIssueRequest struct {
	CustomerID string `json:"customerId"`
	Contact    string `json:"contact"`
	Hours      int    `json:"hours"`
	Channel    string `json:"channel"`
}

// GameIssue handles POST /games/{gameId}/issue
func (s *Server) GameIssue(w http.ResponseWriter, r *http.Request) {
	var req gameIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.issue(w, r, coupon.IssueRequest{
		GameID:     chi.URLParam(r, "gameId"),
		CustomerID: req.CustomerID,
		Contact:    req.Contact,
		Hours:      req.Hours,
		Channel:    req.Channel,
	})
}

func (s *Server) issue(w http.ResponseWriter, r *http.Request, req coupon.IssueRequest) {
	start := time.Now()
	issued, err := s.allocator.Issue(r.Context(), req)

	status := "success"
	switch {
	case apperr.ReasonOf(err) == apperr.OutOfStock:
		status = "out_of_stock"
	case err != nil:
		status = "failed"
	}
	metrics.RecordClaimCouponDuration(status, time.Since(start).Seconds())

	if err != nil {
		writeError(w, r, err)
		return
	}

	res := issueResponse{OK: true, Coupon: newCouponView(issued.Coupon)}
	if req.Contact != "" {
		res.Notification = notify.Dispatch(r.Context(), s.notifier, []notify.Message{{
			To:   req.Contact,
			Body: issueMessage(issued.Coupon),
		}})
	}
	writeJSON(w, http.StatusOK, res)
}

func issueMessage(c *model.Coupon) string {
	var off string
	switch {
	case c.Kind == model.KindAmount && c.Amount.Valid:
		off = c.Amount.Decimal.StringFixed(2) + " off"
	case c.Percent.Valid:
		off = c.Percent.Decimal.String() + "% off"
	default:
		off = "a discount"
	}
	msg := fmt.Sprintf("Your coupon %s gives you %s on your next pizza.", c.Code, off)
	if c.ExpiresAt.Valid {
		msg += " Valid until " + c.ExpiresAt.Time.Format("02/01 15:04") + "."
	}
	return msg
}

// GamePrize handles GET /games/{gameId}/prize: whether the game's pool
// still has a prize to hand out.
func (s *Server) GamePrize(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameId")
	n, err := s.allocator.Available(r.Context(), repository.PoolFilter{GameID: gameID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"gameId":    gameID,
		"available": n > 0,
		"remaining": n,
	})
}
