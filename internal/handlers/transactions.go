package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reconciler/internal/middleware"
	"reconciler/internal/models"
	"reconciler/internal/money"
	"reconciler/internal/reconcile"
	"reconciler/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (h *Handler) ListUnmatched(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	side, err := reconcile.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	filter, err := transactionFilter(r, operatorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	transactions, err := h.service.ListUnmatched(r.Context(), side, filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"side": side, "transactions": transactions})
}

func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	side, err := reconcile.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := validator.ValidateTransactionID("id", id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	window, err := parseWindow(r.URL.Query().Get("window"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	candidates, err := h.service.Candidates(r.Context(), operatorID, side, id, window)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

type p2pPayload struct {
	ID           string    `json:"id"`
	Counterparty string    `json:"counterparty"`
	Amount       string    `json:"amount"`
	TotalRub     string    `json:"total_rub"`
	Price        string    `json:"price"`
	CompletedAt  time.Time `json:"completed_at"`
	Method       string    `json:"method"`
	Status       string    `json:"status"`
}

type gatePayload struct {
	ID            string     `json:"id"`
	Wallet        string     `json:"wallet"`
	AmountRub     string     `json:"amount_rub"`
	AmountUsdt    string     `json:"amount_usdt"`
	TotalRub      string     `json:"total_rub"`
	TotalUsdt     string     `json:"total_usdt"`
	Status        int        `json:"status"`
	Bank          string     `json:"bank"`
	PaymentMethod string     `json:"payment_method"`
	Course        string     `json:"course"`
	ApprovedAt    *time.Time `json:"approved_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// amountField collects the first parse failure so payload conversion reads
// as a flat list of fields.
type amountField struct {
	err error
}

func (a *amountField) parse(field, raw string, scale int) decimal.Decimal {
	if a.err != nil {
		return decimal.Zero
	}
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero
	}
	value, err := money.ParseAmount(raw, scale)
	if err != nil {
		a.err = reconcile.Invalid(field, err.Error())
	}
	return value
}

// positive is parse for rates that must be set once a row is settled.
func (a *amountField) positive(field, raw string, scale int) decimal.Decimal {
	if a.err != nil {
		return decimal.Zero
	}
	value, err := money.ParsePositive(raw, scale)
	if err != nil {
		a.err = reconcile.Invalid(field, "must be positive once settled")
	}
	return value
}

func (p p2pPayload) toModel(index int) (models.P2PTransaction, error) {
	var amounts amountField
	field := func(name string) string { return fmt.Sprintf("transactions[%d].%s", index, name) }
	trade := models.P2PTransaction{
		ID:           strings.TrimSpace(p.ID),
		Counterparty: p.Counterparty,
		Amount:       amounts.parse(field("amount"), p.Amount, money.USDTScale),
		TotalRub:     amounts.parse(field("total_rub"), p.TotalRub, money.RUBScale),
		CompletedAt:  p.CompletedAt.UTC(),
		Method:       p.Method,
		Status:       strings.ToLower(strings.TrimSpace(p.Status)),
	}
	if trade.Status == models.P2PStatusCompleted {
		trade.Price = amounts.positive(field("price"), p.Price, money.RateScale)
	} else {
		trade.Price = amounts.parse(field("price"), p.Price, money.RateScale)
	}
	return trade, amounts.err
}

func (p gatePayload) toModel(index int) (models.GateTransaction, error) {
	var amounts amountField
	field := func(name string) string { return fmt.Sprintf("transactions[%d].%s", index, name) }
	payout := models.GateTransaction{
		ID:            strings.TrimSpace(p.ID),
		Wallet:        p.Wallet,
		AmountRub:     amounts.parse(field("amount_rub"), p.AmountRub, money.RUBScale),
		AmountUsdt:    amounts.parse(field("amount_usdt"), p.AmountUsdt, money.USDTScale),
		TotalRub:      amounts.parse(field("total_rub"), p.TotalRub, money.RUBScale),
		TotalUsdt:     amounts.parse(field("total_usdt"), p.TotalUsdt, money.USDTScale),
		Status:        p.Status,
		Bank:          p.Bank,
		PaymentMethod: p.PaymentMethod,
		CreatedAt:     p.CreatedAt.UTC(),
	}
	if p.ApprovedAt != nil {
		approved := p.ApprovedAt.UTC()
		payout.ApprovedAt = &approved
		payout.Course = amounts.positive(field("course"), p.Course, money.RateScale)
	} else {
		payout.Course = amounts.parse(field("course"), p.Course, money.RateScale)
	}
	return payout, amounts.err
}

func (h *Handler) IngestP2P(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Transactions []p2pPayload `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	trades := make([]models.P2PTransaction, 0, len(req.Transactions))
	for i, payload := range req.Transactions {
		trade, err := payload.toModel(i)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		trades = append(trades, trade)
	}
	result, err := h.service.IngestP2P(r.Context(), operatorID, trades)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) IngestGate(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Transactions []gatePayload `json:"transactions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	payouts := make([]models.GateTransaction, 0, len(req.Transactions))
	for i, payload := range req.Transactions {
		payout, err := payload.toModel(i)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		payouts = append(payouts, payout)
	}
	result, err := h.service.IngestGate(r.Context(), operatorID, payouts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
