package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nationforge/economy/internal/domain"
)

// LedgerService defines the methods the account handler requires from the
// service layer.
type LedgerService interface {
	Earn(ctx context.Context, accountID string, amount decimal.Decimal, typ domain.TransactionType, source string, metadata map[string]string) (domain.Transaction, error)
	Spend(ctx context.Context, accountID string, amount decimal.Decimal, typ domain.TransactionType, source string, metadata map[string]string) (domain.Transaction, error)
	Adjust(ctx context.Context, accountID string, amount decimal.Decimal, source string, metadata map[string]string) (domain.Transaction, error)
	GetBalance(ctx context.Context, accountID string) (domain.Account, error)
	GetHistory(ctx context.Context, accountID string, typ domain.TransactionType, opts domain.ListOpts) ([]domain.Transaction, error)
	RecordLogin(ctx context.Context, accountID string, now time.Time) (domain.LoginResult, *domain.Transaction, error)
}

// AccountHandler serves account balance and ledger endpoints.
type AccountHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and
// logger.
func NewAccountHandler(ledger LedgerService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		ledger: ledger,
		logger: logHandler(logger, "account"),
	}
}

// GetBalance returns the account snapshot. Unknown accounts report a zero
// balance.
// GET /api/accounts/{id}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	account, err := h.ledger.GetBalance(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get balance failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// listTransactionsResponse wraps the transaction history response.
type listTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// ListTransactions returns a page of the account's transaction log, newest
// first, optionally filtered by type.
// GET /api/accounts/{id}/transactions?type=EARN_MISSION&limit=50&offset=0
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	typ := domain.TransactionType(r.URL.Query().Get("type"))
	txns, err := h.ledger.GetHistory(r.Context(), id, typ, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list transactions failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	if txns == nil {
		txns = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, listTransactionsResponse{Transactions: txns})
}

// entryRequest is the body for earn and spend.
type entryRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Type     string            `json:"type"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Earn credits an account.
// POST /api/accounts/{id}/earn
func (h *AccountHandler) Earn(w http.ResponseWriter, r *http.Request) {
	h.applyEntry(w, r, h.ledger.Earn)
}

// Spend debits an account.
// POST /api/accounts/{id}/spend
func (h *AccountHandler) Spend(w http.ResponseWriter, r *http.Request) {
	h.applyEntry(w, r, h.ledger.Spend)
}

func (h *AccountHandler) applyEntry(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, string, decimal.Decimal, domain.TransactionType, string, map[string]string) (domain.Transaction, error),
) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" || req.Source == "" {
		writeError(w, http.StatusBadRequest, "type and source are required")
		return
	}

	txn, err := apply(r.Context(), id, req.Amount, domain.TransactionType(req.Type), req.Source, req.Metadata)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "ledger entry failed",
			slog.String("account_id", id),
			slog.String("type", req.Type),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to apply entry")
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

// adjustRequest is the body for administrative corrections. Amount is signed.
type adjustRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Adjust applies a signed administrative correction.
// POST /api/accounts/{id}/adjust
func (h *AccountHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	txn, err := h.ledger.Adjust(r.Context(), id, req.Amount, req.Source, req.Metadata)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "adjustment failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to apply adjustment")
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

// loginResponse reports the streak state and the bonus transaction, when one
// was paid.
type loginResponse struct {
	Streak     int                 `json:"streak"`
	FirstToday bool                `json:"first_today"`
	Bonus      *domain.Transaction `json:"bonus,omitempty"`
}

// RecordLogin advances the account's daily login streak and pays the streak
// bonus on the first login of the day.
// POST /api/accounts/{id}/login
func (h *AccountHandler) RecordLogin(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing account id")
		return
	}

	result, bonus, err := h.ledger.RecordLogin(r.Context(), id, time.Now().UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "record login failed",
			slog.String("account_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to record login")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Streak:     result.Streak,
		FirstToday: result.FirstToday,
		Bonus:      bonus,
	})
}
