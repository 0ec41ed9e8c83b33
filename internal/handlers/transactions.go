package handlers

import (
	"net/http"

	"github.com/corebank/ledger/internal/ledger"
)

type transactionRequest struct {
	AccountID     int64  `json:"account_id" validate:"required,gt=0"`
	Amount        string `json:"amount" validate:"required"`
	Description   string `json:"description,omitempty" validate:"omitempty,max=255"`
	RequireReview bool   `json:"require_review,omitempty"`
}

type transferRequest struct {
	FromAccountID int64  `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID   int64  `json:"to_account_id" validate:"required,gt=0"`
	Amount        string `json:"amount" validate:"required"`
	Description   string `json:"description,omitempty" validate:"omitempty,max=255"`
	RequireReview bool   `json:"require_review,omitempty"`
}

type reviewRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
	Notes  string `json:"notes,omitempty" validate:"omitempty,max=255"`
}

// Deposit credits an account
// @Summary Deposit
// @Description Credit an account and journal the movement atomically
// @Tags Transactions
// @Accept json
// @Produce json
// @Param request body transactionRequest true "Deposit details"
// @Success 201 {object} object{success=bool,transaction=ledger.Transaction}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /transactions/deposit [post]
func (a *API) Deposit(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := a.decodeTransaction(w, r)
	if !ok {
		return
	}

	entry, err := a.engine.Deposit(r.Context(), ledger.DepositParams{
		AccountID:     req.AccountID,
		Amount:        amount,
		Description:   req.Description,
		RequireReview: req.RequireReview,
	})
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"transaction": entry,
	})
}

// Withdraw debits an account
// @Summary Withdraw
// @Description Debit an account. Fails without side effects if funds are insufficient.
// @Tags Transactions
// @Accept json
// @Produce json
// @Param request body transactionRequest true "Withdrawal details"
// @Success 201 {object} object{success=bool,transaction=ledger.Transaction}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /transactions/withdraw [post]
func (a *API) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := a.decodeTransaction(w, r)
	if !ok {
		return
	}

	entry, err := a.engine.Withdraw(r.Context(), ledger.WithdrawParams{
		AccountID:     req.AccountID,
		Amount:        amount,
		Description:   req.Description,
		RequireReview: req.RequireReview,
	})
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"transaction": entry,
	})
}

// Transfer moves money between two accounts
// @Summary Transfer
// @Description Move money between two accounts in one atomic unit, journaling an entry on each side
// @Tags Transactions
// @Accept json
// @Produce json
// @Param request body transferRequest true "Transfer details"
// @Success 201 {object} object{success=bool,transaction=ledger.Transaction}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /transactions/transfer [post]
func (a *API) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		sendError(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	entry, err := a.engine.Transfer(r.Context(), ledger.TransferParams{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Description:   req.Description,
		RequireReview: req.RequireReview,
	})
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"transaction": entry,
	})
}

// GetTransaction fetches one journal entry
// @Summary Get Transaction
// @Tags Transactions
// @Produce json
// @Param transactionID path int true "Transaction ID"
// @Success 200 {object} object{success=bool,transaction=ledger.Transaction}
// @Failure 404 {object} ErrorResponse
// @Router /transactions/{transactionID} [get]
func (a *API) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "transactionID")
	if err != nil {
		sendError(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	entry, err := a.engine.GetTransaction(r.Context(), id)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"transaction": entry,
	})
}

// ProcessReview finalizes a pending transaction
// @Summary Process Review
// @Description Approve or reject a pending transaction. The balance was applied at journaling time; only the status changes.
// @Tags Transactions
// @Accept json
// @Produce json
// @Param transactionID path int true "Transaction ID"
// @Param request body reviewRequest true "Review decision"
// @Success 200 {object} object{success=bool,transaction=ledger.Transaction}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /transactions/{transactionID}/process [post]
func (a *API) ProcessReview(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "transactionID")
	if err != nil {
		sendError(w, "Invalid transaction id", http.StatusBadRequest, nil)
		return
	}

	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		sendError(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := a.engine.ProcessReview(r.Context(), id, ledger.ReviewDecision(req.Action), req.Notes)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"transaction": entry,
	})
}

// decodeTransaction handles the shared decode/validate/parse steps of the
// deposit and withdraw endpoints.
func (a *API) decodeTransaction(w http.ResponseWriter, r *http.Request) (transactionRequest, ledger.Money, bool) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest, nil)
		return req, ledger.Money{}, false
	}
	if err := a.validate.Struct(&req); err != nil {
		sendError(w, "Validation failed", http.StatusBadRequest, err)
		return req, ledger.Money{}, false
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		a.sendEngineError(w, r, err)
		return req, ledger.Money{}, false
	}
	return req, amount, true
}
