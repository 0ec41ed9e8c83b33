package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/corebank/ledger/internal/ledger"
)

type createAccountRequest struct {
	OwnerID        int64  `json:"owner_id" validate:"required,gt=0"`
	AccountType    string `json:"account_type" validate:"required,oneof=savings checking business"`
	Currency       string `json:"currency,omitempty" validate:"omitempty,len=3"`
	BranchCode     string `json:"branch_code,omitempty"`
	InitialDeposit string `json:"initial_deposit,omitempty"`
}

type updateAccountRequest struct {
	Status     string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive suspended closed"`
	BranchCode *string `json:"branch_code,omitempty"`
}

func parseID(r *http.Request, param string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, param), 10, 64)
}

// CreateAccount opens a new account
// @Summary Open Account
// @Description Open an active account, optionally seeded with an initial deposit
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body createAccountRequest true "Account details"
// @Success 201 {object} object{success=bool,account=ledger.Account}
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /accounts [post]
func (a *API) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		sendError(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	deposit := ledger.Money{}
	if req.InitialDeposit != "" {
		var err error
		deposit, err = ledger.ParseMoney(req.InitialDeposit)
		if err != nil {
			a.sendEngineError(w, r, err)
			return
		}
	}

	account, err := a.engine.OpenAccount(r.Context(), ledger.OpenAccountParams{
		OwnerID:        req.OwnerID,
		Type:           ledger.AccountType(req.AccountType),
		Currency:       req.Currency,
		BranchCode:     req.BranchCode,
		InitialDeposit: deposit,
	})
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"account": account,
	})
}

// ListAccounts lists accounts for an owner
// @Summary List Accounts
// @Description List all accounts belonging to an owner
// @Tags Accounts
// @Produce json
// @Param owner_id query int true "Owner ID"
// @Success 200 {object} object{success=bool,accounts=[]ledger.Account}
// @Failure 400 {object} ErrorResponse
// @Router /accounts [get]
func (a *API) ListAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, err := strconv.ParseInt(r.URL.Query().Get("owner_id"), 10, 64)
	if err != nil || ownerID <= 0 {
		sendError(w, "owner_id query parameter is required", http.StatusBadRequest, nil)
		return
	}

	accounts, err := a.engine.ListAccountsForOwner(r.Context(), ownerID)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []ledger.Account{}
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"accounts": accounts,
	})
}

// GetAccount fetches one account
// @Summary Get Account
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Success 200 {object} object{success=bool,account=ledger.Account}
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountID} [get]
func (a *API) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "accountID")
	if err != nil {
		sendError(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	account, err := a.engine.GetAccount(r.Context(), id)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"account": account,
	})
}

// UpdateAccount updates account status or branch code
// @Summary Update Account
// @Description Change account status or branch code. Setting status to closed enforces the zero-balance rule.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param accountID path int true "Account ID"
// @Param request body updateAccountRequest true "Fields to update"
// @Success 200 {object} object{success=bool,account=ledger.Account}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /accounts/{accountID} [put]
func (a *API) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "accountID")
	if err != nil {
		sendError(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendError(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		sendError(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Status == "" && req.BranchCode == nil {
		sendError(w, "Nothing to update", http.StatusBadRequest, nil)
		return
	}

	if req.Status != "" {
		if err := a.engine.UpdateAccountStatus(r.Context(), id, ledger.AccountStatus(req.Status)); err != nil {
			a.sendEngineError(w, r, err)
			return
		}
	}
	if req.BranchCode != nil {
		if err := a.engine.UpdateBranchCode(r.Context(), id, *req.BranchCode); err != nil {
			a.sendEngineError(w, r, err)
			return
		}
	}

	account, err := a.engine.GetAccount(r.Context(), id)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"account": account,
	})
}

// CloseAccount closes an account
// @Summary Close Account
// @Description Close an account. Only accounts with a zero balance can be closed.
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /accounts/{accountID} [delete]
func (a *API) CloseAccount(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "accountID")
	if err != nil {
		sendError(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	if err := a.engine.CloseAccount(r.Context(), id); err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Account closed",
	})
}

// GetBalance returns the current balance
// @Summary Get Balance
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Success 200 {object} object{success=bool,balance=string,currency=string}
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountID}/balance [get]
func (a *API) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "accountID")
	if err != nil {
		sendError(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	account, err := a.engine.GetAccount(r.Context(), id)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"account_number": account.Number,
		"balance":        account.Balance,
		"currency":       account.Currency,
	})
}

// ListAccountTransactions returns the account's journal entries, newest first
// @Summary List Transactions
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Param limit query int false "Page size (default 20)"
// @Param offset query int false "Offset"
// @Success 200 {object} object{success=bool,transactions=[]ledger.Transaction}
// @Failure 404 {object} ErrorResponse
// @Router /accounts/{accountID}/transactions [get]
func (a *API) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "accountID")
	if err != nil {
		sendError(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	transactions, err := a.engine.ListTransactions(r.Context(), id, limit, offset)
	if err != nil {
		a.sendEngineError(w, r, err)
		return
	}
	if transactions == nil {
		transactions = []ledger.Transaction{}
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": transactions,
	})
}
