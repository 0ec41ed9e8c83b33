// Package handlers exposes the ledger engine over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/corebank/ledger/internal/ledger"
)

// API holds the handler dependencies.
type API struct {
	engine   *ledger.Engine
	validate *validator.Validate
	log      zerolog.Logger
}

// NewAPI builds the HTTP layer on top of engine.
func NewAPI(engine *ledger.Engine, log zerolog.Logger) *API {
	return &API{
		engine:   engine,
		validate: validator.New(),
		log:      log,
	}
}

// Routes returns the versioned API router.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", a.CreateAccount)
		r.Get("/", a.ListAccounts)
		r.Route("/{accountID}", func(r chi.Router) {
			r.Get("/", a.GetAccount)
			r.Put("/", a.UpdateAccount)
			r.Delete("/", a.CloseAccount)
			r.Get("/balance", a.GetBalance)
			r.Get("/transactions", a.ListAccountTransactions)
		})
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Post("/deposit", a.Deposit)
		r.Post("/withdraw", a.Withdraw)
		r.Post("/transfer", a.Transfer)
		r.Get("/{transactionID}", a.GetTransaction)
		r.Post("/{transactionID}/process", a.ProcessReview)
	})

	return r
}

// decodeJSON reads a single JSON object into dst, rejecting oversized
// bodies, unknown fields and trailing content.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must only contain a single JSON object")
	}
	return nil
}
