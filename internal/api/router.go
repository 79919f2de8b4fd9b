package api

import (
	"context"
	"net/http"

	"github.com/fastprodman/flipledger/internal/identity"
	"github.com/fastprodman/flipledger/internal/infra/ratelimit"
	"github.com/fastprodman/flipledger/internal/ledger"
	"github.com/fastprodman/flipledger/internal/services/wallet"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Wallet is the part of the wallet engine the API serves.
type Wallet interface {
	EnsureAccount(ctx context.Context, identity ledger.Identity) (ledger.Account, bool, error)
	GetAccount(ctx context.Context, accountID string) (wallet.Summary, error)
	History(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error)
	Reconcile(ctx context.Context, accountID string) (wallet.ReconcileResult, error)
	SetPayoutAddress(ctx context.Context, accountID, address string) error
	ClearPayoutAddress(ctx context.Context, accountID string) error
	Deposit(ctx context.Context, accountID string, req wallet.DepositRequest) (wallet.DepositResult, error)
	Withdraw(ctx context.Context, accountID, amount string) (wallet.WithdrawResult, error)
	PlaceBet(ctx context.Context, accountID, stake string) (wallet.BetResult, error)
}

// Limiter throttles requests per account and scope.
type Limiter interface {
	Consume(ctx context.Context, scope, subject string) (ratelimit.Decision, error)
}

// Deps wires the router. Limiter may be nil. CORS is off when
// AllowedOrigins is empty.
type Deps struct {
	Wallet         Wallet
	Verifier       identity.Verifier
	Limiter        Limiter
	AllowedOrigins []string
}

func NewRouter(deps Deps) http.Handler {
	h := NewHandler(deps.Wallet)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authenticate(deps.Verifier, deps.Wallet))

		r.Get("/me", h.GetAccountHandler)
		r.Get("/me/history", h.HistoryHandler)

		r.Group(func(r chi.Router) {
			r.Use(throttle(deps.Limiter, "mutations"))

			r.Post("/me/reconcile", h.ReconcileHandler)
			r.Put("/me/payout-address", h.SetPayoutAddressHandler)
			r.Delete("/me/payout-address", h.ClearPayoutAddressHandler)
			r.Post("/deposits", h.DepositHandler)
			r.Post("/withdrawals", h.WithdrawHandler)
			r.Post("/bets", h.BetHandler)
		})
	})

	return r
}
