// Package httpapi is the HTTP boundary: routing, middleware chain, JSON
// encoding and the mapping from domain errors to status codes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"polisure.org/internal/account"
	"polisure.org/internal/claims"
	"polisure.org/internal/docs"
	"polisure.org/internal/ledger"
	"polisure.org/internal/obs"
	"polisure.org/internal/policy"
	"polisure.org/internal/report"
	"polisure.org/internal/stream"
)

// ReadyProbe checks the backing store before /readyz reports ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the service wiring for New.
type Options struct {
	Claims     *claims.Service
	Accounts   *account.Service
	Ledger     ledger.Service
	Policies   policy.Catalog
	Reports    *report.Service
	Docs       *docs.Service
	Stream     *stream.Stream
	ReadyProbe ReadyProbe
	Version    string

	// Rate limiting; zero values disable the limiter.
	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	claims     *claims.Service
	accounts   *account.Service
	ledger     ledger.Service
	policies   policy.Catalog
	reports    *report.Service
	docs       *docs.Service
	stream     *stream.Stream
	readyProbe ReadyProbe
	version    string

	rateBurst     int
	ratePerSecond int
}

func New(opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		claims:        opts.Claims,
		accounts:      opts.Accounts,
		ledger:        opts.Ledger,
		policies:      opts.Policies,
		reports:       opts.Reports,
		docs:          opts.Docs,
		stream:        opts.Stream,
		readyProbe:    opts.ReadyProbe,
		version:       opts.Version,
		rateBurst:     opts.RateBurst,
		ratePerSecond: opts.RatePerSecond,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/claims", a.handleClaimsCollection)
	a.mux.HandleFunc("/v1/claims/stream", a.Stream)
	a.mux.HandleFunc("/v1/claims/", a.handleClaimResource)

	a.mux.HandleFunc("/v1/transactions", a.handleTransactions)
	a.mux.HandleFunc("/v1/transactions/", a.handleTransactionResource)

	a.mux.HandleFunc("/v1/accounts", a.handleAccountsCollection)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	a.mux.HandleFunc("/v1/policies", a.handlePolicies)
	a.mux.HandleFunc("/v1/documents", a.handleDocuments)

	a.mux.HandleFunc("/v1/reports", a.handleReportsCollection)
	a.mux.HandleFunc("/v1/reports/", a.handleReportResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	if a.rateBurst > 0 && a.ratePerSecond > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	}
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
