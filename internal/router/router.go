package router

import (
	"net/http"

	"github.com/leadflow/backend/internal/auth"
	"github.com/leadflow/backend/internal/handlers"
	"github.com/leadflow/backend/internal/middleware"
)

// Handlers groups everything the API routes to.
type Handlers struct {
	Leads   *handlers.LeadHandler
	Offers  *handlers.OfferHandler
	Jobs    *handlers.JobHandler
	Pros    *handlers.ProHandler
	Wallets *handlers.WalletHandler
	Admin   *handlers.AdminHandler
	Metrics http.Handler
}

// New returns an http.Handler that serves the API under /api/v1 and metrics
// at /metrics. Every API route requires a bearer token; roles are checked per
// route.
func New(h Handlers, tokens middleware.TokenValidator, limiter *middleware.AcceptLimiter) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	authn := middleware.Authenticate(tokens)

	route := func(pattern string, fn http.HandlerFunc, roles ...string) {
		mux.Handle(pattern, authn(middleware.RequireRole(roles...)(fn)))
	}
	throttled := func(fn http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return fn
		}
		return limiter.Middleware(fn).ServeHTTP
	}

	// Requests (client side)
	route("POST "+base+"/requests", h.Leads.CreateRequest, auth.RoleClient)
	route("GET "+base+"/requests", h.Leads.ListRequests, auth.RoleClient)
	route("GET "+base+"/requests/{id}", h.Leads.GetRequest, auth.RoleClient, auth.RoleOps)
	route("POST "+base+"/requests/{id}/cancel", h.Leads.CancelRequest, auth.RoleClient)
	route("POST "+base+"/requests/{id}/broadcast", h.Leads.Broadcast, auth.RoleClient, auth.RoleOps)
	route("GET "+base+"/requests/{id}/offers", h.Leads.ListRequestOffers, auth.RoleClient, auth.RoleOps)

	// Offers
	route("GET "+base+"/offers", h.Leads.ListMyOffers, auth.RolePro)
	route("POST "+base+"/offers/{id}/accept", throttled(h.Offers.Accept), auth.RolePro)
	route("POST "+base+"/offers/{id}/propose", throttled(h.Offers.Propose), auth.RolePro)
	route("POST "+base+"/offers/{id}/decision", h.Offers.Decision, auth.RoleClient)

	// Jobs
	route("GET "+base+"/jobs", h.Jobs.ListJobs, auth.RolePro)
	route("GET "+base+"/jobs/{id}", h.Jobs.GetJob, auth.RolePro, auth.RoleClient, auth.RoleOps)
	route("POST "+base+"/jobs/{id}/complete", h.Jobs.Complete, auth.RolePro)
	route("POST "+base+"/jobs/{id}/cancel", h.Jobs.Cancel, auth.RolePro, auth.RoleClient)
	route("POST "+base+"/jobs/{id}/no-show", h.Jobs.NoShow, auth.RoleClient)
	route("POST "+base+"/jobs/{id}/rating", h.Jobs.Rate, auth.RoleClient)

	// Pros
	route("GET "+base+"/pros/me", h.Pros.Me, auth.RolePro)

	// Wallet
	route("GET "+base+"/wallet", h.Wallets.GetWallet, auth.RolePro)
	route("POST "+base+"/wallet/{proId}/credits", h.Wallets.Credit, auth.RoleService)
	route("POST "+base+"/wallet/{proId}/refunds", h.Wallets.Refund, auth.RoleOps)
	route("POST "+base+"/wallet/{proId}/adjustments", h.Wallets.Adjust, auth.RoleOps)
	route("GET "+base+"/wallet/{proId}/reconcile", h.Wallets.Reconcile, auth.RoleOps)

	// Ops
	route("POST "+base+"/admin/sweep", h.Admin.Sweep, auth.RoleOps)

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
