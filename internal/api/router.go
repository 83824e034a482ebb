package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"exchange/internal/metrics"
	"exchange/internal/middleware"
)

func (s *Server) RegisterRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(s.tokens.Authenticate)
	r.Use(s.limiter.Handler)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.createUser)
		r.Post("/auth/login", s.login)

		r.Get("/payment-methods", s.listPaymentMethods)
		r.With(middleware.AdminOnly).Post("/payment-methods", s.createPaymentMethod)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/dashboard", s.getDashboard)
			r.Post("/transactions", s.createTransaction)

			r.Get("/referral/code", s.getReferralCode)
			r.Post("/referral/apply", s.applyReferralCode)
			r.Get("/referral/stats", s.getReferralStats)

			r.Get("/bank-accounts", s.listBankAccounts)
			r.Post("/bank-accounts", s.createBankAccount)
		})

		r.Route("/users/{id}", func(r chi.Router) {
			r.Use(middleware.OwnerOrAdmin)

			r.Get("/balance", s.getUserBalance)
			r.Get("/transactions", s.listTransactions)
			r.Get("/valuation", s.getValuation)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminOnly)

			r.Get("/users", s.listUsers)
			r.Post("/users/{id}/credit", s.addCredit)
			r.Put("/users/{id}/dashboard", s.updateDashboard)
			r.Patch("/transactions/{id}/status", s.updateTransactionStatus)
		})
	})

	return r
}
