// Package api exposes the HTTP surface: one webhook endpoint per payment
// processor and the public funding report.
package api

import (
	"net/http"
	"time"

	"github.com/MAGICGrants/campaign-site/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type API struct {
	base *service.Service
}

func New(base *service.Service) *API {
	return &API{base: base}
}

func (s *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/btcpay/webhook", s.btcpayWebhook)
		r.Post("/stripe/{fund}-webhook", s.stripeWebhook)
		r.Post("/coinbasecommerce/webhook", s.coinbaseWebhook)

		r.Get("/funding-required", s.fundingRequired)

		r.Get("/admin/flags", s.listFlags)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowedMethods(r))
		http.Error(w, "Method "+r.Method+" Not Allowed", http.StatusMethodNotAllowed)
	})

	return r
}

func allowedMethods(r *http.Request) string {
	switch r.URL.Path {
	case "/api/funding-required", "/api/admin/flags":
		return http.MethodGet
	}
	return http.MethodPost
}
