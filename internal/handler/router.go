package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/vndr/vndr-music/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса VNDR Music.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		// Анонимный доступ разрешён: guard сам решает, что публично.
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.OptionalAuth)
			r.Post("/collections/fetch", h.FetchCollection)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.RequireAuth)

			r.Get("/user/balance", h.GetBalance)
			r.Post("/user/balance/claim", h.ClaimDaily)
			r.Post("/user/balance/withdraw", h.Withdraw)
			r.Get("/user/transactions", h.GetTransactions)

			r.Post("/works", h.CreateTrack)
			r.Post("/license-requests", h.CreateLicenseRequest)

			r.Post("/ai/cover-art", h.GenerateCoverArt)
			r.Post("/ai/price", h.RecommendPrice)
			r.Post("/ai/legal", h.LegalAnswer)
			r.Post("/ai/partner", h.PartnerReply)
		})

		// Аутентификация моста — внутренним ключом, не пользовательским токеном.
		r.Post("/bridge/settle", h.BridgeSettle)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
