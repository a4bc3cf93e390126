package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/storehub/server/internal/auth"
	"github.com/storehub/server/internal/http/handlers"
	"github.com/storehub/server/internal/middleware"
	"github.com/storehub/server/internal/model"
	"github.com/storehub/server/internal/store"
)

// Handlers bundles the handler set the router mounts.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Users     *handlers.UserHandler
	Branches  *handlers.BranchHandler
	Products  *handlers.ProductHandler
	Dashboard *handlers.DashboardHandler
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(h Handlers, tokens *auth.TokenService, st store.RecordStore) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/first-signup", h.Auth.HandleFirstSignup)
		r.Post("/invite-signup", h.Auth.HandleInviteSignup)
		r.Post("/login", h.Auth.HandleLogin)
		r.Post("/refresh", h.Auth.HandleRefresh)
		r.Post("/send-otp", h.Auth.HandleSendOTP)
		r.Post("/verify-otp", h.Auth.HandleVerifyOTP)
		r.Post("/forgot-password", h.Auth.HandleForgotPassword)
		r.Post("/reset-password", h.Auth.HandleResetPassword)
		r.Get("/validate-invite", h.Auth.HandleValidateInvite)

		// Inviting staff requires an authenticated admin.
		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionResolver(tokens, st))
			r.Use(middleware.RequireAdmin)
			r.Post("/send-invite", h.Auth.HandleSendInvite)
		})
	})

	// Protected routes (require valid access token and an active account)
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionResolver(tokens, st))

		r.Get("/users/me", h.Users.HandleMe)
		r.Put("/users/profile", h.Users.HandleUpdateProfile)
		r.Get("/dashboard/summary", h.Dashboard.HandleSummary)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products.HandleList)
			r.Get("/{productID}", h.Products.HandleGet)
			r.Get("/{productID}/all-offers", h.Products.HandleAllOffers)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Post("/", h.Products.HandleCreate)
				r.Put("/{productID}", h.Products.HandleUpdate)
				r.Delete("/{productID}", h.Products.HandleDelete)

				r.Post("/{productID}/credit-card-offers", h.Products.HandleAddCardOffer(model.OfferTypeCreditCard))
				r.Put("/{productID}/credit-card-offers/{offerID}", h.Products.HandleUpdateCardOffer(model.OfferTypeCreditCard))
				r.Post("/{productID}/debit-card-offers", h.Products.HandleAddCardOffer(model.OfferTypeDebitCard))
				r.Put("/{productID}/debit-card-offers/{offerID}", h.Products.HandleUpdateCardOffer(model.OfferTypeDebitCard))
				r.Post("/{productID}/upi-offers", h.Products.HandleAddUPIOffer)
				r.Put("/{productID}/upi-offers/{offerID}", h.Products.HandleUpdateUPIOffer)
				r.Post("/{productID}/emi-plans", h.Products.HandleAddEMIPlan)
				r.Put("/{productID}/emi-plans/{offerID}", h.Products.HandleUpdateEMIPlan)
				r.Delete("/{productID}/{offerRoute}/{offerID}", h.Products.HandleDeleteOffer)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/branches/settings", h.Branches.HandleGetSettings)
			r.Put("/branches/settings", h.Branches.HandleUpdateSettings)
			r.Get("/branches/users", h.Branches.HandleListStaff)
			r.Put("/users/{userID}/toggle-active", h.Users.HandleToggleActive)
			r.Put("/users/{userID}/make-admin", h.Users.HandleMakeAdmin)
		})
	})

	return r
}
