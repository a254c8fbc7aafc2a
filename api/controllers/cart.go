package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type addToCartRequest struct {
	Model string `json:"model" validate:"required,max=128"`
}

// CartCurrent returns the caller's unpaid cart, or an empty one.
func CartCurrent(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		snap, err := svc.GetCurrentCart(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartsvc.NewCartDTO(*snap))
	}
}

// CartAddProduct adds one unit of a product to the caller's cart.
func CartAddProduct(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		var payload addToCartRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.AddProduct(r.Context(), owner, payload.Model); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCurrentCart(w, r, svc, owner, http.StatusCreated, logg)
	}
}

// CartRemoveProduct removes one unit of the product named in the path.
func CartRemoveProduct(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		model := validators.SanitizeString(chi.URLParam(r, "model"), 128)
		if err := svc.RemoveProduct(r.Context(), owner, model); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeCurrentCart(w, r, svc, owner, http.StatusOK, logg)
	}
}

func CartCheckout(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		snap, err := svc.Checkout(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartsvc.NewCartDTO(*snap))
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		if err := svc.ClearCart(r.Context(), owner); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func CartHistory(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r, logg)
		if !ok {
			return
		}
		carts, err := svc.GetPurchaseHistory(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartsvc.NewCartDTOs(carts))
	}
}

// CartListAll returns every paid cart across customers.
func CartListAll(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		carts, err := svc.GetAllCarts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cartsvc.NewCartDTOs(carts))
	}
}

func CartDeleteAll(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteAllCarts(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func writeCurrentCart(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, owner string, status int, logg *logger.Logger) {
	snap, err := svc.GetCurrentCart(r.Context(), owner)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, status, cartsvc.NewCartDTO(*snap))
}

func requireOwner(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	owner := middleware.UsernameFromContext(r.Context())
	if owner == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return "", false
	}
	return owner, true
}
