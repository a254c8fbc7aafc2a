package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	productsvc "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type registerProductRequest struct {
	Model        string          `json:"model" validate:"required,max=128"`
	Category     string          `json:"category" validate:"required,oneof=Smartphone Laptop Appliance"`
	Quantity     int             `json:"quantity" validate:"required,min=1"`
	Details      *string         `json:"details"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ArrivalDate  string          `json:"arrival_date"`
}

type changeQuantityRequest struct {
	Quantity   int    `json:"quantity" validate:"required"`
	ChangeDate string `json:"change_date"`
}

type sellProductRequest struct {
	Quantity    int    `json:"quantity" validate:"required,min=1"`
	SellingDate string `json:"selling_date"`
}

// ProductRegister adds a new product to the catalog.
func ProductRegister(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload registerProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := enums.ParseProductCategory(payload.Category)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category"))
			return
		}
		arrival, err := validators.ParseOptionalDate("arrival_date", payload.ArrivalDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.RegisterProduct(r.Context(), productsvc.RegisterProductInput{
			Model:        payload.Model,
			Category:     category,
			Quantity:     payload.Quantity,
			Details:      payload.Details,
			SellingPrice: payload.SellingPrice,
			ArrivalDate:  arrival,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// ProductChangeQuantity adds (or with a negative delta removes) stock.
func ProductChangeQuantity(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload changeQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		changeDate, err := validators.ParseOptionalDate("change_date", payload.ChangeDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := svc.ChangeProductQuantity(r.Context(), chi.URLParam(r, "model"), payload.Quantity, changeDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"quantity": qty})
	}
}

func ProductSell(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload sellProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellingDate, err := validators.ParseOptionalDate("selling_date", payload.SellingDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		qty, err := svc.SellProduct(r.Context(), chi.URLParam(r, "model"), payload.Quantity, sellingDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"quantity": qty})
	}
}

// ProductList lists the catalog; availableOnly hides products without stock.
func ProductList(svc productsvc.Service, availableOnly bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input := productsvc.ListProductsInput{
			Grouping: validators.QueryString(r, "grouping"),
			Category: validators.QueryString(r, "category"),
			Model:    validators.QueryString(r, "model"),
		}
		var (
			items []productsvc.ProductDTO
			err   error
		)
		if availableOnly {
			items, err = svc.GetAvailableProducts(r.Context(), input)
		} else {
			items, err = svc.GetProducts(r.Context(), input)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func ProductDelete(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteProduct(r.Context(), chi.URLParam(r, "model")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func ProductDeleteAll(svc productsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteAllProducts(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
