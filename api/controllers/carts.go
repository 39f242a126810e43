package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlinkhq/medsupply-backend/api/middleware"
	"github.com/medlinkhq/medsupply-backend/api/responses"
	"github.com/medlinkhq/medsupply-backend/api/validators"
	"github.com/medlinkhq/medsupply-backend/internal/carts"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
)

func GetCart(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "carts service unavailable"))
			return
		}

		pharmacyID, err := parsePharmacyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cart, err := svc.GetOrCreateActive(r.Context(), pharmacyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

type cartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// AddCartItem sets the absolute quantity for a product line. Repeating the
// call overwrites the line rather than incrementing it.
func AddCartItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "carts service unavailable"))
			return
		}

		pharmacyID, err := parsePharmacyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		cart, err := svc.AddItem(r.Context(), pharmacyID, productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

func RemoveCartItem(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "carts service unavailable"))
			return
		}

		pharmacyID, err := parsePharmacyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawProductID := strings.TrimSpace(chi.URLParam(r, "productId"))
		productID, err := uuid.Parse(rawProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}

		cart, err := svc.RemoveItem(r.Context(), pharmacyID, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cart)
	}
}

type discountCodeRequest struct {
	Code string `json:"code" validate:"max=64"`
}

// ApplyCartDiscountCode attaches a discount code to the active cart. An empty
// code clears whatever is attached.
func ApplyCartDiscountCode(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "carts service unavailable"))
			return
		}

		pharmacyID, err := parsePharmacyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload discountCodeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ApplyDiscountCode(r.Context(), pharmacyID, strings.TrimSpace(payload.Code)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type cartAddressesRequest struct {
	ShippingAddressID *string `json:"shipping_address_id,omitempty" validate:"omitempty,uuid4"`
	BillingAddressID  *string `json:"billing_address_id,omitempty" validate:"omitempty,uuid4"`
}

func SetCartAddresses(svc carts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "carts service unavailable"))
			return
		}

		pharmacyID, err := parsePharmacyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cartAddressesRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shippingID, err := parseOptionalUUID(payload.ShippingAddressID, "shipping_address_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		billingID, err := parseOptionalUUID(payload.BillingAddressID, "billing_address_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetAddresses(r.Context(), pharmacyID, shippingID, billingID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

func parsePharmacyID(r *http.Request) (uuid.UUID, error) {
	pharmacyID := middleware.PharmacyIDFromContext(r.Context())
	if pharmacyID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "pharmacy context missing")
	}
	parsed, err := uuid.Parse(pharmacyID)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pharmacy id")
	}
	return parsed, nil
}

func parseActorID(r *http.Request) (*uuid.UUID, error) {
	actorID := middleware.ActorIDFromContext(r.Context())
	if actorID == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id")
	}
	return &parsed, nil
}

func parseOptionalUUID(raw *string, field string) (*uuid.UUID, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return &parsed, nil
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return fwd
	}
	return r.RemoteAddr
}
