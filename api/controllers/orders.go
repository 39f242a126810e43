package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medlinkhq/medsupply-backend/api/responses"
	"github.com/medlinkhq/medsupply-backend/api/validators"
	internalorders "github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/pagination"
)

type createOrderRequest struct {
	PaymentMethod     string  `json:"payment_method" validate:"required"`
	ShippingAddressID *string `json:"shipping_address_id,omitempty" validate:"omitempty,uuid4"`
	BillingAddressID  *string `json:"billing_address_id,omitempty" validate:"omitempty,uuid4"`
	UseCredit         bool    `json:"use_credit"`
	Notes             string  `json:"notes" validate:"max=1000"`
}

// CreateOrder converts the pharmacy's active cart into an order.
func CreateOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		pharmacyID, err := parsePharmacyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := parseActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.PaymentMethod))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
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

		result, err := svc.Create(r.Context(), internalorders.CreateOrderInput{
			PharmacyID:        pharmacyID,
			PaymentMethod:     method,
			ShippingAddressID: shippingID,
			BillingAddressID:  billingID,
			UseCredit:         payload.UseCredit,
			Notes:             payload.Notes,
			ActorID:           actorID,
			ActorIP:           clientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func ListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		pharmacyID, err := parsePharmacyID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		list, err := svc.List(r.Context(), pharmacyID, pagination.Params{Limit: limit, Cursor: cursor})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func OrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		order, err := loadOwnedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderHistory(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		order, err := loadOwnedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		order, err := loadOwnedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := parseActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID: order.ID,
			Target:  enums.OrderStatusCancelled,
			ActorID: actorID,
			Reason:  payload.Reason,
			ActorIP: clientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

type transitionOrderRequest struct {
	Target               string `json:"target" validate:"required"`
	Reason               string `json:"reason" validate:"max=500"`
	TrackingNumber       string `json:"tracking_number" validate:"max=100"`
	TrackingURL          string `json:"tracking_url" validate:"omitempty,url"`
	ExpectedDeliveryDate string `json:"expected_delivery_date" validate:"omitempty,datetime=2006-01-02"`
}

func TransitionOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		order, err := loadOwnedOrder(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := parseActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Target))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		var expectedDelivery *time.Time
		if payload.ExpectedDeliveryDate != "" {
			parsed, err := time.Parse("2006-01-02", payload.ExpectedDeliveryDate)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid expected delivery date"))
				return
			}
			expectedDelivery = &parsed
		}

		err = svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID:              order.ID,
			Target:               target,
			ActorID:              actorID,
			Reason:               payload.Reason,
			ActorIP:              clientIP(r),
			TrackingNumber:       strings.TrimSpace(payload.TrackingNumber),
			TrackingURL:          strings.TrimSpace(payload.TrackingURL),
			ExpectedDeliveryDate: expectedDelivery,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, nil)
	}
}

// loadOwnedOrder resolves the {orderId} path param and enforces that the
// order belongs to the calling pharmacy.
func loadOwnedOrder(r *http.Request, svc internalorders.Service) (*models.Order, error) {
	pharmacyID, err := parsePharmacyID(r)
	if err != nil {
		return nil, err
	}

	rawOrderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if rawOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}

	order, err := svc.Get(r.Context(), orderID)
	if err != nil {
		return nil, err
	}
	if order.PharmacyID != pharmacyID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to pharmacy")
	}
	return order, nil
}
