package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medlinkhq/medsupply-backend/api/responses"
	"github.com/medlinkhq/medsupply-backend/api/validators"
	internalorders "github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/internal/payments"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
)

type addPaymentRequest struct {
	Amount        string  `json:"amount" validate:"required"`
	Method        string  `json:"method" validate:"required"`
	TransactionID *string `json:"transaction_id,omitempty" validate:"omitempty,max=128"`
	Notes         string  `json:"notes" validate:"max=1000"`
}

// AddOrderPayment records an operator-entered payment against an order.
func AddOrderPayment(ordersSvc internalorders.Service, svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		order, err := loadOwnedOrder(r, ordersSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := parseActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(payload.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(payload.Method))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		payment, err := svc.AddPayment(r.Context(), payments.AddPaymentInput{
			OrderID:       order.ID,
			Amount:        amount,
			Method:        method,
			TransactionID: payload.TransactionID,
			Notes:         payload.Notes,
			ActorID:       actorID,
			ActorIP:       clientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

func ListOrderPayments(ordersSvc internalorders.Service, svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		order, err := loadOwnedOrder(r, ordersSvc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListByOrder(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type refundRequest struct {
	Amount *string `json:"amount,omitempty"`
	Reason string  `json:"reason" validate:"required,max=500"`
}

// RefundPayment reverses a recorded payment, fully when no amount is given.
func RefundPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		if _, err := parsePharmacyID(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := parseActorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawPaymentID := strings.TrimSpace(chi.URLParam(r, "paymentId"))
		paymentID, err := uuid.Parse(rawPaymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id"))
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var amount *decimal.Decimal
		if payload.Amount != nil && strings.TrimSpace(*payload.Amount) != "" {
			parsed, err := decimal.NewFromString(strings.TrimSpace(*payload.Amount))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
				return
			}
			amount = &parsed
		}

		refund, err := svc.ProcessRefund(r.Context(), payments.RefundInput{
			PaymentID: paymentID,
			Amount:    amount,
			Reason:    payload.Reason,
			ActorID:   actorID,
			ActorIP:   clientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, refund)
	}
}
