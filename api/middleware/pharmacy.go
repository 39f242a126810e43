package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medlinkhq/medsupply-backend/api/responses"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
)

const (
	pharmacyIDHeader = "X-Pharmacy-Id"
	actorIDHeader    = "X-Actor-Id"
)

// PharmacyContext resolves the calling pharmacy from trusted gateway headers.
// The edge proxy authenticates the caller and forwards the identifiers; this
// layer only validates shape and makes them available downstream.
func PharmacyContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pharmacyID := strings.TrimSpace(r.Header.Get(pharmacyIDHeader))
			if pharmacyID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "pharmacy identity required"))
				return
			}
			if _, err := uuid.Parse(pharmacyID); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid pharmacy identity"))
				return
			}

			ctx := WithPharmacyID(r.Context(), pharmacyID)

			if actorID := strings.TrimSpace(r.Header.Get(actorIDHeader)); actorID != "" {
				if _, err := uuid.Parse(actorID); err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor identity"))
					return
				}
				ctx = WithActorID(ctx, actorID)
				if logg != nil {
					ctx = logg.WithActorID(ctx, actorID)
				}
			}

			if logg != nil {
				ctx = logg.WithField(ctx, "pharmacy_id", pharmacyID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
