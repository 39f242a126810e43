package webhooks

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/medlinkhq/medsupply-backend/internal/webhooks/payhere"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
)

// PayHereNotify terminates the gateway's server-to-server notification. The
// gateway expects a plain 200 body to stop retrying; anything else is treated
// as a failed delivery on their side.
func PayHereNotify(svc *payhere.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writePlain(w, http.StatusServiceUnavailable, "Error")
			return
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		if err != nil {
			writePlain(w, http.StatusBadRequest, "Error")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))

		if err := r.ParseForm(); err != nil {
			writePlain(w, http.StatusBadRequest, "Error")
			return
		}

		statusCode, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("status_code")))
		if err != nil {
			writePlain(w, http.StatusBadRequest, "Error")
			return
		}

		notification := payhere.Notification{
			MerchantID:    strings.TrimSpace(r.PostFormValue("merchant_id")),
			OrderNumber:   strings.TrimSpace(r.PostFormValue("order_id")),
			PaymentID:     strings.TrimSpace(r.PostFormValue("payment_id")),
			Amount:        strings.TrimSpace(r.PostFormValue("payhere_amount")),
			Currency:      strings.TrimSpace(r.PostFormValue("payhere_currency")),
			StatusCode:    statusCode,
			MD5Sig:        strings.TrimSpace(r.PostFormValue("md5sig")),
			Method:        strings.TrimSpace(r.PostFormValue("method")),
			StatusMessage: strings.TrimSpace(r.PostFormValue("status_message")),
			Raw:           raw,
		}

		if err := svc.HandleNotify(r.Context(), notification); err != nil {
			if logg != nil {
				logg.Error(r.Context(), "payhere.notify.rejected", err)
			}
			if coded := pkgerrors.As(err); coded != nil && coded.Code() == pkgerrors.CodeNotFound {
				writePlain(w, http.StatusNotFound, "Error")
				return
			}
			writePlain(w, http.StatusBadRequest, "Error")
			return
		}

		writePlain(w, http.StatusOK, "OK")
	}
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
