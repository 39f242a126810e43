package payhere

import (
	"fmt"
	"net/http"

	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

// CheckoutBuilder prepares the hosted-checkout redirect for orders paid
// through the gateway. It satisfies the order orchestrator's checkout hook.
type CheckoutBuilder struct {
	cfg config.PayHereConfig
}

// NewCheckoutBuilder builds a checkout builder from gateway config.
func NewCheckoutBuilder(cfg config.PayHereConfig) (*CheckoutBuilder, error) {
	if cfg.MerchantID == "" || cfg.MerchantSecret == "" {
		return nil, fmt.Errorf("payhere merchant credentials required")
	}
	return &CheckoutBuilder{cfg: cfg}, nil
}

// PrepareCheckout returns the form-post redirect for the gateway's hosted
// page. The hash binds merchant, order number, amount, and currency so the
// gateway rejects tampered submissions.
func (b *CheckoutBuilder) PrepareCheckout(order *models.Order) (*orders.CheckoutRedirect, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order required for checkout")
	}

	amount := order.Total.StringFixed(2)
	hash := md5Upper(b.cfg.MerchantID + order.OrderNumber + amount + b.cfg.Currency + md5Upper(b.cfg.MerchantSecret))

	fields := map[string]string{
		"merchant_id": b.cfg.MerchantID,
		"return_url":  b.cfg.ReturnURL,
		"cancel_url":  b.cfg.CancelURL,
		"notify_url":  b.cfg.NotifyURL,
		"order_id":    order.OrderNumber,
		"items":       fmt.Sprintf("Order %s", order.OrderNumber),
		"currency":    b.cfg.Currency,
		"amount":      amount,
		"first_name":  order.ShippingAddress.Name,
		"phone":       order.ShippingAddress.Phone,
		"address":     order.ShippingAddress.Line1,
		"city":        order.ShippingAddress.City,
		"country":     order.ShippingAddress.Country,
		"hash":        hash,
	}

	return &orders.CheckoutRedirect{
		URL:    b.cfg.CheckoutURL,
		Method: http.MethodPost,
		Fields: fields,
	}, nil
}
