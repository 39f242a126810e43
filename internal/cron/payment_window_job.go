package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
)

const (
	defaultPaymentWindow = 48 * time.Hour
	paymentWindowBatch   = 200
)

type stalePendingReader interface {
	FindUnpaidPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderCanceller interface {
	Transition(ctx context.Context, input orders.TransitionInput) error
}

// PaymentWindowJobParams configure the unpaid-order expiry job.
type PaymentWindowJobParams struct {
	Logger *logger.Logger
	Reader stalePendingReader
	Orders orderCanceller
	Window time.Duration
}

// NewPaymentWindowJob builds the job that cancels pending orders whose
// payment never arrived inside the window. Each order goes through the
// regular cancel transition, so reserved stock is released and the usual
// events fire.
func NewPaymentWindowJob(params PaymentWindowJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("pending order reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	window := params.Window
	if window <= 0 {
		window = defaultPaymentWindow
	}
	return &paymentWindowJob{
		logg:   params.Logger,
		reader: params.Reader,
		orders: params.Orders,
		window: window,
		now:    time.Now,
	}, nil
}

type paymentWindowJob struct {
	logg   *logger.Logger
	reader stalePendingReader
	orders orderCanceller
	window time.Duration
	now    func() time.Time
}

func (j *paymentWindowJob) Name() string { return "payment-window" }

func (j *paymentWindowJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	stale, err := j.reader.FindUnpaidPendingBefore(ctx, cutoff, paymentWindowBatch)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	cancelled := 0
	for _, order := range stale {
		err := j.orders.Transition(ctx, orders.TransitionInput{
			OrderID: order.ID,
			Target:  enums.OrderStatusCancelled,
			Reason:  "payment window expired",
		})
		if err != nil {
			// Another actor may have moved the order since the read.
			errs = append(errs, fmt.Errorf("cancel order %s: %w", order.OrderNumber, err))
			continue
		}
		cancelled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"candidates": len(stale),
		"cancelled": cancelled,
	})
	j.logg.Info(logCtx, "payment window sweep complete")
	return multierr.Combine(errs...)
}
