package payhere

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/internal/payments"
	"github.com/medlinkhq/medsupply-backend/pkg/config"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
)

const (
	testMerchantID = "1210001"
	testSecret     = "merchant-secret"
)

func TestVerifyMD5Sig(t *testing.T) {
	t.Parallel()

	sig := ComputeMD5Sig(testMerchantID, "ORD2508150001", "1000.00", "LKR", "2", testSecret)
	if !VerifyMD5Sig(testMerchantID, "ORD2508150001", "1000.00", "LKR", "2", testSecret, sig) {
		t.Fatal("expected signature to verify")
	}
	if VerifyMD5Sig(testMerchantID, "ORD2508150001", "1000.01", "LKR", "2", testSecret, sig) {
		t.Fatal("expected tampered amount to fail verification")
	}
	if VerifyMD5Sig(testMerchantID, "ORD2508150001", "1000.00", "LKR", "2", "wrong-secret", sig) {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestHandleNotifyRejectsBadSignature(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubOrders{}, &stubPayments{}, &stubPaymentsRepo{})
	n := Notification{
		MerchantID:  testMerchantID,
		OrderNumber: "ORD2508150001",
		Amount:      "100.00",
		Currency:    "LKR",
		StatusCode:  StatusSuccess,
		MD5Sig:      "DEADBEEF",
	}
	err := svc.HandleNotify(context.Background(), n)
	if err == nil {
		t.Fatal("expected signature rejection")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestHandleNotifyUnknownOrder(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &stubOrders{}, &stubPayments{}, &stubPaymentsRepo{})
	err := svc.HandleNotify(context.Background(), signedNotification("ORD0000000000", "100.00", StatusSuccess, "pay_1"))
	if err == nil {
		t.Fatal("expected not found error")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestHandleNotifySuccessConfirmsPendingOrder(t *testing.T) {
	t.Parallel()

	order := pendingOrder("ORD2508150001", "1000.00")
	ordersStub := &stubOrders{order: order}
	paymentsStub := &stubPayments{}
	svc := newTestService(t, ordersStub, paymentsStub, &stubPaymentsRepo{})

	err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "1000.00", StatusSuccess, "pay_1"))
	if err != nil {
		t.Fatalf("handle notify: %v", err)
	}

	if len(paymentsStub.added) != 1 {
		t.Fatalf("expected one payment recorded, got %d", len(paymentsStub.added))
	}
	added := paymentsStub.added[0]
	if added.Method != enums.PaymentMethodPayHere {
		t.Fatalf("unexpected method %q", added.Method)
	}
	if added.TransactionID == nil || *added.TransactionID != "pay_1" {
		t.Fatalf("expected transaction id recorded, got %+v", added.TransactionID)
	}
	if len(ordersStub.transitions) != 1 || ordersStub.transitions[0].Target != enums.OrderStatusConfirmed {
		t.Fatalf("expected auto-confirm transition, got %+v", ordersStub.transitions)
	}
}

func TestHandleNotifyPartialAmountDoesNotConfirm(t *testing.T) {
	t.Parallel()

	order := pendingOrder("ORD2508150002", "1000.00")
	ordersStub := &stubOrders{order: order}
	paymentsStub := &stubPayments{}
	svc := newTestService(t, ordersStub, paymentsStub, &stubPaymentsRepo{})

	err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "400.00", StatusSuccess, "pay_2"))
	if err != nil {
		t.Fatalf("handle notify: %v", err)
	}
	if len(paymentsStub.added) != 1 {
		t.Fatal("expected payment recorded")
	}
	if len(ordersStub.transitions) != 0 {
		t.Fatalf("partial payment must not confirm, got %+v", ordersStub.transitions)
	}
}

func TestHandleNotifyReplayIsAcknowledged(t *testing.T) {
	t.Parallel()

	order := pendingOrder("ORD2508150003", "500.00")
	ordersStub := &stubOrders{order: order}
	paymentsStub := &stubPayments{duplicateErr: true}
	svc := newTestService(t, ordersStub, paymentsStub, &stubPaymentsRepo{})

	err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "500.00", StatusSuccess, "pay_3"))
	if err != nil {
		t.Fatalf("replay must be acknowledged, got %v", err)
	}
	if len(ordersStub.transitions) != 0 {
		t.Fatalf("replay must not transition, got %+v", ordersStub.transitions)
	}
}

func TestHandleNotifyFailureCancelsPendingOrder(t *testing.T) {
	t.Parallel()

	order := pendingOrder("ORD2508150004", "750.00")
	ordersStub := &stubOrders{order: order}
	repoStub := &stubPaymentsRepo{}
	svc := newTestService(t, ordersStub, &stubPayments{}, repoStub)

	err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "750.00", StatusFailed, "pay_4"))
	if err != nil {
		t.Fatalf("handle notify: %v", err)
	}

	if repoStub.lastStatus != enums.OrderPaymentStatusFailed {
		t.Fatalf("expected failed payment status, got %q", repoStub.lastStatus)
	}
	if len(ordersStub.transitions) != 1 || ordersStub.transitions[0].Target != enums.OrderStatusCancelled {
		t.Fatalf("expected cancellation, got %+v", ordersStub.transitions)
	}
}

func TestHandleNotifyFailureLeavesConfirmedOrderAlone(t *testing.T) {
	t.Parallel()

	order := pendingOrder("ORD2508150005", "750.00")
	order.Status = enums.OrderStatusConfirmed
	ordersStub := &stubOrders{order: order}
	svc := newTestService(t, ordersStub, &stubPayments{}, &stubPaymentsRepo{})

	err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "750.00", StatusChargeback, "pay_5"))
	if err != nil {
		t.Fatalf("handle notify: %v", err)
	}
	if len(ordersStub.transitions) != 0 {
		t.Fatalf("chargeback on confirmed order must not cancel, got %+v", ordersStub.transitions)
	}
}

func TestHandleNotifyGuardAllowsSuccessAfterPending(t *testing.T) {
	t.Parallel()

	order := pendingOrder("ORD2508150008", "600.00")
	ordersStub := &stubOrders{order: order}
	paymentsStub := &stubPayments{}
	repoStub := &stubPaymentsRepo{}

	guard, err := NewIdempotencyGuard(newFakeIdemStore(), time.Hour, "payhere-notify")
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	svc := newGuardedTestService(t, ordersStub, paymentsStub, repoStub, guard)

	// Lifecycle updates share one payment_id; the pending notify must not
	// mask the success that follows it.
	if err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "600.00", StatusPending, "pay_7")); err != nil {
		t.Fatalf("pending notify: %v", err)
	}
	if repoStub.lastStatus != enums.OrderPaymentStatusPending {
		t.Fatalf("expected pending payment status, got %q", repoStub.lastStatus)
	}

	if err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "600.00", StatusSuccess, "pay_7")); err != nil {
		t.Fatalf("success notify: %v", err)
	}
	if len(paymentsStub.added) != 1 {
		t.Fatalf("expected one payment recorded, got %d", len(paymentsStub.added))
	}
	if len(ordersStub.transitions) != 1 || ordersStub.transitions[0].Target != enums.OrderStatusConfirmed {
		t.Fatalf("expected auto-confirm transition, got %+v", ordersStub.transitions)
	}

	// An actual replay of the success still short-circuits at the guard.
	if err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "600.00", StatusSuccess, "pay_7")); err != nil {
		t.Fatalf("replayed success notify: %v", err)
	}
	if len(paymentsStub.added) != 1 {
		t.Fatalf("replay must not record another payment, got %d", len(paymentsStub.added))
	}
}

func TestHandleNotifyPendingSetsPaymentStatus(t *testing.T) {
	t.Parallel()

	order := pendingOrder("ORD2508150006", "200.00")
	repoStub := &stubPaymentsRepo{}
	svc := newTestService(t, &stubOrders{order: order}, &stubPayments{}, repoStub)

	err := svc.HandleNotify(context.Background(), signedNotification(order.OrderNumber, "200.00", StatusPending, "pay_6"))
	if err != nil {
		t.Fatalf("handle notify: %v", err)
	}
	if repoStub.lastStatus != enums.OrderPaymentStatusPending {
		t.Fatalf("expected pending payment status, got %q", repoStub.lastStatus)
	}
}

func TestPrepareCheckoutBuildsSignedForm(t *testing.T) {
	t.Parallel()

	builder, err := NewCheckoutBuilder(testGatewayConfig())
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	order := pendingOrder("ORD2508150007", "1250.50")
	redirect, err := builder.PrepareCheckout(order)
	if err != nil {
		t.Fatalf("prepare checkout: %v", err)
	}
	if redirect.URL != "https://sandbox.payhere.lk/pay/checkout" {
		t.Fatalf("unexpected checkout url %q", redirect.URL)
	}
	if redirect.Fields["amount"] != "1250.50" {
		t.Fatalf("unexpected amount %q", redirect.Fields["amount"])
	}
	if redirect.Fields["order_id"] != order.OrderNumber {
		t.Fatalf("unexpected order id %q", redirect.Fields["order_id"])
	}

	want := md5Upper(testMerchantID + order.OrderNumber + "1250.50" + "LKR" + md5Upper(testSecret))
	if redirect.Fields["hash"] != want {
		t.Fatalf("checkout hash mismatch")
	}
}

type stubOrders struct {
	order       *models.Order
	transitions []orders.TransitionInput
}

func (s *stubOrders) GetByNumber(_ context.Context, number string) (*models.Order, error) {
	if s.order == nil || s.order.OrderNumber != number {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrders) TransitionTx(_ context.Context, _ *gorm.DB, input orders.TransitionInput) error {
	s.transitions = append(s.transitions, input)
	return nil
}

type stubPayments struct {
	added        []payments.AddPaymentInput
	duplicateErr bool
}

func (s *stubPayments) AddPaymentTx(_ context.Context, _ *gorm.DB, input payments.AddPaymentInput) (*models.Payment, error) {
	if s.duplicateErr {
		return nil, gorm.ErrDuplicatedKey
	}
	s.added = append(s.added, input)
	return &models.Payment{ID: uuid.New(), OrderID: input.OrderID, Amount: input.Amount}, nil
}

type stubPaymentsRepo struct {
	payments.Repository

	lastStatus enums.OrderPaymentStatus
}

func (s *stubPaymentsRepo) WithTx(_ *gorm.DB) payments.Repository {
	return s
}

func (s *stubPaymentsRepo) SetOrderPaymentStatus(_ context.Context, _ uuid.UUID, status enums.OrderPaymentStatus) error {
	s.lastStatus = status
	return nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fakeIdemStore struct {
	values map[string]string
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{values: map[string]string{}}
}

func (f *fakeIdemStore) Get(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeIdemStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = "1"
	return true, nil
}

func (f *fakeIdemStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (f *fakeIdemStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func newTestService(t *testing.T, ordersStub *stubOrders, paymentsStub *stubPayments, repoStub *stubPaymentsRepo) *Service {
	t.Helper()
	return newGuardedTestService(t, ordersStub, paymentsStub, repoStub, nil)
}

func newGuardedTestService(t *testing.T, ordersStub *stubOrders, paymentsStub *stubPayments, repoStub *stubPaymentsRepo, guard *IdempotencyGuard) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:            testGatewayConfig(),
		Orders:            ordersStub,
		Payments:          paymentsStub,
		PaymentsRepo:      repoStub,
		Outbox:            &stubOutbox{},
		TransactionRunner: stubTxRunner{},
		Guard:             guard,
	})
	if err != nil {
		t.Fatalf("new webhook service: %v", err)
	}
	return svc
}

func testGatewayConfig() config.PayHereConfig {
	return config.PayHereConfig{
		MerchantID:     testMerchantID,
		MerchantSecret: testSecret,
		Currency:       "LKR",
		CheckoutURL:    "https://sandbox.payhere.lk/pay/checkout",
		ReturnURL:      "https://shop.example/return",
		CancelURL:      "https://shop.example/cancel",
		NotifyURL:      "https://shop.example/webhooks/payhere",
	}
}

func signedNotification(orderNumber, amount string, statusCode int, paymentID string) Notification {
	return Notification{
		MerchantID:  testMerchantID,
		OrderNumber: orderNumber,
		PaymentID:   paymentID,
		Amount:      amount,
		Currency:    "LKR",
		StatusCode:  statusCode,
		MD5Sig:      ComputeMD5Sig(testMerchantID, orderNumber, amount, "LKR", strconv.Itoa(statusCode), testSecret),
	}
}

func pendingOrder(number, total string) *models.Order {
	amount := decimal.RequireFromString(total)
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   number,
		PharmacyID:    uuid.New(),
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.OrderPaymentStatusPending,
		PaymentMethod: enums.PaymentMethodPayHere,
		Subtotal:      amount,
		Total:         amount,
		Due:           amount,
	}
}
