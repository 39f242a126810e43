package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/api/middleware"
	internalorders "github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	"github.com/medlinkhq/medsupply-backend/pkg/pagination"
)

type stubOrdersService struct {
	create     func(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error)
	transition func(ctx context.Context, input internalorders.TransitionInput) error
	get        func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

func (s *stubOrdersService) Create(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
	if s.create == nil {
		panic("unexpected Create call")
	}
	return s.create(ctx, input)
}

func (s *stubOrdersService) Transition(ctx context.Context, input internalorders.TransitionInput) error {
	if s.transition == nil {
		panic("unexpected Transition call")
	}
	return s.transition(ctx, input)
}

func (s *stubOrdersService) TransitionTx(context.Context, *gorm.DB, internalorders.TransitionInput) error {
	panic("unimplemented")
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.get == nil {
		panic("unexpected Get call")
	}
	return s.get(ctx, orderID)
}

func (s *stubOrdersService) GetByNumber(context.Context, string) (*models.Order, error) {
	panic("unimplemented")
}

func (s *stubOrdersService) List(context.Context, uuid.UUID, pagination.Params) (*internalorders.OrderList, error) {
	panic("unimplemented")
}

func (s *stubOrdersService) History(context.Context, uuid.UUID) ([]models.OrderStatusHistory, error) {
	panic("unimplemented")
}

func pharmacyRequest(t *testing.T, method, target string, pharmacyID uuid.UUID, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(middleware.WithPharmacyID(req.Context(), pharmacyID.String()))
}

func withOrderParam(req *http.Request, orderID uuid.UUID) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCreateOrderReturnsResult(t *testing.T) {
	pharmacyID := uuid.New()
	orderID := uuid.New()
	var captured internalorders.CreateOrderInput
	svc := &stubOrdersService{
		create: func(_ context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
			captured = input
			return &internalorders.CreateOrderResult{OrderID: orderID, OrderNumber: "ORD2509010001"}, nil
		},
	}

	req := pharmacyRequest(t, http.MethodPost, "/api/v1/orders", pharmacyID, `{"payment_method":"payhere","use_credit":false}`)
	resp := httptest.NewRecorder()
	CreateOrder(svc, nil)(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.PharmacyID != pharmacyID {
		t.Fatalf("expected pharmacy %s got %s", pharmacyID, captured.PharmacyID)
	}
	if captured.PaymentMethod != enums.PaymentMethodPayHere {
		t.Fatalf("expected payhere method got %s", captured.PaymentMethod)
	}

	var envelope struct {
		Data internalorders.CreateOrderResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OrderNumber != "ORD2509010001" {
		t.Fatalf("expected order number in response, got %+v", envelope.Data)
	}
}

func TestCreateOrderRejectsUnknownPaymentMethod(t *testing.T) {
	svc := &stubOrdersService{}
	req := pharmacyRequest(t, http.MethodPost, "/api/v1/orders", uuid.New(), `{"payment_method":"barter"}`)
	resp := httptest.NewRecorder()
	CreateOrder(svc, nil)(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateOrderRequiresPharmacyContext(t *testing.T) {
	svc := &stubOrdersService{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"payment_method":"cash"}`))
	resp := httptest.NewRecorder()
	CreateOrder(svc, nil)(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderDetailEnforcesOwnership(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{
		get: func(_ context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: id, PharmacyID: uuid.New()}, nil
		},
	}

	req := pharmacyRequest(t, http.MethodGet, "/api/v1/orders/"+orderID.String(), uuid.New(), "")
	req = withOrderParam(req, orderID)
	resp := httptest.NewRecorder()
	OrderDetail(svc, nil)(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestCancelOrderRequestsCancelledTransition(t *testing.T) {
	pharmacyID := uuid.New()
	orderID := uuid.New()
	var captured internalorders.TransitionInput
	svc := &stubOrdersService{
		get: func(_ context.Context, id uuid.UUID) (*models.Order, error) {
			return &models.Order{ID: id, PharmacyID: pharmacyID}, nil
		},
		transition: func(_ context.Context, input internalorders.TransitionInput) error {
			captured = input
			return nil
		},
	}

	req := pharmacyRequest(t, http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", pharmacyID, `{"reason":"ordered by mistake"}`)
	req = withOrderParam(req, orderID)
	resp := httptest.NewRecorder()
	CancelOrder(svc, nil)(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.OrderID != orderID {
		t.Fatalf("expected order %s got %s", orderID, captured.OrderID)
	}
	if captured.Target != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled target got %s", captured.Target)
	}
	if captured.Reason != "ordered by mistake" {
		t.Fatalf("unexpected reason %q", captured.Reason)
	}
}
